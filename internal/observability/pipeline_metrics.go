package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_pipeline_stage_duration_seconds",
			Help:    "Duration of each question pipeline stage by outcome.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage", "outcome"},
	)
	sqlRewritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_sql_rewrites_total",
			Help: "Total number of generated statements augmented with an ORDER BY aggregate.",
		},
	)
	chartDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_chart_decisions_total",
			Help: "Chart decisions by source and result.",
		},
		[]string{"source", "chart"},
	)
	chartSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_chart_skips_total",
			Help: "Chart transforms skipped by reason.",
		},
		[]string{"reason"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_exports_total",
			Help: "Result exports by outcome.",
		},
		[]string{"outcome"},
	)
	exportBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_export_bytes_total",
			Help: "Total Parquet bytes uploaded by result exports.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		stageDurationSeconds,
		sqlRewritesTotal,
		chartDecisionsTotal,
		chartSkipsTotal,
		exportsTotal,
		exportBytesTotal,
	)
}

func ObserveStage(stage string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	stageDurationSeconds.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func IncrementSQLRewrite() {
	sqlRewritesTotal.Inc()
}

func ObserveChartDecision(source string, chart bool) {
	label := "no"
	if chart {
		label = "yes"
	}
	chartDecisionsTotal.WithLabelValues(source, label).Inc()
}

func IncrementChartSkip(reason string) {
	chartSkipsTotal.WithLabelValues(reason).Inc()
}

func ObserveExport(err error, sizeBytes int64) {
	if err != nil {
		exportsTotal.WithLabelValues("error").Inc()
		return
	}
	exportsTotal.WithLabelValues("ok").Inc()
	if sizeBytes > 0 {
		exportBytesTotal.Add(float64(sizeBytes))
	}
}
