// Package pipeline answers a natural-language question by chaining schema
// introspection, SQL generation, rewriting, execution, summarization and
// charting.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askdb/askdb/internal/chart"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/resultset"
	"github.com/askdb/askdb/internal/rewrite"
	"github.com/askdb/askdb/internal/schema"
)

const (
	stageSchema         = "schema"
	stageGenerate       = "generate"
	stageExecute        = "execute"
	stageSummarize      = "summarize"
	stageChartDecision  = "chart_decision"
	stageChartTransform = "chart_transform"
)

type SchemaSource interface {
	FetchSchema(ctx context.Context) (schema.Description, error)
}

type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question, schemaText string) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, sql string) (resultset.ResultSet, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, question, sql string, result resultset.ResultSet) (string, error)
}

type ChartDecider interface {
	Decide(ctx context.Context, question string, result resultset.ResultSet) chart.Decision
}

type Service struct {
	Schema     SchemaSource
	Generator  SQLGenerator
	Augmenter  rewrite.Augmenter
	Executor   Executor
	Summarizer Summarizer
	Decider    ChartDecider
	Logger     *slog.Logger
}

// Response is the answer to one question. Query holds the statement that was
// actually executed.
type Response struct {
	Query   string              `json:"query"`
	Result  resultset.ResultSet `json:"result"`
	Summary string              `json:"summary"`
	Chart   *chart.Series       `json:"chart"`
}

// Prepared is the outcome of the sequential stages, before summary and chart.
type Prepared struct {
	Question string
	SQL      string
	Result   resultset.ResultSet
}

func (s *Service) Tables(ctx context.Context) (schema.Description, error) {
	start := time.Now()
	desc, err := s.Schema.FetchSchema(ctx)
	observability.ObserveStage(stageSchema, err, time.Since(start))
	if err != nil {
		return schema.Description{}, err
	}
	return desc, nil
}

// Prepare introspects the schema, generates and rewrites SQL, and executes it.
func (s *Service) Prepare(ctx context.Context, question string) (Prepared, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Prepared{}, ErrEmptyQuestion
	}

	desc, err := s.Tables(ctx)
	if err != nil {
		return Prepared{}, err
	}

	start := time.Now()
	generated, err := s.Generator.GenerateSQL(ctx, question, prompt.SchemaText(desc))
	observability.ObserveStage(stageGenerate, err, time.Since(start))
	if err != nil {
		return Prepared{}, err
	}

	sql := s.augmenter().AugmentForCharting(generated)
	if sql != generated {
		observability.IncrementSQLRewrite()
		s.logger().DebugContext(ctx, "generated sql augmented for charting",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("generated_sql", generated),
			slog.String("sql", sql),
		)
	}

	start = time.Now()
	result, err := s.Executor.Execute(ctx, sql)
	observability.ObserveStage(stageExecute, err, time.Since(start))
	if err != nil {
		return Prepared{}, err
	}

	return Prepared{Question: question, SQL: sql, Result: result}, nil
}

// Ask runs the full pipeline. Summary and chart run concurrently once the
// result is known; only a summary failure fails the request.
func (s *Service) Ask(ctx context.Context, question string) (Response, error) {
	prepared, err := s.Prepare(ctx, question)
	if err != nil {
		return Response{}, err
	}

	var (
		summaryText string
		outcome     chart.Outcome
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		start := time.Now()
		text, err := s.Summarizer.Summarize(groupCtx, prepared.Question, prepared.SQL, prepared.Result)
		observability.ObserveStage(stageSummarize, err, time.Since(start))
		if err != nil {
			return err
		}
		summaryText = text
		return nil
	})
	group.Go(func() error {
		outcome = s.chart(groupCtx, prepared)
		return nil
	})
	if err := group.Wait(); err != nil {
		return Response{}, err
	}

	return Response{
		Query:   prepared.SQL,
		Result:  prepared.Result,
		Summary: summaryText,
		Chart:   outcome.Series,
	}, nil
}

func (s *Service) chart(ctx context.Context, prepared Prepared) chart.Outcome {
	start := time.Now()
	decision := s.Decider.Decide(ctx, prepared.Question, prepared.Result)
	observability.ObserveStage(stageChartDecision, decision.Err, time.Since(start))
	observability.ObserveChartDecision(string(decision.Source), decision.Chart)
	if decision.Err != nil {
		s.logger().WarnContext(ctx, "chart decision failed, answering without chart",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", decision.Err),
		)
	}
	if !decision.Chart {
		return chart.Skipped(chart.SkipNotRequested)
	}

	start = time.Now()
	outcome := chart.ToSeries(prepared.Result)
	observability.ObserveStage(stageChartTransform, outcome.Err(), time.Since(start))
	if err := outcome.Err(); err != nil {
		observability.IncrementChartSkip(string(outcome.Skip))
		s.logger().InfoContext(ctx, "chart skipped",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("reason", string(outcome.Skip)),
		)
	}
	return outcome
}

func (s *Service) augmenter() rewrite.Augmenter {
	if s.Augmenter == nil {
		return rewrite.Textual{}
	}
	return s.Augmenter
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return observability.NopLogger()
	}
	return s.Logger
}
