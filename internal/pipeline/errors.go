package pipeline

import (
	"errors"

	"github.com/askdb/askdb/internal/chart"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/summary"
)

// Fatal stage errors. Any of them aborts the request without a partial
// response.
var (
	ErrSchemaFetch   = schema.ErrSchemaFetch
	ErrGeneration    = nl2sql.ErrGeneration
	ErrExecution     = query.ErrExecution
	ErrSummarization = summary.ErrSummarization
)

// Recoverable stage errors. They are logged and the chart is left out.
var (
	ErrChartDecision  = chart.ErrChartDecision
	ErrChartTransform = chart.ErrChartTransform
)

var ErrEmptyQuestion = errors.New("question is required")

// IsFatal reports whether err came from a stage that ends the request.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSchemaFetch) ||
		errors.Is(err, ErrGeneration) ||
		errors.Is(err, ErrExecution) ||
		errors.Is(err, ErrSummarization)
}
