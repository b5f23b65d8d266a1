// Package query runs generated statements against the target database and
// returns normalized result sets.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/resultset"
)

var ErrExecution = errors.New("query execution failed")

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Executor struct {
	db queryer
}

func NewExecutor(db queryer) *Executor {
	return &Executor{db: db}
}

// Execute runs sqlText as-is, apart from trailing semicolons, and reads every
// row. Database errors are wrapped with ErrExecution and keep the driver's
// message.
func (e *Executor) Execute(ctx context.Context, sqlText string) (resultset.ResultSet, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return resultset.ResultSet{}, fmt.Errorf("%w: sql is required", ErrExecution)
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return resultset.ResultSet{}, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return resultset.ResultSet{}, fmt.Errorf("%w: column types: %w", ErrExecution, err)
	}
	columns := make([]string, len(columnTypes))
	dbTypes := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = columnType.Name()
		dbTypes[i] = columnType.DatabaseTypeName()
	}

	result := resultset.ResultSet{Columns: columns, Rows: []resultset.Row{}}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return resultset.ResultSet{}, fmt.Errorf("%w: scan row: %w", ErrExecution, err)
		}

		normalized, _ := resultset.Normalize(values).([]any)
		cells := make([]resultset.Value, len(columns))
		for i, value := range normalized {
			cells[i] = resultset.FromDriver(value, dbTypes[i])
		}
		if err := result.Append(cells); err != nil {
			return resultset.ResultSet{}, fmt.Errorf("%w: %w", ErrExecution, err)
		}
	}
	if err := rows.Err(); err != nil {
		return resultset.ResultSet{}, fmt.Errorf("%w: iterate rows: %w", ErrExecution, err)
	}
	return result, nil
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
