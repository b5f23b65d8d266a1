// Package nl2sql turns a natural-language question into a SQL statement using
// the language model.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/prompt"
)

var ErrGeneration = errors.New("sql generation failed")

type Generator struct {
	completer llm.Completer
}

func NewGenerator(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// GenerateSQL asks the model once and returns the bare statement. The output
// is not validated as SQL.
func (g *Generator) GenerateSQL(ctx context.Context, question, schemaText string) (string, error) {
	p := prompt.Translation(question, schemaText)
	raw, err := g.completer.Complete(ctx, p.System, p.User)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	sql := stripMarkdownSQL(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: model returned empty SQL", ErrGeneration)
	}
	return sql, nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.ReplaceAll(trimmed, "```sql", "")
	trimmed = strings.ReplaceAll(trimmed, "```SQL", "")
	trimmed = strings.ReplaceAll(trimmed, "```", "")
	return strings.TrimSpace(trimmed)
}
