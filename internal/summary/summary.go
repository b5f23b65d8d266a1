package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/resultset"
)

var ErrSummarization = errors.New("summarization failed")

type Generator struct {
	completer llm.Completer
}

func NewGenerator(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// Summarize returns the model's prose answer, trimmed. The answer is not
// checked against the formatting instructions.
func (g *Generator) Summarize(ctx context.Context, question, sql string, result resultset.ResultSet) (string, error) {
	p, err := prompt.Summary(question, sql, result)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarization, err)
	}
	text, err := g.completer.Complete(ctx, p.System, p.User)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarization, err)
	}
	return strings.TrimSpace(text), nil
}
