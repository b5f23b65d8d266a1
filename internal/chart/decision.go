// Package chart decides whether a result deserves a chart and turns results
// into bar-chart series. Both steps are best effort and report their outcome
// as values instead of errors.
package chart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/resultset"
)

var ErrChartDecision = errors.New("chart decision failed")

type Source string

const (
	SourceKeyword  Source = "keyword"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

var chartKeywords = []string{"chart", "plot", "graph", "visualize"}

// Decision reports whether to chart and how that was decided. Err is set only
// when the model call failed; Chart is false in that case.
type Decision struct {
	Chart  bool
	Source Source
	Err    error
}

type Decider struct {
	completer llm.Completer
}

func NewDecider(completer llm.Completer) *Decider {
	return &Decider{completer: completer}
}

func (d *Decider) Decide(ctx context.Context, question string, result resultset.ResultSet) Decision {
	if HasChartKeyword(question) {
		return Decision{Chart: true, Source: SourceKeyword}
	}

	p := prompt.ChartDecision(question, result)
	answer, err := d.completer.Complete(ctx, p.System, p.User)
	if err != nil {
		return Decision{Source: SourceFallback, Err: fmt.Errorf("%w: %w", ErrChartDecision, err)}
	}
	return Decision{Chart: strings.ToUpper(strings.TrimSpace(answer)) == "YES", Source: SourceModel}
}

// HasChartKeyword reports whether the question explicitly asks for a chart.
func HasChartKeyword(question string) bool {
	lower := strings.ToLower(question)
	for _, keyword := range chartKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
