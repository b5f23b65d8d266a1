package chart

import (
	"errors"
	"fmt"
	"math"

	"github.com/askdb/askdb/internal/resultset"
)

var ErrChartTransform = errors.New("chart transform skipped")

const (
	barBackgroundColor = "rgba(75, 192, 192, 0.6)"
	barBorderColor     = "rgba(75, 192, 192, 1)"
	barBorderWidth     = 1
)

// SkipReason records why no series was built.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipNotRequested  SkipReason = "not_requested"
	SkipEmptyResult   SkipReason = "empty_result"
	SkipNoLabelColumn SkipReason = "no_label_column"
	SkipNoValueColumn SkipReason = "no_value_column"
)

// Dataset is one bar group with its fixed style.
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor string    `json:"backgroundColor"`
	BorderColor     string    `json:"borderColor"`
	BorderWidth     int       `json:"borderWidth"`
}

// Series is the chart payload returned to clients.
type Series struct {
	Type     string            `json:"type"`
	Labels   []resultset.Value `json:"labels"`
	Datasets []Dataset         `json:"datasets"`
}

// Outcome holds either a series or the reason none was built.
type Outcome struct {
	Series *Series
	Skip   SkipReason
}

func Skipped(reason SkipReason) Outcome {
	return Outcome{Skip: reason}
}

// Err describes a skipped outcome. It returns nil when a series was built or
// the chart was never requested.
func (o Outcome) Err() error {
	if o.Series != nil || o.Skip == SkipNone || o.Skip == SkipNotRequested {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrChartTransform, o.Skip)
}

// ToSeries builds a single-dataset bar series. Column roles come from the
// first row: the first text column labels the bars and the first numeric
// column sizes them. When either role is unmatched the first column becomes
// the label and the second the value, so a single-column result is skipped.
func ToSeries(result resultset.ResultSet) Outcome {
	if result.Empty() {
		return Skipped(SkipEmptyResult)
	}

	first := result.Rows[0]
	labelIdx, valueIdx := -1, -1
	for i := 0; i < first.Len(); i++ {
		cell := first.At(i)
		switch {
		case labelIdx < 0 && cell.IsText():
			labelIdx = i
		case valueIdx < 0 && cell.IsNumeric():
			valueIdx = i
		}
		if labelIdx >= 0 && valueIdx >= 0 {
			break
		}
	}

	columns := first.Columns()
	if labelIdx < 0 || valueIdx < 0 {
		if len(columns) < 2 {
			if labelIdx < 0 {
				return Skipped(SkipNoLabelColumn)
			}
			return Skipped(SkipNoValueColumn)
		}
		labelIdx, valueIdx = 0, 1
	}

	labels := make([]resultset.Value, len(result.Rows))
	data := make([]float64, len(result.Rows))
	for i, row := range result.Rows {
		labels[i] = row.At(labelIdx)
		if f, ok := row.At(valueIdx).Float(); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			data[i] = f
		}
	}

	return Outcome{Series: &Series{
		Type:   "bar",
		Labels: labels,
		Datasets: []Dataset{{
			Label:           columns[valueIdx],
			Data:            data,
			BackgroundColor: barBackgroundColor,
			BorderColor:     barBorderColor,
			BorderWidth:     barBorderWidth,
		}},
	}}
}
