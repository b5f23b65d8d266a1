package export

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/resultset"
)

// parquetCell is one cell of a result in long format. Results have no fixed
// schema, so every row of the file is (row, column, kind, value).
type parquetCell struct {
	RowIndex    int64   `parquet:"row_index"`
	ColumnIndex int32   `parquet:"column_index"`
	ColumnName  string  `parquet:"column_name"`
	Kind        string  `parquet:"kind"`
	Value       *string `parquet:"value,optional"`
}

type EncodeResult struct {
	Data      []byte
	RowCount  int
	CellCount int
}

// EncodeResultToParquet writes result in long format. Number values are
// stored in their shortest decimal text, decimal strings as-is, nulls as a
// missing value.
func EncodeResultToParquet(result resultset.ResultSet) (EncodeResult, error) {
	cells := make([]parquetCell, 0, len(result.Rows)*len(result.Columns))
	for rowIndex, row := range result.Rows {
		for columnIndex, column := range row.Columns() {
			value := row.At(columnIndex)
			cell := parquetCell{
				RowIndex:    int64(rowIndex),
				ColumnIndex: int32(columnIndex),
				ColumnName:  column,
				Kind:        value.Kind().String(),
			}
			if !value.IsNull() {
				text := value.Text()
				cell.Value = &text
			}
			cells = append(cells, cell)
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetCell](buf)
	if len(cells) > 0 {
		if _, err := writer.Write(cells); err != nil {
			return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:      buf.Bytes(),
		RowCount:  len(result.Rows),
		CellCount: len(cells),
	}, nil
}
