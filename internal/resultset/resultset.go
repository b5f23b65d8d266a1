package resultset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one result row. Cells are positional and line up with the owning
// ResultSet's Columns.
type Row struct {
	columns []string
	cells   []Value
}

func NewRow(columns []string, cells []Value) (Row, error) {
	if len(columns) != len(cells) {
		return Row{}, fmt.Errorf("row has %d cells for %d columns", len(cells), len(columns))
	}
	return Row{columns: columns, cells: cells}, nil
}

func (r Row) Columns() []string { return r.columns }

func (r Row) Len() int { return len(r.cells) }

func (r Row) At(i int) Value { return r.cells[i] }

func (r Row) Get(column string) (Value, bool) {
	for i, name := range r.columns {
		if name == column {
			return r.cells[i], true
		}
	}
	return Value{}, false
}

// MarshalJSON writes the row as an object with keys in projection order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		cell, err := r.cells[i].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		buf.Write(cell)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type ResultSet struct {
	Columns []string
	Rows    []Row
}

func (rs ResultSet) Empty() bool { return len(rs.Rows) == 0 }

// Append adds a row built from cells in column order.
func (rs *ResultSet) Append(cells []Value) error {
	row, err := NewRow(rs.Columns, cells)
	if err != nil {
		return err
	}
	rs.Rows = append(rs.Rows, row)
	return nil
}

// MarshalJSON encodes the result as an array of row objects. A result with no
// rows encodes as [] rather than null.
func (rs ResultSet) MarshalJSON() ([]byte, error) {
	if len(rs.Rows) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(rs.Rows)
}
