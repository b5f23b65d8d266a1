// Package schema introspects the live database catalog.
package schema

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrSchemaFetch = errors.New("schema fetch failed")

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	FullType string `json:"fullType"`
}

type Table struct {
	Name    string
	Columns []Column
}

// Description lists tables in catalog order, each with its columns in ordinal
// order.
type Description struct {
	Tables []Table
}

func (d Description) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

// MarshalJSON encodes the description as an object keyed by table name. Keys
// keep catalog order.
func (d Description) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, table := range d.Tables {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(table.Name)
		if err != nil {
			return nil, err
		}
		columns := table.Columns
		if columns == nil {
			columns = []Column{}
		}
		value, err := json.Marshal(columns)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", table.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// catalogQuery returns one row per column of every ordinary table and view in
// the given schema. format_type yields the declared type with modifiers, such
// as "character varying(255)" or "numeric(12,2)".
const catalogQuery = `
SELECT c.table_name, c.column_name, c.data_type,
       pg_catalog.format_type(a.atttypid, a.atttypmod) AS full_type
FROM information_schema.columns c
JOIN pg_catalog.pg_namespace n ON n.nspname = c.table_schema
JOIN pg_catalog.pg_class t ON t.relnamespace = n.oid AND t.relname = c.table_name
JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attname = c.column_name
WHERE c.table_schema = $1
ORDER BY c.table_name, c.ordinal_position`

type Introspector struct {
	db     queryer
	schema string
}

func NewIntrospector(db queryer, schemaName string) *Introspector {
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		schemaName = "public"
	}
	return &Introspector{db: db, schema: schemaName}
}

// FetchSchema queries the catalog on every call; nothing is cached, so tables
// created since the previous call are visible immediately.
func (i *Introspector) FetchSchema(ctx context.Context) (Description, error) {
	rows, err := i.db.QueryContext(ctx, catalogQuery, i.schema)
	if err != nil {
		return Description{}, fmt.Errorf("%w: query catalog: %w", ErrSchemaFetch, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		desc  Description
		index = map[string]int{}
	)
	for rows.Next() {
		var tableName string
		var column Column
		if err := rows.Scan(&tableName, &column.Name, &column.DataType, &column.FullType); err != nil {
			return Description{}, fmt.Errorf("%w: scan catalog row: %w", ErrSchemaFetch, err)
		}
		pos, ok := index[tableName]
		if !ok {
			pos = len(desc.Tables)
			index[tableName] = pos
			desc.Tables = append(desc.Tables, Table{Name: tableName})
		}
		desc.Tables[pos].Columns = append(desc.Tables[pos].Columns, column)
	}
	if err := rows.Err(); err != nil {
		return Description{}, fmt.Errorf("%w: iterate catalog rows: %w", ErrSchemaFetch, err)
	}
	return desc, nil
}
