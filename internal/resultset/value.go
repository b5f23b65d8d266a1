// Package resultset holds the normalized, JSON-safe representation of a query
// result: ordered rows of tagged values.
package resultset

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindDecimalString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDecimalString:
		return "decimal_string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a closed union over the four shapes a cell can take once a row
// leaves the database. DecimalString carries integers too wide for a float64
// and exact NUMERIC values; it serializes as a JSON string.
type Value struct {
	kind Kind
	str  string
	num  float64
}

func Null() Value { return Value{kind: KindNull} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func DecimalString(digits string) Value { return Value{kind: KindDecimalString, str: digits} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether the value carries a number, in either float or
// exact decimal form.
func (v Value) IsNumeric() bool {
	return v.kind == KindNumber || v.kind == KindDecimalString
}

func (v Value) IsText() bool { return v.kind == KindString }

// Text returns the textual payload of String and DecimalString values.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindDecimalString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float converts the value to a float64. Numeric text is parsed; anything else
// reports ok=false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindDecimalString, KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return json.Marshal(v.num)
	case KindString, KindDecimalString:
		return json.Marshal(v.str)
	default:
		return nil, fmt.Errorf("marshal value: unknown kind %d", v.kind)
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "NULL"
	}
	return v.Text()
}
