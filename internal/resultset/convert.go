package resultset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// FromDriver maps a scanned database value onto a Value. dbType is the
// driver's database type name for the column (sql.ColumnType.DatabaseTypeName)
// and decides how textual payloads are read: integer, float and numeric
// columns delivered as text are parsed rather than kept as strings.
func FromDriver(raw any, dbType string) Value {
	family := typeFamily(dbType)
	switch typed := raw.(type) {
	case nil:
		return Null()
	case []byte:
		return fromText(string(typed), family)
	case string:
		return fromText(typed, family)
	case int64:
		if IsWideInt64(typed) {
			return DecimalString(strconv.FormatInt(typed, 10))
		}
		return Number(float64(typed))
	case int32:
		return Number(float64(typed))
	case int16:
		return Number(float64(typed))
	case int8:
		return Number(float64(typed))
	case int:
		return FromDriver(int64(typed), dbType)
	case uint64:
		if typed > MaxSafeInteger {
			return DecimalString(strconv.FormatUint(typed, 10))
		}
		return Number(float64(typed))
	case uint32:
		return Number(float64(typed))
	case uint16:
		return Number(float64(typed))
	case uint8:
		return Number(float64(typed))
	case float64:
		return fromFloat(typed)
	case float32:
		return fromFloat(float64(typed))
	case bool:
		return String(strconv.FormatBool(typed))
	case time.Time:
		return String(typed.Format(time.RFC3339Nano))
	case json.Number:
		return fromText(typed.String(), familyNumeric)
	case *big.Int:
		if typed == nil {
			return Null()
		}
		if typed.IsInt64() {
			return FromDriver(typed.Int64(), dbType)
		}
		return DecimalString(typed.String())
	case []any, map[string]any:
		return fromStructured(typed)
	case fmt.Stringer:
		return String(typed.String())
	default:
		return String(fmt.Sprint(typed))
	}
}

type family uint8

const (
	familyText family = iota
	familyInteger
	familyFloat
	familyNumeric
	familyJSON
)

func typeFamily(dbType string) family {
	switch strings.ToUpper(strings.TrimSpace(dbType)) {
	case "INT2", "INT4", "INT8", "SMALLINT", "INTEGER", "INT", "BIGINT", "SERIAL", "BIGSERIAL", "OID":
		return familyInteger
	case "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT":
		return familyFloat
	case "NUMERIC", "DECIMAL":
		return familyNumeric
	case "JSON", "JSONB":
		return familyJSON
	default:
		return familyText
	}
}

func fromText(text string, fam family) Value {
	switch fam {
	case familyInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return FromDriver(n, "")
		}
		if isIntegerLiteral(strings.TrimSpace(text)) {
			return DecimalString(strings.TrimSpace(text))
		}
	case familyFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return fromFloat(f)
		}
	case familyNumeric:
		trimmed := strings.TrimSpace(text)
		if isDecimalLiteral(trimmed) {
			return DecimalString(trimmed)
		}
	case familyJSON:
		return fromJSONText(text)
	}
	return String(text)
}

func fromFloat(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return String(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return Number(f)
}

// fromJSONText decodes a JSON column, normalizes wide integers inside it and
// re-encodes it compactly. Scalars at the top level map onto their own kinds.
func fromJSONText(text string) Value {
	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return String(text)
	}
	switch typed := decoded.(type) {
	case nil:
		return Null()
	case string:
		return String(typed)
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			return FromDriver(n, "")
		}
		return FromDriver(typed, "NUMERIC")
	case bool:
		return String(strconv.FormatBool(typed))
	default:
		return fromStructured(typed)
	}
}

func fromStructured(v any) Value {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(Normalize(v)); err != nil {
		return String(fmt.Sprint(v))
	}
	return String(strings.TrimSpace(buf.String()))
}

func isDecimalLiteral(s string) bool {
	if s == "" {
		return false
	}
	_, ok := new(big.Float).SetString(s)
	if !ok {
		return false
	}
	lower := strings.ToLower(s)
	return !strings.Contains(lower, "inf") && !strings.Contains(lower, "nan")
}
