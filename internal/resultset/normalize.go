package resultset

import (
	"encoding/json"
	"math/big"
	"strconv"
)

// MaxSafeInteger is the largest integer a float64 represents exactly (2^53-1).
const MaxSafeInteger = 1<<53 - 1

var (
	maxSafeBig = big.NewInt(MaxSafeInteger)
	minSafeBig = big.NewInt(-MaxSafeInteger)
)

// Normalize returns a copy of v in which every wide integer, at any depth of
// nested []any and map[string]any, is replaced by its decimal string. Other
// values are returned as they are. v itself is never modified.
func Normalize(v any) any {
	switch typed := v.(type) {
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = Normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = Normalize(item)
		}
		return out
	case int64:
		if IsWideInt64(typed) {
			return strconv.FormatInt(typed, 10)
		}
		return typed
	case int:
		if IsWideInt64(int64(typed)) {
			return strconv.Itoa(typed)
		}
		return typed
	case uint64:
		if typed > MaxSafeInteger {
			return strconv.FormatUint(typed, 10)
		}
		return typed
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.Cmp(maxSafeBig) > 0 || typed.Cmp(minSafeBig) < 0 {
			return typed.String()
		}
		return typed
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			if IsWideInt64(n) {
				return typed.String()
			}
			return typed
		}
		if isIntegerLiteral(string(typed)) {
			// Integer literal that overflows int64.
			return typed.String()
		}
		return typed
	default:
		return v
	}
}

func IsWideInt64(n int64) bool {
	return n > MaxSafeInteger || n < -MaxSafeInteger
}

func isIntegerLiteral(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' || s[0] == '+' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
