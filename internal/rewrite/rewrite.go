// Package rewrite adjusts generated SQL so ranked aggregates end up in the
// projection, where the chart transformer can see them.
//
// Textual is a pattern-matching heuristic, not a parser. Known limitations:
// keywords inside string literals, comments or subqueries can trigger or hide
// a rewrite; only the first ORDER BY clause and the first aggregate call in
// its expression are considered; multi-column orderings are treated as one
// expression.
package rewrite

import (
	"regexp"
	"strings"
	"unicode"
)

// Augmenter rewrites a statement for charting. Implementations must be
// idempotent.
type Augmenter interface {
	AugmentForCharting(sql string) string
}

// Textual applies the ORDER BY aggregate rewrite with regular expressions.
type Textual struct{}

var (
	orderByPattern   = regexp.MustCompile(`(?i)\bORDER\s+BY\s+`)
	directionPattern = regexp.MustCompile(`(?i)\s(ASC|DESC)\b`)
	aggregatePattern = regexp.MustCompile(`(?i)\b(SUM|COUNT|AVG|MIN|MAX)\(`)
	selectPattern    = regexp.MustCompile(`(?i)\bSELECT\s+`)
)

var _ Augmenter = Textual{}

// AugmentForCharting appends the aggregate the statement is ordered by to the
// first SELECT list as "<fn>_value" when that list does not already contain
// the exact call text. Anything else passes through unchanged.
func (Textual) AugmentForCharting(sql string) string {
	call, fn, ok := orderingAggregate(sql)
	if !ok {
		return sql
	}
	start, end, ok := projectionBounds(sql)
	if !ok {
		return sql
	}
	if strings.Contains(sql[start:end], call) {
		return sql
	}
	return sql[:end] + ", " + call + " AS " + strings.ToLower(fn) + "_value" + sql[end:]
}

// orderingAggregate returns the first aggregate call in the first ORDER BY
// expression together with its function name.
func orderingAggregate(sql string) (call, fn string, ok bool) {
	loc := orderByPattern.FindStringIndex(sql)
	if loc == nil {
		return "", "", false
	}
	expr := sql[loc[1]:]
	if dir := directionPattern.FindStringIndex(expr); dir != nil {
		expr = expr[:dir[0]]
	}

	match := aggregatePattern.FindStringSubmatchIndex(expr)
	if match == nil {
		return "", "", false
	}
	open := match[1] - 1
	closing := matchingParen(expr, open)
	if closing < 0 {
		return "", "", false
	}
	return expr[match[0] : closing+1], expr[match[2]:match[3]], true
}

// projectionBounds locates the list between the first SELECT and the FROM
// that closes it at parenthesis depth zero. Trailing whitespace before FROM is
// excluded from the list.
func projectionBounds(sql string) (start, end int, ok bool) {
	loc := selectPattern.FindStringIndex(sql)
	if loc == nil {
		return 0, 0, false
	}
	start = loc[1]
	depth := 0
	for i := start; i < len(sql); i++ {
		switch sql[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && isKeywordAt(sql, i, "FROM") {
				end = i
				for end > start && unicode.IsSpace(rune(sql[end-1])) {
					end--
				}
				if end == start {
					return 0, 0, false
				}
				return start, end, true
			}
		}
	}
	return 0, 0, false
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isKeywordAt(s string, i int, keyword string) bool {
	if i+len(keyword) > len(s) || !strings.EqualFold(s[i:i+len(keyword)], keyword) {
		return false
	}
	if i > 0 && isIdentByte(s[i-1]) {
		return false
	}
	if next := i + len(keyword); next < len(s) && isIdentByte(s[next]) {
		return false
	}
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '.' || b == '"' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
