// Package prompt renders the deterministic prompts sent to the language
// model. Nothing here performs I/O.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/resultset"
	"github.com/askdb/askdb/internal/schema"
)

// Prompt is a system instruction plus the user message for one completion.
type Prompt struct {
	System string
	User   string
}

const translationSystem = "You convert natural language questions into a single PostgreSQL query. " +
	"Return ONLY SQL. No markdown, no explanation."

const summarySystem = "You explain database query results to non-technical readers in plain prose."

const chartDecisionSystem = "You decide whether a query result is worth showing as a chart. Answer with exactly YES or NO."

// SchemaText renders a schema description as one block per table with one
// indented line per column.
func SchemaText(desc schema.Description) string {
	var b strings.Builder
	for i, table := range desc.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s:\n", table.Name)
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "  - %s %s\n", column.Name, column.FullType)
		}
	}
	return b.String()
}

func Translation(question, schemaText string) Prompt {
	user := fmt.Sprintf(
		"Database schema:\n%s\nQuestion:\n%s\n\nRules:\n"+
			"- Use only the tables and columns listed above.\n"+
			"- When the question compares, ranks or aggregates groups, SELECT both the identifying column(s) and the computed value(s), for example the name together with SUM(...) AS total.\n"+
			"- Alias every computed column.\n"+
			"- Output a single SQL statement only.",
		strings.TrimRight(schemaText, "\n")+"\n",
		strings.TrimSpace(question),
	)
	return Prompt{System: translationSystem, User: user}
}

func Summary(question, sql string, result resultset.ResultSet) (Prompt, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return Prompt{}, fmt.Errorf("encode result for summary: %w", err)
	}
	user := fmt.Sprintf(
		"Question:\n%s\n\nSQL that was executed:\n%s\n\nResult (JSON):\n%s\n\n"+
			"Answer the question using the result. Do not include raw JSON or code blocks. "+
			"When listing several items, write them as a comma-separated sentence or an enumerated list. "+
			"If the result is empty, say that no matching data was found.",
		strings.TrimSpace(question),
		strings.TrimSpace(sql),
		string(encoded),
	)
	return Prompt{System: summarySystem, User: user}, nil
}

// ChartDecision describes the result by shape only; row values are not sent.
func ChartDecision(question string, result resultset.ResultSet) Prompt {
	user := fmt.Sprintf(
		"Question:\n%s\n\nResult columns: %s\nRow count: %d\n\n"+
			"Would a bar chart help answer this question? Reply with exactly YES or NO.",
		strings.TrimSpace(question),
		strings.Join(result.Columns, ", "),
		len(result.Rows),
	)
	return Prompt{System: chartDecisionSystem, User: user}
}
