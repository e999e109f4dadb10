package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlmesa/sqlmesa/internal/dbconn"
	"github.com/sqlmesa/sqlmesa/internal/dialect"
)

const generationSystemPrompt = "You are an expert SQL query generator. Convert the natural language question into a correct SQL query for the given database schema and dialect."

const answerSystemPrompt = "You are a data analyst. Answer the user's question directly and concisely based on the query results."

// generationPrompt assembles the full prompt: dialect brief, schema
// context, few-shot examples built from the resolved tables, the
// question, and the previous execution error when retrying.
func (o *Orchestrator) generationPrompt(state *State, lastExecError string) string {
	snapshot := state.Snapshot
	features := dialect.Features(snapshot.Dialect)

	var b strings.Builder
	fmt.Fprintf(&b, "Database Dialect: %s\n\n", snapshot.Dialect)
	fmt.Fprintf(&b, "Schema Information:\n%s\n\n", snapshot.FormattedSchema)
	fmt.Fprintf(&b, "Dialect-Specific Features:\n%s\n", features.Brief())

	b.WriteString("Examples:\n")
	for i, ex := range exampleQueries(snapshot.RelevantTables) {
		fmt.Fprintf(&b, "%d. Question: %s\nSQL Query:\n```sql\n%s\n```\n\n", i+1, ex.question, ex.query)
	}

	fmt.Fprintf(&b, "User Question: %s\n\n", state.Question)

	b.WriteString(`Task:
Generate a SQL query that accurately answers the user's question. Follow these guidelines:
1. Use only the tables and columns defined in the schema.
2. Apply appropriate joins based on foreign key relationships in the schema.
3. Use correct SQL syntax and functions supported by the dialect.
4. Include necessary filtering, grouping, sorting, or aggregations to match the question's intent.
5. For unbounded queries, add LIMIT 10 to restrict output.
6. Provide a brief explanation of your reasoning before the query.

Output Format:
- Explanation: [your reasoning]
- SQL Query:
` + "```sql\n[your SQL query]\n```\n")

	if lastExecError != "" {
		fmt.Fprintf(&b, "\nThe previous query failed with this error, fix the query accordingly:\n%s\n", lastExecError)
	}
	return b.String()
}

type example struct {
	question string
	query    string
}

// exampleQueries builds few-shot examples from the resolved table names
// so the examples reference schema the model can actually see.
func exampleQueries(tables []string) []example {
	if len(tables) == 0 {
		return []example{
			{"Show me all records from the users table", "SELECT *\nFROM users\nLIMIT 10"},
			{"Count the number of records in the orders table", "SELECT COUNT(*) AS record_count\nFROM orders"},
		}
	}

	examples := []example{
		{
			question: fmt.Sprintf("Show me all records from the %s table", tables[0]),
			query:    fmt.Sprintf("SELECT *\nFROM %s\nLIMIT 10", tables[0]),
		},
	}
	if len(tables) >= 2 {
		examples = append(examples, example{
			question: fmt.Sprintf("Count the number of records in the %s table", tables[1]),
			query:    fmt.Sprintf("SELECT COUNT(*) AS record_count\nFROM %s", tables[1]),
		})
	}
	if len(tables) >= 3 {
		examples = append(examples, example{
			question: fmt.Sprintf("Show me the relationship between %s and %s", tables[0], tables[2]),
			query:    fmt.Sprintf("SELECT a.*, b.*\nFROM %s a\nJOIN %s b ON a.id = b.%s_id\nLIMIT 5", tables[0], tables[2], tables[0]),
		})
	}
	return examples
}

func answerPrompt(state *State) string {
	resultText := renderResult(state.Execution.Result)
	return fmt.Sprintf(`Based on the following information, provide a comprehensive answer to the user's question.

User's Question: %s

SQL Query Used:
%s

Query Results:
%s

Provide a clear, concise answer that directly addresses the user's question. Include relevant data from the query results to support your answer. If appropriate, include any insights or patterns you notice in the data.`,
		state.Question, state.Generated.SQL, resultText)
}

// renderResult serializes at most 50 rows so huge result sets do not
// blow up the answer prompt.
func renderResult(result *dbconn.ExecutionResult) string {
	if result == nil {
		return "(no result)"
	}
	if !result.IsSelect {
		return fmt.Sprintf("%d rows affected", result.RowsAffected)
	}
	rows := result.Rows
	truncated := false
	if len(rows) > 50 {
		rows = rows[:50]
		truncated = true
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return fmt.Sprintf("%d rows (unserializable)", len(result.Rows))
	}
	text := string(encoded)
	if truncated {
		text += fmt.Sprintf("\n(truncated, %d rows total)", len(result.Rows))
	}
	return text
}

// chartData derives a simple label/value series when the result shape
// supports one: exactly two columns, at least one row.
func chartData(result *dbconn.ExecutionResult) map[string]any {
	if result == nil || !result.IsSelect || len(result.Columns) != 2 || len(result.Rows) == 0 {
		return nil
	}
	labelCol, valueCol := result.Columns[0], result.Columns[1]
	labels := make([]any, 0, len(result.Rows))
	values := make([]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		labels = append(labels, row[labelCol])
		values = append(values, row[valueCol])
	}
	return map[string]any{
		"label_column": labelCol,
		"value_column": valueCol,
		"labels":       labels,
		"values":       values,
	}
}
