package schema

import (
	"fmt"
	"strings"
)

// TableContext is the per-table material the formatter renders: the
// structural schema plus sampled rows in column order.
type TableContext struct {
	Schema        TableSchema
	SampleColumns []string
	SampleRows    []map[string]any
}

// Format renders the schema context string in input table order. Each
// block is a "-- Table:" header, a create-statement-equivalent and up to
// the sampled rows. The shape of this string is what the generation
// capability is prompted with, so it stays stable.
func Format(tables []TableContext) string {
	var parts []string
	for _, tc := range tables {
		parts = append(parts, fmt.Sprintf("-- Table: %s", tc.Schema.Name))
		parts = append(parts, renderCreateStatement(tc.Schema))

		if len(tc.SampleRows) > 0 {
			parts = append(parts, fmt.Sprintf("\n-- Sample rows from %s table:", tc.Schema.Name))
			for i, row := range tc.SampleRows {
				parts = append(parts, fmt.Sprintf("-- Row %d: %s", i+1, renderRow(tc.SampleColumns, row)))
			}
		}
		parts = append(parts, "\n")
	}
	return strings.Join(parts, "\n")
}

func renderCreateStatement(ts TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", ts.Name)

	var lines []string
	for _, col := range ts.Columns {
		line := fmt.Sprintf("\t%s %s", col.Name, col.Type)
		if !col.Nullable {
			line += " NOT NULL"
		}
		if col.Default != "" {
			line += " DEFAULT " + col.Default
		}
		lines = append(lines, line)
	}
	if len(ts.PrimaryKeys) > 0 {
		lines = append(lines, fmt.Sprintf("\tPRIMARY KEY (%s)", strings.Join(ts.PrimaryKeys, ", ")))
	}
	for _, fk := range ts.ForeignKeys {
		lines = append(lines, fmt.Sprintf("\tFOREIGN KEY (%s) REFERENCES %s (%s)",
			strings.Join(fk.ConstrainedColumns, ", "), fk.ReferredTable, strings.Join(fk.ReferredColumns, ", ")))
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);")
	return b.String()
}

// renderRow keeps column order so the output is deterministic.
func renderRow(columns []string, row map[string]any) string {
	var fields []string
	for _, col := range columns {
		fields = append(fields, fmt.Sprintf("%s: %v", col, row[col]))
	}
	return "{" + strings.Join(fields, ", ") + "}"
}
