// Package dialect carries static knowledge about SQL dialects: name
// normalization, per-dialect capability briefs for the generation prompt,
// and textual rewrite rules that adapt a generated query to the target
// engine's syntax.
package dialect

import (
	"fmt"
	"strings"
)

const (
	Postgres = "postgresql"
	MySQL    = "mysql"
	SQLite   = "sqlite"
	MSSQL    = "mssql"
	Oracle   = "oracle"
	DuckDB   = "duckdb"
)

var aliases = map[string]string{
	"mysql":      MySQL,
	"mariadb":    MySQL,
	"postgresql": Postgres,
	"postgres":   Postgres,
	"pgx":        Postgres,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"oracle":     Oracle,
	"mssql":      MSSQL,
	"sqlserver":  MSSQL,
	"duckdb":     DuckDB,
}

// Normalize maps driver and vendor spellings onto a canonical dialect
// name. Unknown names pass through lowercased so the pipeline can still
// attempt generation for unlisted engines.
func Normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[lower]; ok {
		return canonical
	}
	return lower
}

// FeatureSet describes what syntax is safe to emit for a dialect.
type FeatureSet struct {
	Name               string
	SupportsWindowFns  bool
	SupportsCTEs       bool
	SupportsJSON       bool
	SupportsArrays     bool
	DateFunctions      []string
	StringFunctions    []string
	AggregateFunctions []string
}

// Features returns the capability brief for a dialect. Unknown dialects
// get a permissive default rather than an error.
func Features(name string) FeatureSet {
	normalized := Normalize(name)
	features := FeatureSet{
		Name:               normalized,
		SupportsWindowFns:  true,
		SupportsCTEs:       true,
		SupportsJSON:       true,
		SupportsArrays:     false,
		DateFunctions:      []string{"DATE", "EXTRACT", "CURRENT_DATE"},
		StringFunctions:    []string{"LOWER", "UPPER", "TRIM", "SUBSTRING"},
		AggregateFunctions: []string{"SUM", "AVG", "MIN", "MAX", "COUNT"},
	}

	switch normalized {
	case Postgres, DuckDB:
		features.SupportsArrays = true
		features.DateFunctions = []string{"DATE_TRUNC", "EXTRACT", "TO_CHAR"}
		features.StringFunctions = []string{"LOWER", "UPPER", "TRIM", "SUBSTRING", "REGEXP_REPLACE"}
		features.AggregateFunctions = []string{"SUM", "AVG", "MIN", "MAX", "COUNT", "ARRAY_AGG", "STRING_AGG"}
	case MySQL:
		features.DateFunctions = []string{"DATE_FORMAT", "EXTRACT", "DATE_ADD", "DATE_SUB"}
		features.StringFunctions = []string{"LOWER", "UPPER", "TRIM", "SUBSTRING", "REGEXP_REPLACE"}
		features.AggregateFunctions = []string{"SUM", "AVG", "MIN", "MAX", "COUNT", "GROUP_CONCAT"}
	case SQLite:
		features.SupportsWindowFns = false
		features.SupportsCTEs = false
		features.SupportsJSON = false
		features.DateFunctions = []string{"STRFTIME", "DATE", "TIME", "DATETIME"}
		features.StringFunctions = []string{"LOWER", "UPPER", "TRIM", "SUBSTR", "REPLACE"}
		features.AggregateFunctions = []string{"SUM", "AVG", "MIN", "MAX", "COUNT", "GROUP_CONCAT"}
	case MSSQL:
		features.DateFunctions = []string{"DATEPART", "DATEADD", "DATEDIFF", "FORMAT"}
		features.StringFunctions = []string{"LOWER", "UPPER", "TRIM", "SUBSTRING", "REPLACE"}
		features.AggregateFunctions = []string{"SUM", "AVG", "MIN", "MAX", "COUNT", "STRING_AGG"}
	case Oracle:
		features.DateFunctions = []string{"TO_CHAR", "EXTRACT", "ADD_MONTHS", "MONTHS_BETWEEN"}
		features.StringFunctions = []string{"LOWER", "UPPER", "TRIM", "SUBSTR", "REPLACE", "REGEXP_REPLACE"}
		features.AggregateFunctions = []string{"SUM", "AVG", "MIN", "MAX", "COUNT", "LISTAGG"}
	}

	return features
}

// Brief renders the feature set as the textual block handed to the
// generation capability.
func (f FeatureSet) Brief() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dialect: %s\n", f.Name)
	b.WriteString("Supported Features:\n")
	fmt.Fprintf(&b, "- Window Functions: %t\n", f.SupportsWindowFns)
	fmt.Fprintf(&b, "- Common Table Expressions (CTEs): %t\n", f.SupportsCTEs)
	fmt.Fprintf(&b, "- JSON Support: %t\n", f.SupportsJSON)
	fmt.Fprintf(&b, "- Array Support: %t\n", f.SupportsArrays)
	if len(f.DateFunctions) > 0 {
		fmt.Fprintf(&b, "Date Functions: %s\n", strings.Join(f.DateFunctions, ", "))
	}
	if len(f.StringFunctions) > 0 {
		fmt.Fprintf(&b, "String Functions: %s\n", strings.Join(f.StringFunctions, ", "))
	}
	if len(f.AggregateFunctions) > 0 {
		fmt.Fprintf(&b, "Aggregate Functions: %s\n", strings.Join(f.AggregateFunctions, ", "))
	}
	return b.String()
}
