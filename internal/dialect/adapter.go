package dialect

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	offsetRowsPattern = regexp.MustCompile(`(?i)\bOFFSET\s+(\d+)\s+ROWS\b`)
	limitPattern      = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)
	selectKeyword     = regexp.MustCompile(`(?i)\bSELECT\b`)
	selectTopPattern  = regexp.MustCompile(`(?i)\bSELECT\s+TOP\s+(\d+)\s+`)
	concatBarsPattern = regexp.MustCompile(`([A-Za-z0-9_."'\)\]]+)\s*\|\|\s*([A-Za-z0-9_."'\(\[]+)`)
	concatFnPattern   = regexp.MustCompile(`(?i)\bCONCAT\(\s*([^,()]+),\s*([^()]+)\)`)
	regexpLikePattern = regexp.MustCompile(`(?i)\bREGEXP_LIKE\(\s*([^,()]+),\s*([^()]+)\)`)
	isnullPattern     = regexp.MustCompile(`(?i)\bISNULL\(\s*([^,()]+),\s*([^()]+)\)`)
)

// Adapt rewrites a query to the target dialect's syntax. The rewrites are
// best-effort textual transforms: every rule tolerates absence of its
// pattern and is applied exactly once per invocation. Adapt is pure —
// identical input always yields identical output.
func Adapt(sql, targetDialect string) string {
	switch Normalize(targetDialect) {
	case Postgres, DuckDB:
		// Postgres syntax is the lingua franca the generator is asked to
		// emit; nothing to rewrite.
		return sql
	case MySQL:
		return adaptToMySQL(sql)
	case SQLite:
		return adaptToSQLite(sql)
	case MSSQL:
		return adaptToMSSQL(sql)
	case Oracle:
		return adaptToOracle(sql)
	default:
		return sql
	}
}

func adaptToMySQL(sql string) string {
	sql = offsetRowsPattern.ReplaceAllString(sql, "OFFSET $1")
	sql = concatBarsPattern.ReplaceAllString(sql, "CONCAT($1, $2)")
	sql = regexpLikePattern.ReplaceAllString(sql, "$1 REGEXP $2")
	return sql
}

func adaptToSQLite(sql string) string {
	sql = offsetRowsPattern.ReplaceAllString(sql, "OFFSET $1")
	sql = isnullPattern.ReplaceAllString(sql, "IFNULL($1, $2)")

	// SELECT TOP n ... ORDER BY x becomes SELECT ... ORDER BY x LIMIT n.
	if match := selectTopPattern.FindStringSubmatch(sql); match != nil {
		limit := match[1]
		sql = selectTopPattern.ReplaceAllString(sql, "SELECT ")
		sql = strings.TrimRight(strings.TrimSpace(sql), ";")
		sql = fmt.Sprintf("%s LIMIT %s", strings.TrimSpace(sql), limit)
	}
	return sql
}

func adaptToMSSQL(sql string) string {
	if match := limitPattern.FindStringSubmatch(sql); match != nil {
		limit := match[1]
		sql = limitPattern.ReplaceAllString(sql, "")
		replaced := false
		sql = selectKeyword.ReplaceAllStringFunc(sql, func(keyword string) string {
			if replaced {
				return keyword
			}
			replaced = true
			return "SELECT TOP " + limit
		})
		sql = collapseSpaces(sql)
	}
	sql = concatFnPattern.ReplaceAllString(sql, "$1 + $2")
	sql = regexpLikePattern.ReplaceAllString(sql, "$1 LIKE $2")
	return sql
}

func adaptToOracle(sql string) string {
	if match := limitPattern.FindStringSubmatch(sql); match != nil {
		limit := match[1]
		inner := collapseSpaces(limitPattern.ReplaceAllString(sql, ""))
		inner = strings.TrimRight(strings.TrimSpace(inner), ";")
		sql = fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM <= %s", inner, limit)
	}
	sql = isnullPattern.ReplaceAllString(sql, "NVL($1, $2)")
	return sql
}

var multiSpacePattern = regexp.MustCompile(`[ \t]{2,}`)

func collapseSpaces(sql string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(sql, " "))
}
