// Package validate checks a generated SQL query before execution. It
// combines cheap structural and heuristic checks, a schema existence
// check for referenced tables, and an advisory opinion from the language
// model. None of it replaces the database's own parser; the point is to
// catch the mistakes generation makes most often before burning an
// execution attempt.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sqlmesa/sqlmesa/internal/llm"
	"github.com/sqlmesa/sqlmesa/internal/schema"
)

// Result is the advisory validation outcome. IsValid false with an
// empty CorrectedSQL means no usable fix was extracted; the caller
// decides whether to run the original anyway.
type Result struct {
	IsValid      bool     `json:"is_valid"`
	Issues       []string `json:"issues"`
	CorrectedSQL string   `json:"corrected_sql,omitempty"`
}

type Validator struct {
	completer llm.Completer
	logger    *slog.Logger
}

func NewValidator(completer llm.Completer, logger *slog.Logger) *Validator {
	return &Validator{completer: completer, logger: logger}
}

var (
	selectPattern       = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	fromPattern         = regexp.MustCompile(`(?i)\bFROM\b`)
	limitNumberPattern  = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	orderByPattern      = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
	groupByPattern      = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	nullEqualsPattern   = regexp.MustCompile(`(?i)(=\s*NULL|NULL\s*=)`)
	injectionOrPattern  = regexp.MustCompile(`(?i)'.*\s+OR\s+.*'`)
	injectionAndPattern = regexp.MustCompile(`(?i)'.*\s+AND\s+.*'`)
	distinctListPattern = regexp.MustCompile(`(?i)SELECT\s+DISTINCT\s+.*,`)
	fromTablePattern    = regexp.MustCompile(`(?i)\bFROM\s+([a-zA-Z0-9_]+)`)
	joinTablePattern    = regexp.MustCompile(`(?i)\bJOIN\s+([a-zA-Z0-9_]+)`)
	commentLinePattern  = regexp.MustCompile(`(?m)--.*$`)

	aggregatePattern = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
)

// Validate runs every check and merges the outcome. IsValid is the
// conjunction of "no local issues" and "the model opinion affirms".
func (v *Validator) Validate(ctx context.Context, query string, snapshot *schema.Snapshot) Result {
	localIssues := structuralIssues(query)
	localIssues = append(localIssues, heuristicIssues(query)...)
	localIssues = append(localIssues, schemaIssues(query, snapshot)...)

	opinion := v.modelOpinion(ctx, query, snapshot)

	result := Result{
		IsValid: len(localIssues) == 0 && opinion.affirmed,
		Issues:  append(localIssues, opinion.issues...),
	}
	if !result.IsValid {
		result.CorrectedSQL = opinion.correction
	}
	return result
}

func structuralIssues(query string) []string {
	stripped := strings.TrimSpace(commentLinePattern.ReplaceAllString(query, ""))
	if stripped == "" {
		return []string{"Query is empty."}
	}
	if selectPattern.MatchString(stripped) && !fromPattern.MatchString(stripped) {
		return []string{"SELECT statement is missing FROM clause."}
	}
	return nil
}

func heuristicIssues(query string) []string {
	var issues []string

	if !strings.HasSuffix(strings.TrimSpace(query), ";") {
		issues = append(issues, "Query is missing a semicolon at the end.")
	}
	if limitNumberPattern.MatchString(query) && !orderByPattern.MatchString(query) {
		issues = append(issues, "LIMIT is used without ORDER BY, which may lead to inconsistent results.")
	}
	if groupByPattern.MatchString(query) && !aggregatePattern.MatchString(query) {
		issues = append(issues, "GROUP BY is used without any aggregation functions.")
	}
	if injectionOrPattern.MatchString(query) || injectionAndPattern.MatchString(query) {
		issues = append(issues, "Potential SQL injection vulnerability detected.")
	}
	if nullEqualsPattern.MatchString(query) {
		issues = append(issues, "Incorrect NULL comparison. Use IS NULL or IS NOT NULL instead of = NULL.")
	}
	if distinctListPattern.MatchString(query) {
		issues = append(issues, "DISTINCT applies to all columns in the SELECT list, not just the first one.")
	}
	return issues
}

// schemaIssues flags FROM and JOIN targets that are not in the resolved
// snapshot. Matching is case-insensitive.
func schemaIssues(query string, snapshot *schema.Snapshot) []string {
	if snapshot == nil {
		return nil
	}
	known := make(map[string]bool, len(snapshot.AllTables))
	for _, table := range snapshot.AllTables {
		known[strings.ToLower(table)] = true
	}

	var issues []string
	seen := make(map[string]bool)
	for _, matches := range [][][]string{
		fromTablePattern.FindAllStringSubmatch(query, -1),
		joinTablePattern.FindAllStringSubmatch(query, -1),
	} {
		for _, match := range matches {
			table := strings.ToLower(match[1])
			if known[table] || seen[table] {
				continue
			}
			seen[table] = true
			issues = append(issues, fmt.Sprintf("Table '%s' is not found in the schema.", table))
		}
	}
	return issues
}

type opinion struct {
	affirmed   bool
	issues     []string
	correction string
}

const validationSystemPrompt = "You are an expert SQL validator. Check the query for errors and suggest corrections when needed. If the query is valid, state that it appears to be correct."

var numberedIssuePattern = regexp.MustCompile(`(?s)\d+\.\s+(.*?)(?:\n\d+\.|\n\n|$)`)

// modelOpinion asks the language model to review the query. An
// unreachable model degrades to an affirming opinion so validation
// never blocks the pipeline on a flaky upstream.
func (v *Validator) modelOpinion(ctx context.Context, query string, snapshot *schema.Snapshot) opinion {
	if v.completer == nil {
		return opinion{affirmed: true}
	}

	var dialectName, formattedSchema string
	if snapshot != nil {
		dialectName = snapshot.Dialect
		formattedSchema = snapshot.FormattedSchema
	}
	userPrompt := fmt.Sprintf(`Database Dialect: %s

Schema Information:
%s

SQL Query to Validate:
%s

Analyze the query for syntax errors, wrong table or column names, incorrect join conditions, misuse of functions or operators, problems with GROUP BY, ORDER BY or HAVING, and injection risks. For each issue found, explain the problem and suggest a correction. If the query is valid, state that it appears to be correct.

Validation Result:`, dialectName, formattedSchema, query)

	response, err := v.completer.Complete(ctx, validationSystemPrompt, userPrompt)
	if err != nil {
		v.logger.Warn("model validation unavailable", slog.String("error", err.Error()))
		return opinion{affirmed: true}
	}

	lower := strings.ToLower(response)
	// "invalid" contains "valid", so the negative form must be checked
	// before the bare keyword counts as an affirmation.
	affirmed := strings.Contains(lower, "appears to be correct") ||
		(strings.Contains(lower, "valid") && !strings.Contains(lower, "invalid") && !strings.Contains(lower, "not valid"))

	op := opinion{affirmed: affirmed}
	for _, match := range numberedIssuePattern.FindAllStringSubmatch(response, -1) {
		if issue := strings.TrimSpace(match[1]); issue != "" {
			op.issues = append(op.issues, issue)
		}
	}
	if !affirmed {
		op.correction = llm.ExtractCorrection(response)
	}
	return op
}
