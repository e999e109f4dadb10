package llm

import (
	"regexp"
	"strings"
)

var (
	sqlFencePattern  = regexp.MustCompile("(?s)```sql\\s*(.*?)```")
	bareFencePattern = regexp.MustCompile("(?s)```\\s*(.*?)```")

	correctionLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?is)corrected query:\s*(.+?)(?:\n\n|$)`),
		regexp.MustCompile(`(?is)suggested correction:\s*(.+?)(?:\n\n|$)`),
		regexp.MustCompile(`(?is)here'?s the corrected query:\s*(.+?)(?:\n\n|$)`),
	}
)

// ExtractSQL pulls the SQL statement out of a model response. Models wrap
// queries in markdown fences, prepend prose, or return the bare statement;
// the layers below try the most structured form first and degrade to
// returning the trimmed text as-is.
func ExtractSQL(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if match := sqlFencePattern.FindStringSubmatch(trimmed); match != nil {
		if candidate := strings.TrimSpace(match[1]); candidate != "" {
			return candidate
		}
	}
	if match := bareFencePattern.FindStringSubmatch(trimmed); match != nil {
		if candidate := strings.TrimSpace(match[1]); looksLikeSQL(candidate) {
			return candidate
		}
	}

	// Prose around the query: take the block starting at the first line
	// that opens with a SQL keyword and keep lines until a blank one.
	lines := strings.Split(trimmed, "\n")
	for i, line := range lines {
		if !looksLikeSQL(strings.TrimSpace(line)) {
			continue
		}
		var block []string
		for _, rest := range lines[i:] {
			if strings.TrimSpace(rest) == "" {
				break
			}
			block = append(block, rest)
		}
		return strings.TrimSpace(strings.Join(block, "\n"))
	}

	return trimmed
}

// ExtractCorrection finds a corrected query in validator feedback. It
// returns the empty string when the feedback carries no extractable
// correction.
func ExtractCorrection(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if match := sqlFencePattern.FindStringSubmatch(trimmed); match != nil {
		if candidate := strings.TrimSpace(match[1]); candidate != "" {
			return candidate
		}
	}

	for _, pattern := range correctionLabels {
		match := pattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		candidate := strings.TrimSpace(match[1])
		candidate = strings.Trim(candidate, "`")
		if candidate != "" {
			return strings.TrimSpace(candidate)
		}
	}

	return ""
}

var sqlStarters = []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER"}

func looksLikeSQL(line string) bool {
	upper := strings.ToUpper(line)
	for _, kw := range sqlStarters {
		if strings.HasPrefix(upper, kw+" ") || upper == kw {
			return true
		}
	}
	return false
}
