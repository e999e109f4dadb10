package validate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sqlmesa/sqlmesa/internal/schema"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Dialect:         "postgresql",
		AllTables:       []string{"orders", "customers"},
		RelevantTables:  []string{"orders"},
		FormattedSchema: "-- Table: orders\nCREATE TABLE orders (\n\tid bigint\n);",
	}
}

func newTestValidator(c *fakeCompleter) *Validator {
	return NewValidator(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateAffirmsCleanQuery(t *testing.T) {
	v := newTestValidator(&fakeCompleter{response: "The query appears to be correct."})
	result := v.Validate(context.Background(), "SELECT id FROM orders ORDER BY id LIMIT 5;", testSnapshot())
	if !result.IsValid {
		t.Fatalf("IsValid = false, issues: %v", result.Issues)
	}
	if result.CorrectedSQL != "" {
		t.Fatalf("CorrectedSQL = %q, want empty", result.CorrectedSQL)
	}
}

func TestValidateGroupByWithoutAggregate(t *testing.T) {
	// The model opinion affirming does not rescue a local hard issue.
	v := newTestValidator(&fakeCompleter{response: "The query appears to be correct."})
	result := v.Validate(context.Background(), "SELECT a, b FROM orders GROUP BY a;", testSnapshot())
	if result.IsValid {
		t.Fatal("IsValid = true for GROUP BY without aggregate")
	}
	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue, "GROUP BY") && strings.Contains(issue, "aggregation") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing GROUP BY issue in %v", result.Issues)
	}
}

func TestValidateSelectWithoutFrom(t *testing.T) {
	v := newTestValidator(&fakeCompleter{response: "The query appears to be correct."})
	result := v.Validate(context.Background(), "SELECT 1 + 1;", testSnapshot())
	if result.IsValid {
		t.Fatal("IsValid = true for SELECT without FROM")
	}
	if !containsIssue(result.Issues, "missing FROM clause") {
		t.Fatalf("issues = %v", result.Issues)
	}
}

func TestValidateHeuristics(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"SELECT id FROM orders ORDER BY id", "missing a semicolon"},
		{"SELECT id FROM orders LIMIT 5;", "LIMIT is used without ORDER BY"},
		{"SELECT id FROM orders WHERE x = NULL;", "Incorrect NULL comparison"},
		{"SELECT id FROM orders WHERE name = 'a OR b';", "injection"},
		{"SELECT DISTINCT a, b FROM orders;", "DISTINCT applies to all columns"},
	}
	v := newTestValidator(&fakeCompleter{response: "The query appears to be correct."})
	for _, tc := range cases {
		result := v.Validate(context.Background(), tc.query, testSnapshot())
		if result.IsValid {
			t.Fatalf("IsValid = true for %q", tc.query)
		}
		if !containsIssue(result.Issues, tc.want) {
			t.Fatalf("query %q: issues %v missing %q", tc.query, result.Issues, tc.want)
		}
	}
}

func TestValidateUnknownTable(t *testing.T) {
	v := newTestValidator(&fakeCompleter{response: "The query appears to be correct."})
	result := v.Validate(context.Background(), "SELECT id FROM shipments ORDER BY id;", testSnapshot())
	if result.IsValid {
		t.Fatal("IsValid = true for unknown table")
	}
	if !containsIssue(result.Issues, "'shipments' is not found") {
		t.Fatalf("issues = %v", result.Issues)
	}
}

func TestValidateCaseInsensitiveTableMatch(t *testing.T) {
	v := newTestValidator(&fakeCompleter{response: "The query appears to be correct."})
	result := v.Validate(context.Background(), "SELECT id FROM Orders JOIN CUSTOMERS ON true ORDER BY id;", testSnapshot())
	if !result.IsValid {
		t.Fatalf("IsValid = false, issues: %v", result.Issues)
	}
}

func TestValidateExtractsCorrection(t *testing.T) {
	response := "The query is invalid.\n1. Column total does not exist.\n\nCorrected query: SELECT id FROM orders ORDER BY id"
	v := newTestValidator(&fakeCompleter{response: response})
	result := v.Validate(context.Background(), "SELECT id FROM orders ORDER BY id;", testSnapshot())
	if result.IsValid {
		t.Fatal("IsValid = true despite negative opinion")
	}
	if result.CorrectedSQL != "SELECT id FROM orders ORDER BY id" {
		t.Fatalf("CorrectedSQL = %q", result.CorrectedSQL)
	}
	if !containsIssue(result.Issues, "Column total does not exist") {
		t.Fatalf("issues = %v", result.Issues)
	}
}

func TestValidateNoExtractableCorrection(t *testing.T) {
	v := newTestValidator(&fakeCompleter{response: "This query is invalid but I cannot propose a fix."})
	result := v.Validate(context.Background(), "SELECT id FROM orders ORDER BY id;", testSnapshot())
	if result.IsValid {
		t.Fatal("IsValid = true despite negative opinion")
	}
	if result.CorrectedSQL != "" {
		t.Fatalf("CorrectedSQL = %q, want empty", result.CorrectedSQL)
	}
}

func TestValidateModelFailureDegradesToAffirm(t *testing.T) {
	v := newTestValidator(&fakeCompleter{err: fmt.Errorf("model down")})
	result := v.Validate(context.Background(), "SELECT id FROM orders ORDER BY id;", testSnapshot())
	if !result.IsValid {
		t.Fatalf("IsValid = false when only the model failed: %v", result.Issues)
	}
}

func TestValidatePromptCarriesSchemaAndDialect(t *testing.T) {
	completer := &fakeCompleter{response: "The query appears to be correct."}
	v := newTestValidator(completer)
	v.Validate(context.Background(), "SELECT id FROM orders ORDER BY id;", testSnapshot())
	if len(completer.prompts) != 1 {
		t.Fatalf("prompt count = %d", len(completer.prompts))
	}
	prompt := completer.prompts[0]
	for _, want := range []string{"Database Dialect: postgresql", "-- Table: orders", "SELECT id FROM orders"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func containsIssue(issues []string, fragment string) bool {
	for _, issue := range issues {
		if strings.Contains(issue, fragment) {
			return true
		}
	}
	return false
}
