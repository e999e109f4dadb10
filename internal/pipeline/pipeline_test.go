package pipeline

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlmesa/sqlmesa/internal/agent"
	"github.com/sqlmesa/sqlmesa/internal/config"
	"github.com/sqlmesa/sqlmesa/internal/dbconn"
	"github.com/sqlmesa/sqlmesa/internal/session"
)

// fakeAI answers generation, validation and answer prompts with scripted
// responses and ranks every table identically for embeddings.
type fakeAI struct {
	responses []string
	calls     int
}

func (f *fakeAI) Complete(_ context.Context, _, _ string) (string, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeAI) Embed(_ context.Context, inputs []string) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i := range inputs {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func TestRunAnswersQuestionAgainstMockDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Schema resolution.
	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}).
			AddRow("id", "bigint", "NO", ""))
	mock.ExpectQuery(regexp.QuoteMeta("constraint_type = 'PRIMARY KEY'")).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(regexp.QuoteMeta("constraint_type = 'FOREIGN KEY'")).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pg_indexes")).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"indexname"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" LIMIT 3`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	// Execution of the generated query.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS order_count FROM orders")).
		WillReturnRows(sqlmock.NewRows([]string{"order_count"}).AddRow(int64(42)))

	ai := &fakeAI{responses: []string{
		"```sql\nSELECT COUNT(*) AS order_count FROM orders\n```",
		"The query appears to be correct.",
		"There are 42 orders.",
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(ai, nil, config.PipelineConfig{
		MaxRetries:   3,
		TopK:         5,
		SampleRows:   3,
		QueryTimeout: time.Second,
	}, logger)

	sess := &session.Session{
		ID:      "sess-1",
		Dialect: "postgresql",
		Handle:  &dbconn.Handle{DB: db, Dialect: "postgresql"},
	}

	state := p.Run(context.Background(), sess, "how many orders are there")

	if state.Phase != agent.PhaseAnswered {
		t.Fatalf("Phase = %q, err = %q", state.Phase, state.Err)
	}
	if state.FinalAnswer != "There are 42 orders." {
		t.Fatalf("FinalAnswer = %q", state.FinalAnswer)
	}
	if state.Execution == nil || !state.Execution.Success {
		t.Fatalf("Execution = %+v", state.Execution)
	}
	if len(state.Execution.Result.Rows) != 1 {
		t.Fatalf("rows = %v", state.Execution.Result.Rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
