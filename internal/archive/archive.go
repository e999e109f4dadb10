// Package archive persists completed run artifacts to object storage:
// the result rows as parquet plus a JSON manifest describing the run.
// Archiving is best-effort; a failed upload never fails the query path.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlmesa/sqlmesa/internal/dbconn"
)

// ObjectStore is the slice of object storage the archiver needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// Manifest describes one archived run.
type Manifest struct {
	SessionID  string    `json:"session_id"`
	RunID      string    `json:"run_id"`
	Question   string    `json:"question"`
	SQL        string    `json:"sql"`
	Dialect    string    `json:"dialect"`
	Columns    []string  `json:"columns,omitempty"`
	RowCount   int64     `json:"row_count"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Run is the archivable material of one completed question.
type Run struct {
	SessionID string
	RunID     string
	Question  string
	SQL       string
	Dialect   string
	Result    *dbconn.ExecutionResult
}

type Archiver struct {
	store  ObjectStore
	logger *slog.Logger
	clock  func() time.Time
}

func NewArchiver(store ObjectStore, logger *slog.Logger) *Archiver {
	return &Archiver{store: store, logger: logger, clock: time.Now}
}

// Archive uploads the run's result parquet and manifest. Errors are
// logged and swallowed; the answer has already been produced and the
// archive is an audit trail, not part of the response.
func (a *Archiver) Archive(ctx context.Context, run Run) {
	if a == nil || a.store == nil {
		return
	}
	if err := a.archive(ctx, run); err != nil {
		a.logger.Warn("archiving run failed",
			slog.String("session_id", run.SessionID),
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()))
	}
}

func (a *Archiver) archive(ctx context.Context, run Run) error {
	resultsKey, err := buildRunKey(run.SessionID, run.RunID, "results.parquet")
	if err != nil {
		return err
	}
	manifestKey, err := buildRunKey(run.SessionID, run.RunID, "manifest.json")
	if err != nil {
		return err
	}

	encoded, rowCount, err := encodeResultParquet(run)
	if err != nil {
		return err
	}
	if err := a.put(ctx, resultsKey, encoded, "application/vnd.apache.parquet"); err != nil {
		return err
	}

	manifest := Manifest{
		SessionID:  run.SessionID,
		RunID:      run.RunID,
		Question:   run.Question,
		SQL:        run.SQL,
		Dialect:    run.Dialect,
		RowCount:   rowCount,
		ArchivedAt: a.clock().UTC(),
	}
	if run.Result != nil {
		manifest.Columns = run.Result.Columns
	}
	manifestBody, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return a.put(ctx, manifestKey, manifestBody, "application/json")
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := a.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// resultRow flattens one result row for parquet. Row content stays JSON
// because result shapes vary per query.
type resultRow struct {
	SessionID string `parquet:"session_id"`
	RunID     string `parquet:"run_id"`
	RowIndex  int64  `parquet:"row_index"`
	RowJSON   string `parquet:"row_json"`
}

func encodeResultParquet(run Run) ([]byte, int64, error) {
	var rows []resultRow
	if run.Result != nil {
		for i, row := range run.Result.Rows {
			payload, err := json.Marshal(row)
			if err != nil {
				return nil, 0, fmt.Errorf("marshal result row %d: %w", i, err)
			}
			rows = append(rows, resultRow{
				SessionID: run.SessionID,
				RunID:     run.RunID,
				RowIndex:  int64(i),
				RowJSON:   string(payload),
			})
		}
	}
	if len(rows) == 0 {
		// Non-select or empty result: archive a single marker row so the
		// parquet file is never empty.
		rows = []resultRow{{SessionID: run.SessionID, RunID: run.RunID, RowIndex: -1, RowJSON: "{}"}}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[resultRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, 0, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("close parquet writer: %w", err)
	}

	var count int64
	if run.Result != nil {
		count = int64(len(run.Result.Rows))
	}
	return buf.Bytes(), count, nil
}

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

func buildRunKey(sessionID, runID, name string) (string, error) {
	if !keyComponentPattern.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id: %q", sessionID)
	}
	if !keyComponentPattern.MatchString(runID) {
		return "", fmt.Errorf("invalid run id: %q", runID)
	}
	return path.Join(sessionID, runID, name), nil
}
