package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sqlmesa/sqlmesa/internal/search"
)

// Snapshot is the schema context resolved for one question. It is
// computed fresh per question; a new question may need a different
// table subset.
type Snapshot struct {
	Dialect         string                 `json:"dialect"`
	AllTables       []string               `json:"all_tables"`
	RelevantTables  []string               `json:"relevant_tables"`
	FormattedSchema string                 `json:"formatted_schema"`
	Tables          map[string]TableSchema `json:"tables_info"`
}

// Resolver narrows the schema to the tables relevant to a question and
// renders the formatted context.
type Resolver struct {
	inspector  *Inspector
	search     search.TableSearch
	topK       int
	sampleRows int
	logger     *slog.Logger
}

func NewResolver(db *sql.DB, dialectName string, ts search.TableSearch, topK, sampleRows int, logger *slog.Logger) *Resolver {
	if topK <= 0 {
		topK = 5
	}
	if sampleRows <= 0 {
		sampleRows = 3
	}
	return &Resolver{
		inspector:  NewInspector(db, dialectName),
		search:     ts,
		topK:       topK,
		sampleRows: sampleRows,
		logger:     logger,
	}
}

// Resolve builds the snapshot for a question.
func (r *Resolver) Resolve(ctx context.Context, question string) (*Snapshot, error) {
	allTables, err := r.inspector.AllTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(allTables) == 0 {
		return nil, fmt.Errorf("database has no tables to query")
	}

	relevant := r.relevantTables(ctx, question, allTables)

	contexts := make([]TableContext, 0, len(relevant))
	tables := make(map[string]TableSchema, len(relevant))
	for _, name := range relevant {
		ts, err := r.inspector.TableSchema(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve schema of %q: %w", name, err)
		}
		tables[name] = ts

		tc := TableContext{Schema: ts}
		columns, rows, err := r.inspector.SampleRows(ctx, name, r.sampleRows)
		if err != nil {
			// Samples improve generation but are not required.
			r.logger.Warn("sampling table failed", slog.String("table", name), slog.String("error", err.Error()))
		} else {
			tc.SampleColumns = columns
			tc.SampleRows = rows
		}
		contexts = append(contexts, tc)
	}

	return &Snapshot{
		Dialect:         r.inspector.dialect,
		AllTables:       allTables,
		RelevantTables:  relevant,
		FormattedSchema: Format(contexts),
		Tables:          tables,
	}, nil
}

// relevantTables ranks tables against the question and keeps the names
// that exist in allTables, preserving allTables order. A failed or empty
// search degrades to the full table list, never to an error.
func (r *Resolver) relevantTables(ctx context.Context, question string, allTables []string) []string {
	if r.search == nil {
		return allTables
	}

	ranked, err := r.search.TopK(ctx, question, r.topK)
	if err != nil {
		r.logger.Warn("table search failed, using all tables", slog.String("error", err.Error()))
		return allTables
	}

	hits := make(map[string]bool, len(ranked))
	for _, name := range ranked {
		hits[name] = true
	}
	var relevant []string
	for _, name := range allTables {
		if hits[name] {
			relevant = append(relevant, name)
		}
	}
	if len(relevant) == 0 {
		return allTables
	}
	return relevant
}
