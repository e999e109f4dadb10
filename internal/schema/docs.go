package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sqlmesa/sqlmesa/internal/search"
)

// Documents renders one searchable document per table, used to build a
// session's table search index at connect time.
func Documents(ctx context.Context, db *sql.DB, dialectName string) ([]search.Document, error) {
	in := NewInspector(db, dialectName)
	tables, err := in.AllTables(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]search.Document, 0, len(tables))
	for _, name := range tables {
		ts, err := in.TableSchema(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("describe table %q: %w", name, err)
		}
		docs = append(docs, search.Document{
			Table: name,
			Text:  renderCreateStatement(ts),
		})
	}
	return docs, nil
}
