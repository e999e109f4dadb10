// Package schema introspects the connected database and renders the
// textual schema context handed to the generation capability.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sqlmesa/sqlmesa/internal/dialect"
)

// Column describes one table column.
type Column struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	Default      string `json:"default,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// ForeignKey describes one outgoing reference.
type ForeignKey struct {
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredTable      string   `json:"referred_table"`
	ReferredColumns    []string `json:"referred_columns"`
}

// TableSchema is the structural description of a single table.
type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	Indexes     []string     `json:"indexes"`
}

// Inspector reads catalog metadata for one open connection.
type Inspector struct {
	db      *sql.DB
	dialect string
}

func NewInspector(db *sql.DB, dialectName string) *Inspector {
	return &Inspector{db: db, dialect: dialect.Normalize(dialectName)}
}

// AllTables lists the user tables in catalog order.
func (in *Inspector) AllTables(ctx context.Context) ([]string, error) {
	var query string
	switch in.dialect {
	case dialect.SQLite:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case dialect.MySQL:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	case dialect.DuckDB:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
	}

	rows, err := in.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	return tables, nil
}

// TableSchema collects columns, keys and indexes for one table. Foreign
// key and index introspection failures degrade to empty lists so a
// partially readable catalog still yields usable context.
func (in *Inspector) TableSchema(ctx context.Context, table string) (TableSchema, error) {
	if in.dialect == dialect.SQLite {
		return in.sqliteTableSchema(ctx, table)
	}

	ts := TableSchema{Name: table}

	columnQuery := `SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_name = ? ORDER BY ordinal_position`
	rows, err := in.db.QueryContext(ctx, in.rebind(columnQuery), table)
	if err != nil {
		return ts, fmt.Errorf("inspect columns of %q: %w", table, err)
	}
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Default); err != nil {
			_ = rows.Close()
			return ts, fmt.Errorf("scan column of %q: %w", table, err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		ts.Columns = append(ts.Columns, col)
	}
	closeErr := rows.Err()
	_ = rows.Close()
	if closeErr != nil {
		return ts, fmt.Errorf("iterate columns of %q: %w", table, closeErr)
	}
	if len(ts.Columns) == 0 {
		return ts, fmt.Errorf("table %q has no visible columns", table)
	}

	ts.PrimaryKeys = in.primaryKeys(ctx, table)
	for i := range ts.Columns {
		for _, pk := range ts.PrimaryKeys {
			if ts.Columns[i].Name == pk {
				ts.Columns[i].IsPrimaryKey = true
			}
		}
	}
	ts.ForeignKeys = in.foreignKeys(ctx, table)
	ts.Indexes = in.indexes(ctx, table)
	return ts, nil
}

func (in *Inspector) primaryKeys(ctx context.Context, table string) []string {
	query := `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_name = tc.table_name
WHERE tc.table_name = ? AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`
	rows, err := in.db.QueryContext(ctx, in.rebind(query), table)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return keys
		}
		keys = append(keys, name)
	}
	return keys
}

func (in *Inspector) foreignKeys(ctx context.Context, table string) []ForeignKey {
	var query string
	switch in.dialect {
	case dialect.MySQL:
		query = `SELECT column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL
ORDER BY ordinal_position`
	case dialect.DuckDB:
		// duckdb's information_schema does not expose references.
		return nil
	default:
		query = `SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON kcu.constraint_name = tc.constraint_name
JOIN information_schema.constraint_column_usage ccu ON ccu.constraint_name = tc.constraint_name
WHERE tc.table_name = ? AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY kcu.ordinal_position`
	}

	rows, err := in.db.QueryContext(ctx, in.rebind(query), table)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var fks []ForeignKey
	for rows.Next() {
		var column, referredTable, referredColumn string
		if err := rows.Scan(&column, &referredTable, &referredColumn); err != nil {
			return fks
		}
		fks = append(fks, ForeignKey{
			ConstrainedColumns: []string{column},
			ReferredTable:      referredTable,
			ReferredColumns:    []string{referredColumn},
		})
	}
	return fks
}

func (in *Inspector) indexes(ctx context.Context, table string) []string {
	var query string
	switch in.dialect {
	case dialect.MySQL:
		query = `SELECT DISTINCT index_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? ORDER BY index_name`
	case dialect.Postgres:
		query = `SELECT indexname FROM pg_indexes WHERE tablename = ? ORDER BY indexname`
	default:
		return nil
	}

	rows, err := in.db.QueryContext(ctx, in.rebind(query), table)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names
		}
		names = append(names, name)
	}
	return names
}

// SampleRows fetches up to limit rows. Failures are not fatal to schema
// resolution; the caller treats an error as "no samples".
func (in *Inspector) SampleRows(ctx context.Context, table string, limit int) ([]string, []map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", in.quoteIdent(table), limit)
	rows, err := in.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("sample %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("sample columns of %q: %w", table, err)
	}

	var samples []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, fmt.Errorf("scan sample of %q: %w", table, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		samples = append(samples, row)
	}
	return columns, samples, rows.Err()
}

func (in *Inspector) sqliteTableSchema(ctx context.Context, table string) (TableSchema, error) {
	ts := TableSchema{Name: table}

	rows, err := in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", in.quoteIdent(table)))
	if err != nil {
		return ts, fmt.Errorf("inspect columns of %q: %w", table, err)
	}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return ts, fmt.Errorf("scan column of %q: %w", table, err)
		}
		col := Column{Name: name, Type: colType, Nullable: notNull == 0, Default: dflt.String, IsPrimaryKey: pk > 0}
		if col.IsPrimaryKey {
			ts.PrimaryKeys = append(ts.PrimaryKeys, name)
		}
		ts.Columns = append(ts.Columns, col)
	}
	closeErr := rows.Err()
	_ = rows.Close()
	if closeErr != nil {
		return ts, fmt.Errorf("iterate columns of %q: %w", table, closeErr)
	}
	if len(ts.Columns) == 0 {
		return ts, fmt.Errorf("table %q has no visible columns", table)
	}

	fkRows, err := in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", in.quoteIdent(table)))
	if err == nil {
		for fkRows.Next() {
			var id, seq int
			var referredTable, from, to, onUpdate, onDelete, match string
			if err := fkRows.Scan(&id, &seq, &referredTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				break
			}
			ts.ForeignKeys = append(ts.ForeignKeys, ForeignKey{
				ConstrainedColumns: []string{from},
				ReferredTable:      referredTable,
				ReferredColumns:    []string{to},
			})
		}
		_ = fkRows.Close()
	}
	return ts, nil
}

// rebind converts ? placeholders to $n for drivers that want them.
func (in *Inspector) rebind(query string) string {
	if in.dialect != dialect.Postgres && in.dialect != dialect.DuckDB {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (in *Inspector) quoteIdent(name string) string {
	switch in.dialect {
	case dialect.MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}
