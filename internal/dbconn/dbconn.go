// Package dbconn opens and drives connections to the user databases the
// service answers questions against. Drivers are linked for postgres,
// mysql, sqlite and duckdb; other dialects fail at connect time with a
// clear error instead of at query time.
package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/sqlmesa/sqlmesa/internal/dialect"
)

// ErrNotConnected is returned for operations that need a live session
// connection when none exists.
var ErrNotConnected = errors.New("not connected to a database")

// Params carries the connection details submitted by the client.
type Params struct {
	DBType   string `json:"db_type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// Handle wraps an open connection pool together with its normalized
// dialect name.
type Handle struct {
	DB      *sql.DB
	Dialect string
}

func (h *Handle) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	return h.DB.Close()
}

// Open validates the params, builds the driver DSN and verifies the
// connection with a ping bounded by connectTimeout.
func Open(ctx context.Context, params Params, connectTimeout time.Duration) (*Handle, error) {
	normalized := dialect.Normalize(params.DBType)
	driver, dsn, err := buildDSN(normalized, params)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", normalized, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database %q: %w", normalized, params.Database, err)
	}

	return &Handle{DB: db, Dialect: normalized}, nil
}

func buildDSN(normalized string, params Params) (driver, dsn string, err error) {
	switch normalized {
	case dialect.Postgres:
		sslMode := params.SSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(params.Username, params.Password),
			Host:   fmt.Sprintf("%s:%d", params.Host, params.Port),
			Path:   "/" + params.Database,
		}
		q := u.Query()
		q.Set("sslmode", sslMode)
		u.RawQuery = q.Encode()
		return "pgx", u.String(), nil
	case dialect.MySQL:
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			params.Username, params.Password, params.Host, params.Port, params.Database), nil
	case dialect.SQLite:
		if strings.TrimSpace(params.Database) == "" {
			return "", "", fmt.Errorf("sqlite requires a database file path")
		}
		return "sqlite", params.Database, nil
	case dialect.DuckDB:
		// Empty path opens an in-memory database, which is a valid target.
		return "duckdb", params.Database, nil
	case dialect.MSSQL, dialect.Oracle:
		return "", "", fmt.Errorf("dialect %q is supported for query adaptation but no driver is bundled", normalized)
	default:
		return "", "", fmt.Errorf("unsupported database type %q", params.DBType)
	}
}

// ExecutionResult is the row set or affected count produced by running a
// statement.
type ExecutionResult struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowsAffected int64            `json:"rows_affected,omitempty"`
	IsSelect     bool             `json:"is_select"`
}

// Execute runs a statement on the handle. SELECT-shaped statements are
// fetched as a full row set; everything else reports the affected count.
func (h *Handle) Execute(ctx context.Context, query string) (*ExecutionResult, error) {
	if h == nil || h.DB == nil {
		return nil, ErrNotConnected
	}

	if isSelect(query) {
		return h.queryRows(ctx, query)
	}

	res, err := h.DB.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &ExecutionResult{RowsAffected: affected, IsSelect: false}, nil
}

func (h *Handle) queryRows(ctx context.Context, query string) (*ExecutionResult, error) {
	rows, err := h.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	result := &ExecutionResult{Columns: columns, Rows: []map[string]any{}, IsSelect: true}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}

func isSelect(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH")
}

// Drivers hand back []byte for text columns; convert so JSON encoding
// produces strings instead of base64.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
