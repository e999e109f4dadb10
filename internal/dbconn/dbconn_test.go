package dbconn

import (
	"context"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestBuildDSNPostgres(t *testing.T) {
	driver, dsn, err := buildDSN("postgresql", Params{
		Host: "db.local", Port: 5432, Database: "sales",
		Username: "app", Password: "s3cret",
	})
	if err != nil {
		t.Fatalf("buildDSN() error: %v", err)
	}
	if driver != "pgx" {
		t.Fatalf("driver = %q", driver)
	}
	for _, want := range []string{"postgres://", "db.local:5432", "/sales", "sslmode=prefer"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestBuildDSNMySQL(t *testing.T) {
	driver, dsn, err := buildDSN("mysql", Params{
		Host: "127.0.0.1", Port: 3306, Database: "shop",
		Username: "root", Password: "pw",
	})
	if err != nil {
		t.Fatalf("buildDSN() error: %v", err)
	}
	if driver != "mysql" {
		t.Fatalf("driver = %q", driver)
	}
	if dsn != "root:pw@tcp(127.0.0.1:3306)/shop?parseTime=true" {
		t.Fatalf("dsn = %q", dsn)
	}
}

func TestBuildDSNSQLiteRequiresPath(t *testing.T) {
	if _, _, err := buildDSN("sqlite", Params{}); err == nil {
		t.Fatal("expected error for empty sqlite path")
	}
	driver, dsn, err := buildDSN("sqlite", Params{Database: "/tmp/app.db"})
	if err != nil {
		t.Fatalf("buildDSN() error: %v", err)
	}
	if driver != "sqlite" || dsn != "/tmp/app.db" {
		t.Fatalf("driver=%q dsn=%q", driver, dsn)
	}
}

func TestBuildDSNUnsupportedDialects(t *testing.T) {
	for _, dbType := range []string{"mssql", "oracle"} {
		_, _, err := buildDSN(dbType, Params{Database: "x"})
		if err == nil {
			t.Fatalf("expected no-driver error for %s", dbType)
		}
		if !strings.Contains(err.Error(), "no driver is bundled") {
			t.Fatalf("error = %v", err)
		}
	}
	if _, _, err := buildDSN("fancydb", Params{}); err == nil {
		t.Fatal("expected error for unknown db type")
	}
}

func TestExecuteSelectCollectsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("ada")).
			AddRow(int64(2), []byte("grace")),
	)

	h := &Handle{DB: db, Dialect: "postgresql"}
	result, err := h.Execute(context.Background(), "SELECT id, name FROM users")
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !result.IsSelect {
		t.Fatal("expected IsSelect")
	}
	if len(result.Rows) != 2 || result.RowsAffected != 2 {
		t.Fatalf("rows = %d, affected = %d", len(result.Rows), result.RowsAffected)
	}
	if result.Rows[0]["name"] != "ada" {
		t.Fatalf("byte column not converted to string: %#v", result.Rows[0]["name"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExecuteNonSelectReportsAffected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE users SET active = false").
		WillReturnResult(sqlmock.NewResult(0, 3))

	h := &Handle{DB: db, Dialect: "postgresql"}
	result, err := h.Execute(context.Background(), "UPDATE users SET active = false")
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.IsSelect {
		t.Fatal("expected non-select result")
	}
	if result.RowsAffected != 3 {
		t.Fatalf("RowsAffected = %d", result.RowsAffected)
	}
}

func TestExecuteOnNilHandle(t *testing.T) {
	var h *Handle
	if _, err := h.Execute(context.Background(), "SELECT 1"); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() on nil handle: %v", err)
	}
}
