package dialect

import (
	"strings"
	"testing"
)

func TestAdaptPostgresIsIdentity(t *testing.T) {
	sql := "SELECT name, total FROM orders ORDER BY total DESC LIMIT 10"
	if got := Adapt(sql, "postgresql"); got != sql {
		t.Fatalf("Adapt() = %q, want input unchanged", got)
	}
}

func TestAdaptIsIdempotent(t *testing.T) {
	cases := []struct {
		dialect string
		sql     string
	}{
		{"postgresql", "SELECT a || b FROM t LIMIT 5"},
		{"mysql", "SELECT id FROM t WHERE x = 1"},
		{"sqlite", "SELECT id FROM t ORDER BY id"},
		{"mssql", "SELECT TOP 3 id FROM t"},
		{"oracle", "SELECT id FROM t WHERE ROWNUM <= 3"},
	}
	for _, tc := range cases {
		once := Adapt(tc.sql, tc.dialect)
		twice := Adapt(once, tc.dialect)
		if once != twice {
			t.Fatalf("Adapt(%q, %q) not idempotent: %q vs %q", tc.sql, tc.dialect, once, twice)
		}
	}
}

func TestAdaptMySQLRewrites(t *testing.T) {
	got := Adapt("SELECT id FROM t ORDER BY id OFFSET 10 ROWS", "mysql")
	want := "SELECT id FROM t ORDER BY id OFFSET 10"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}

	got = Adapt("SELECT first || last FROM people", "mysql")
	want = "SELECT CONCAT(first, last) FROM people"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}

	got = Adapt("SELECT * FROM t WHERE REGEXP_LIKE(name, '^a')", "mysql")
	want = "SELECT * FROM t WHERE name REGEXP '^a'"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}
}

func TestAdaptSQLiteRewrites(t *testing.T) {
	got := Adapt("SELECT ISNULL(nick, name) FROM users", "sqlite")
	want := "SELECT IFNULL(nick, name) FROM users"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}

	got = Adapt("SELECT TOP 4 id FROM t ORDER BY id", "sqlite")
	want = "SELECT id FROM t ORDER BY id LIMIT 4"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}

	got = Adapt("SELECT id FROM t ORDER BY id OFFSET 2 ROWS", "sqlite")
	want = "SELECT id FROM t ORDER BY id OFFSET 2"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}
}

func TestAdaptMSSQLLimitBecomesTop(t *testing.T) {
	got := Adapt("SELECT * FROM orders LIMIT 5", "mssql")
	want := "SELECT TOP 5 * FROM orders"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}
}

func TestAdaptMSSQLConcatAndRegexp(t *testing.T) {
	got := Adapt("SELECT CONCAT(first, last) FROM people", "mssql")
	want := "SELECT first + last FROM people"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}

	got = Adapt("SELECT * FROM t WHERE REGEXP_LIKE(name, '%a%')", "mssql")
	want = "SELECT * FROM t WHERE name LIKE '%a%'"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}
}

func TestAdaptOracleLimitBecomesRownum(t *testing.T) {
	got := Adapt("SELECT id FROM t LIMIT 10", "oracle")
	want := "SELECT * FROM (SELECT id FROM t) WHERE ROWNUM <= 10"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}
}

func TestAdaptOracleIsnullBecomesNvl(t *testing.T) {
	got := Adapt("SELECT ISNULL(nick, name) FROM users", "oracle")
	want := "SELECT NVL(nick, name) FROM users"
	if got != want {
		t.Fatalf("Adapt() = %q, want %q", got, want)
	}
}

func TestAdaptUnknownDialectPassesThrough(t *testing.T) {
	sql := "SELECT 1 LIMIT 3"
	if got := Adapt(sql, "snowflake"); got != sql {
		t.Fatalf("Adapt() = %q, want passthrough", got)
	}
}

func TestNormalizeAliases(t *testing.T) {
	cases := map[string]string{
		"Postgres":  Postgres,
		"sqlserver": MSSQL,
		"sqlite3":   SQLite,
		"MariaDB":   MySQL,
		"weirddb":   "weirddb",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFeaturesKnownAndUnknownDialects(t *testing.T) {
	pg := Features("postgres")
	if !pg.SupportsArrays {
		t.Fatal("postgres should support arrays")
	}
	lite := Features("sqlite")
	if lite.SupportsWindowFns || lite.SupportsCTEs || lite.SupportsJSON {
		t.Fatalf("sqlite features too permissive: %+v", lite)
	}
	unknown := Features("exoticdb")
	if !unknown.SupportsWindowFns || !unknown.SupportsCTEs || !unknown.SupportsJSON {
		t.Fatalf("unknown dialect should default permissive: %+v", unknown)
	}
	if unknown.Name != "exoticdb" {
		t.Fatalf("unknown.Name = %q", unknown.Name)
	}
}

func TestFeatureBriefMentionsDialect(t *testing.T) {
	brief := Features("mysql").Brief()
	for _, want := range []string{"Dialect: mysql", "GROUP_CONCAT", "Window Functions: true"} {
		if !strings.Contains(brief, want) {
			t.Fatalf("Brief() missing %q:\n%s", want, brief)
		}
	}
}
