// Package dbtest provides throwaway databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "modernc.org/sqlite"
)

// PostgresEnv names the server URL used by Postgres tests. The URL must
// allow creating databases.
const PostgresEnv = "PANTRY_TEST_POSTGRES_URL"

// TestDB is a database that only lives for the duration of a test
type TestDB struct {
	DB      *sqlx.DB
	Name    string
	ConnStr string
	t       testing.TB
}

// SQLite opens a private in-memory database
func SQLite(t testing.TB) *TestDB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return &TestDB{DB: db, Name: ":memory:", ConnStr: ":memory:", t: t}
}

// Postgres creates a fresh database on the server named by PostgresEnv and
// drops it when the test ends. The test is skipped when the variable is unset
// or -short is given.
func Postgres(t testing.TB) *TestDB {
	t.Helper()

	base := os.Getenv(PostgresEnv)
	if base == "" {
		t.Skipf("%s not set", PostgresEnv)
	}
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("Invalid %s: %v", PostgresEnv, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := sqlx.ConnectContext(ctx, "postgres", base)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer admin.Close()

	name := "pantry_test_" + uuid.New().String()[:8]
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	u.Path = "/" + name
	tdb := &TestDB{Name: name, ConnStr: u.String(), t: t}
	tdb.DB, err = sqlx.ConnectContext(ctx, "postgres", tdb.ConnStr)
	if err != nil {
		tdb.drop(base)
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	t.Cleanup(func() {
		tdb.DB.Close()
		tdb.drop(base)
	})
	return tdb
}

func (tdb *TestDB) drop(base string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := sqlx.ConnectContext(ctx, "postgres", base)
	if err != nil {
		tdb.t.Logf("Failed to connect for cleanup: %v", err)
		return
	}
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`, tdb.Name); err != nil {
		tdb.t.Logf("Failed to terminate connections: %v", err)
	}

	if _, err := admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(tdb.Name)); err != nil {
		tdb.t.Logf("Failed to drop test database: %v", err)
	}
}

// TableExists checks if a table exists in the test database
func (tdb *TestDB) TableExists(table string) (bool, error) {
	var query string
	switch tdb.DB.DriverName() {
	case "postgres":
		query = `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`
	default:
		query = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`
	}

	var exists bool
	if err := tdb.DB.Get(&exists, query, table); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// RowCount returns the number of rows in a table
func (tdb *TestDB) RowCount(table string) int {
	tdb.t.Helper()
	var n int
	if err := tdb.DB.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		tdb.t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
