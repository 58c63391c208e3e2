package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eleven-am/pantry/internal/migrator"
)

// ensureDatabase creates the configured database when it does not exist yet
func ensureDatabase(ctx context.Context, out io.Writer, driver, dsn string) error {
	d, err := migrator.DialectFor(driver)
	if err != nil {
		return err
	}

	switch d.(type) {
	case migrator.Postgres:
		return ensurePostgresDatabase(ctx, out, dsn)
	case migrator.SQLite:
		return ensureSQLiteDirectory(out, dsn)
	}
	return nil
}

func ensurePostgresDatabase(ctx context.Context, out io.Writer, dsn string) error {
	dbName, adminDSN, err := adminDSN(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse DSN: %w", err)
	}

	adminDB, err := sqlx.ConnectContext(ctx, "postgres", adminDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to admin database: %w", err)
	}
	defer adminDB.Close()

	var exists bool
	if err := adminDB.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName); err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := adminDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", dbName, err)
	}
	fmt.Fprintf(out, "Created database %q\n", dbName)
	return nil
}

// ensureSQLiteDirectory creates the directory of a SQLite database file
func ensureSQLiteDirectory(out io.Writer, dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for database: %w", err)
	}
	fmt.Fprintf(out, "Created directory %s\n", dir)
	return nil
}

// adminDSN extracts the database name and returns a DSN for the postgres
// maintenance database on the same server
func adminDSN(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse URL: %w", err)
		}

		dbName := strings.TrimPrefix(u.Path, "/")
		if dbName == "" {
			return "", "", fmt.Errorf("no database name in URL")
		}

		u.Path = "/postgres"
		return dbName, u.String(), nil
	}

	var (
		dbName string
		parts  []string
	)
	for _, part := range strings.Fields(dsn) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if key == "dbname" {
			dbName = value
			value = "postgres"
		}
		parts = append(parts, key+"="+value)
	}
	if dbName == "" {
		return "", "", fmt.Errorf("no dbname found in DSN")
	}

	return dbName, strings.Join(parts, " "), nil
}
