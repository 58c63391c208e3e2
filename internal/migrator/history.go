package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Record is one applied change as persisted in the history log
type Record struct {
	Version       int
	Description   string
	Forward       string
	Preconditions string
	Checksum      string
	AppliedAt     time.Time
}

type recordRow struct {
	Version       int    `db:"version"`
	Description   string `db:"description"`
	Forward       string `db:"forward"`
	Preconditions string `db:"preconditions"`
	Checksum      string `db:"checksum"`
	AppliedAt     string `db:"applied_at"`
}

func (r recordRow) record() Record {
	applied, _ := time.Parse(time.RFC3339Nano, r.AppliedAt)
	return Record{
		Version:       r.Version,
		Description:   r.Description,
		Forward:       r.Forward,
		Preconditions: r.Preconditions,
		Checksum:      r.Checksum,
		AppliedAt:     applied,
	}
}

func (e *Engine) ensureTables(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			forward TEXT NOT NULL,
			preconditions TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`, e.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			holder TEXT,
			acquired_at TEXT
		)`, e.lockTable),
		fmt.Sprintf(`INSERT INTO %s (id) VALUES (1) ON CONFLICT (id) DO NOTHING`, e.lockTable),
	}

	for _, stmt := range statements {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create history tables: %w", err)
		}
	}
	return nil
}

func (e *Engine) currentVersion(ctx context.Context, q Querier) (int, error) {
	var version int
	query := fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) FROM %s`, e.table)
	if err := q.GetContext(ctx, &version, query); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (e *Engine) loadHistory(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT version, description, forward, preconditions, checksum, applied_at
		FROM %s
		ORDER BY version
	`, e.table)

	var rows []recordRow
	if err := e.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query schema history: %w", err)
	}

	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

// verifyHistory checks that the applied log is a prefix of the declared changes
func (e *Engine) verifyHistory(records []Record) error {
	for i, r := range records {
		if r.Version != i+1 {
			return conflictf("history has version %d where %d was expected", r.Version, i+1)
		}
		if r.Version > len(e.changes) {
			return conflictf("database is at version %d but only %d changes are declared", r.Version, len(e.changes))
		}
		declared := e.changes[r.Version-1]
		if r.Checksum != declared.Checksum() {
			return conflictf("change %d (%s) was applied with a different definition", r.Version, declared.Description)
		}
	}
	return nil
}

func (e *Engine) recordChange(ctx context.Context, exec execer, ch Change, forward, preconditions string) error {
	query := e.db.Rebind(fmt.Sprintf(`
		INSERT INTO %s (version, description, forward, preconditions, checksum, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.table))

	_, err := exec.ExecContext(ctx, query,
		ch.Version, ch.Description, forward, preconditions, ch.Checksum(),
		e.now().UTC().Format(time.RFC3339Nano))
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (e *Engine) acquireLock(ctx context.Context, holder string) error {
	query := e.db.Rebind(fmt.Sprintf(`UPDATE %s SET holder = ?, acquired_at = ? WHERE id = 1 AND holder IS NULL`, e.lockTable))
	res, err := e.db.ExecContext(ctx, query, holder, e.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to acquire schema lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to acquire schema lock: %w", err)
	}
	if n == 0 {
		current, since, _ := e.LockHolder(ctx)
		return fmt.Errorf("%w (holder %s since %s)", ErrLocked, current, since)
	}
	return nil
}

func (e *Engine) releaseLock(ctx context.Context, holder string) error {
	query := e.db.Rebind(fmt.Sprintf(`UPDATE %s SET holder = NULL, acquired_at = NULL WHERE id = 1 AND holder = ?`, e.lockTable))
	if _, err := e.db.ExecContext(ctx, query, holder); err != nil {
		return fmt.Errorf("failed to release schema lock: %w", err)
	}
	return nil
}

// LockHolder reports who holds the schema lock, if anyone
func (e *Engine) LockHolder(ctx context.Context) (holder, since string, err error) {
	if err := e.ensureTables(ctx); err != nil {
		return "", "", err
	}

	var row struct {
		Holder     sql.NullString `db:"holder"`
		AcquiredAt sql.NullString `db:"acquired_at"`
	}
	query := fmt.Sprintf(`SELECT holder, acquired_at FROM %s WHERE id = 1`, e.lockTable)
	if err := e.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("failed to read schema lock: %w", err)
	}
	return row.Holder.String, row.AcquiredAt.String, nil
}

// Unlock clears a stale lock left by an interrupted migration
func (e *Engine) Unlock(ctx context.Context) error {
	if err := e.ensureTables(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET holder = NULL, acquired_at = NULL WHERE id = 1`, e.lockTable)
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear schema lock: %w", err)
	}
	e.log.Warn("Schema lock cleared")
	return nil
}
