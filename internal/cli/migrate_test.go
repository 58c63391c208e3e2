package cli

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/pantry/internal/store"
)

func TestMigrateCommands(t *testing.T) {
	db := sqliteArgs(t)
	latest := len(store.Changelog())
	run := func(args ...string) string {
		t.Helper()
		stdout, _, err := execute(t, append(db, args...)...)
		require.NoError(t, err)
		return stdout
	}

	out := run("migrate", "status")
	assert.Contains(t, out, "Current version: 0\n")
	assert.Contains(t, out, fmt.Sprintf("Latest version:  %d\n", latest))
	assert.Contains(t, out, fmt.Sprintf("Pending changes: %d\n", latest))
	assert.Contains(t, out, "create units")

	out = run("migrate", "history")
	assert.Equal(t, "No changes applied\n", out)

	out = run("migrate", "up")
	assert.Equal(t, fmt.Sprintf("Migrated from version 0 to %d (%d changes)\n", latest, latest), out)

	out = run("migrate", "up")
	assert.Equal(t, fmt.Sprintf("Schema is up to date at version %d\n", latest), out)

	out = run("migrate", "status")
	assert.Contains(t, out, fmt.Sprintf("Current version: %d\n", latest))
	assert.Contains(t, out, "Schema is up to date")

	out = run("migrate", "history")
	assert.Contains(t, out, "rename frequency days to duration")
	assert.NotContains(t, out, "ALTER TABLE")

	out = run("migrate", "history", "--verbose")
	assert.Contains(t, out, "RENAME COLUMN days TO duration")

	out = run("migrate", "unlock")
	assert.Equal(t, "Schema is not locked\n", out)
}

func TestMigrateUsesConfiguredHistoryTable(t *testing.T) {
	db := sqliteArgs(t)
	t.Setenv("PANTRY_MIGRATIONS_TABLE", "kitchen_history")

	_, _, err := execute(t, append(db, "migrate", "up")...)
	require.NoError(t, err)

	s, closeFn, err := openStore(t.Context())
	require.NoError(t, err)
	defer closeFn()

	var n int
	require.NoError(t, s.DB().Get(&n, `SELECT COUNT(*) FROM kitchen_history`))
	assert.Equal(t, len(store.Changelog()), n)
}
