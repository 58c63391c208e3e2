package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/pantry/internal/migrator"
)

func changelogVersion(t *testing.T, description string) migrator.Change {
	t.Helper()
	for _, ch := range Changelog() {
		if ch.Description == description {
			return ch
		}
	}
	t.Fatalf("no change %q", description)
	return migrator.Change{}
}

// migrateTo applies the first n changes to a fresh database
func migrateTo(t *testing.T, n int) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	db, err := Connect(ctx, "sqlite", ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := migrator.NewEngine(db, migrator.SQLite{}, Changelog()[:n])
	require.NoError(t, err)
	result, err := engine.Apply(ctx)
	require.NoError(t, err)
	require.Equal(t, n, result.To)
	return db
}

func TestChangelogIsValid(t *testing.T) {
	models, err := migrator.Fold(Changelog())
	require.NoError(t, err)
	assert.Len(t, models, len(Changelog())+1)
}

func TestRenameFrequencyDaysPreservesValues(t *testing.T) {
	ctx := context.Background()
	rename := changelogVersion(t, "rename frequency days to duration")
	db := migrateTo(t, rename.Version-1)

	db.MustExec(`INSERT INTO frequencies (frequency, days) VALUES ('weekly', 7), ('monthly', 30), ('whenever', NULL)`)

	engine, err := migrator.NewEngine(db, migrator.SQLite{}, Changelog())
	require.NoError(t, err)
	_, err = engine.Apply(ctx)
	require.NoError(t, err)

	var rows []struct {
		Frequency string          `db:"frequency"`
		Duration  sql.Null[int64] `db:"duration"`
	}
	require.NoError(t, db.SelectContext(ctx, &rows, `SELECT frequency, duration FROM frequencies ORDER BY id`))
	require.Len(t, rows, 3)
	assert.Equal(t, "weekly", rows[0].Frequency)
	assert.Equal(t, sql.Null[int64]{V: 7, Valid: true}, rows[0].Duration)
	assert.Equal(t, sql.Null[int64]{V: 30, Valid: true}, rows[1].Duration)
	assert.False(t, rows[2].Duration.Valid)

	err = engine.ApplyChange(ctx, rename)
	require.Error(t, err)
	assert.ErrorIs(t, err, migrator.ErrAlreadyApplied)

	s, err := New(db)
	require.NoError(t, err)
	f, err := s.GetFrequency(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.Duration.V)
}

func TestLegacyIngredientsMoveToLocations(t *testing.T) {
	ctx := context.Background()
	locations := changelogVersion(t, "create locations")
	db := migrateTo(t, locations.Version-1)

	db.MustExec(`INSERT INTO units (name) VALUES ('cup')`)
	db.MustExec(`INSERT INTO departments (department) VALUES ('Baking'), ('Dairy'), ('Hardware')`)
	db.MustExec(`INSERT INTO ingredients (ingredient, location_id, unit_id) VALUES ('flour', 1, 1), ('milk', 2, 1), ('sugar', 1, 1)`)

	s, err := New(db)
	require.NoError(t, err)
	_, err = s.Migrate(ctx)
	require.NoError(t, err)

	entries, err := s.ListEntries(ctx, Locations)
	require.NoError(t, err)
	labels := make(map[int64]string, len(entries))
	for _, e := range entries {
		labels[e.ID] = e.Label
	}
	assert.ElementsMatch(t, []string{"Baking", "Dairy"}, mapValues(labels))

	ingredients, err := s.ListIngredients(ctx, IngredientFilter{})
	require.NoError(t, err)
	require.Len(t, ingredients, 3)

	located := make(map[string]string)
	for _, ing := range ingredients {
		located[ing.Ingredient] = labels[ing.LocationID]
		assert.False(t, ing.IsFavorite)
	}
	assert.Equal(t, map[string]string{"flour": "Baking", "milk": "Dairy", "sugar": "Baking"}, located)

	// departments are still used by products
	_, err = s.GetEntry(ctx, Departments, 3)
	assert.NoError(t, err)
}

func mapValues(m map[int64]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
