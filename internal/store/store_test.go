package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eleven-am/pantry/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := Connect(ctx, "sqlite", ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	require.NoError(t, err)

	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	return s
}

// fixture holds one row of every register
type fixture struct {
	s         *Store
	ctx       context.Context
	cup       int64
	pantry    int64
	breakfast int64
	market    int64
	baking    int64
	weekly    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()
	f := &fixture{s: s, ctx: ctx}

	var err error
	f.cup, err = s.CreateEntry(ctx, Units, "cup")
	require.NoError(t, err)
	f.pantry, err = s.CreateEntry(ctx, Locations, "pantry")
	require.NoError(t, err)
	f.breakfast, err = s.CreateEntry(ctx, Categories, "Breakfast")
	require.NoError(t, err)
	f.market, err = s.CreateStore(ctx, "Corner Market", "1 Main St")
	require.NoError(t, err)
	f.baking, err = s.CreateEntry(ctx, Departments, "Baking")
	require.NoError(t, err)
	f.weekly, err = s.CreateFrequency(ctx, "weekly", sql.Null[int64]{V: 7, Valid: true})
	require.NoError(t, err)
	return f
}

func (f *fixture) ingredient(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.s.CreateIngredient(f.ctx, IngredientInput{Name: name, LocationID: f.pantry, UnitID: f.cup})
	require.NoError(t, err)
	return id
}

func (f *fixture) recipe(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.s.CreateRecipe(f.ctx, RecipeInput{Name: name, Servings: 4, CategoryID: f.breakfast})
	require.NoError(t, err)
	return id
}

func (f *fixture) product(t *testing.T, ingredientID int64, brand string) int64 {
	t.Helper()
	id, err := f.s.CreateProduct(f.ctx, ProductInput{
		IngredientID: ingredientID,
		Brand:        brand,
		Size:         "5lb",
		StoreID:      f.market,
		DepartmentID: f.baking,
	})
	require.NoError(t, err)
	return id
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	n, err := s.count(context.Background(), s.sb.Select("COUNT(*)").From(table))
	require.NoError(t, err)
	return n
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(sqlx.NewDb(db, "mysql"))
	assert.Error(t, err)
}

func TestLoggerComponents(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)

	db, err := Connect(ctx, "sqlite", ":memory:", 0)
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, WithLogger(logger.Wrap(zap.New(core))))
	require.NoError(t, err)
	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, Units, "cup")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, e := range logs.All() {
		names[e.LoggerName] = true
	}
	assert.True(t, names["migration"])
	assert.True(t, names["store"])
	assert.False(t, names["store.migration"])
	assert.Len(t, names, 2)
}

func TestWithTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := f.s.WithTransaction(ctx, func(tx *Store) error {
			if _, err := tx.CreateEntry(ctx, Units, "gram"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		entries, err := f.s.ListEntries(ctx, Units)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = f.s.WithTransaction(ctx, func(tx *Store) error {
				_, _ = tx.CreateEntry(ctx, Units, "ounce")
				panic("unexpected")
			})
		})

		entries, err := f.s.ListEntries(ctx, Units)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		err := f.s.WithTransaction(ctx, func(outer *Store) error {
			return outer.WithTransaction(ctx, func(inner *Store) error {
				assert.Same(t, outer, inner)
				_, err := inner.CreateEntry(ctx, Units, "tbsp")
				return err
			})
		})
		require.NoError(t, err)

		entries, err := f.s.ListEntries(ctx, Units)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestPostgresQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(sqlx.NewDb(db, "postgres"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", s.Dialect().Name())

	t.Run("CreateEntry", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM units WHERE name = \$1`).
			WithArgs("cup").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`INSERT INTO units \(name\) VALUES \(\$1\) RETURNING id`).
			WithArgs("cup").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		id, err := s.CreateEntry(context.Background(), Units, "cup")
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation lost at the index", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM categories WHERE category = \$1`).
			WithArgs("Breakfast").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`INSERT INTO categories \(category\) VALUES \(\$1\) RETURNING id`).
			WithArgs("Breakfast").
			WillReturnError(pqUniqueViolation("ux_categories_category"))
		mock.ExpectRollback()

		_, err := s.CreateEntry(context.Background(), Categories, "Breakfast")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicate)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdatePrice", func(t *testing.T) {
		mock.ExpectExec(`UPDATE prices SET cost = \$1 WHERE .*date = \$2 AND product_id = \$3`).
			WithArgs("5.25", "2024-01-01", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.UpdatePrice(context.Background(), 3, mustDate("2024-01-01"), mustDecimal("5.25"))
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSchemaMatchesChangelog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	engine, err := s.Engine()
	require.NoError(t, err)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(Changelog()), status.Current)
	assert.Zero(t, status.Pending)

	schema := s.Schema()
	assert.Equal(t, []string{
		"categories", "departments", "frequencies", "ingredients", "locations",
		"prices", "products", "recipe_ingredients", "recipes", "stores", "units",
	}, schema.TableNames())

	ingredients, _ := schema.Table("ingredients")
	fk, ok := ingredients.ForeignKey("location_id")
	require.True(t, ok)
	assert.Equal(t, "locations", fk.RefTable)
	assert.Equal(t, []string{"id", "ingredient", "location_id", "unit_id", "qty", "is_favorite"}, ingredients.ColumnNames())
}
