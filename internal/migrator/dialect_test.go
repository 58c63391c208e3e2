package migrator

import (
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIngredientsTable() *Table {
	return &Table{
		Name: "ingredients",
		Columns: []*Column{
			{Name: "id", Type: TypeID},
			{Name: "ingredient", Type: TypeText},
			{Name: "location_id", Type: TypeRef},
			{Name: "qty", Type: TypeFloat, Nullable: true},
			{Name: "is_favorite", Type: TypeBool, Default: "false"},
		},
		ForeignKeys: []*ForeignKey{
			{Column: "location_id", RefTable: "locations", OnDelete: OnDeleteRestrict},
		},
		Uniques: []*Unique{
			{Name: "ux_ingredients_ingredient", Columns: []string{"ingredient"}},
		},
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: "postgres", want: "postgres"},
		{driver: "pgx", want: "postgres"},
		{driver: "sqlite", want: "sqlite"},
		{driver: "sqlite3", want: "sqlite"},
		{driver: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := DialectFor(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestPostgresCreateTable(t *testing.T) {
	stmts := Postgres{}.CreateTable(testIngredientsTable())
	require.Len(t, stmts, 1)

	expected := "CREATE TABLE ingredients (\n" +
		"\tid BIGSERIAL PRIMARY KEY,\n" +
		"\tingredient TEXT NOT NULL,\n" +
		"\tlocation_id BIGINT NOT NULL,\n" +
		"\tqty DOUBLE PRECISION,\n" +
		"\tis_favorite BOOLEAN NOT NULL DEFAULT FALSE,\n" +
		"\tCONSTRAINT fk_ingredients_location_id FOREIGN KEY (location_id) REFERENCES locations (id) ON DELETE RESTRICT\n" +
		")"
	assert.Equal(t, expected, stmts[0])
}

func TestSQLiteCreateTable(t *testing.T) {
	stmts := SQLite{}.CreateTable(testIngredientsTable())
	require.Len(t, stmts, 1)

	assert.Contains(t, stmts[0], "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, stmts[0], "qty REAL,")
	assert.Contains(t, stmts[0], "is_favorite INTEGER NOT NULL DEFAULT 0")
	assert.Contains(t, stmts[0], "REFERENCES locations (id) ON DELETE RESTRICT")
}

func TestDialectStatements(t *testing.T) {
	unique := &Unique{Name: "ux_units_name", Columns: []string{"name"}}
	frequencies := &Table{Name: "frequencies", Columns: []*Column{
		{Name: "id", Type: TypeID},
		{Name: "days", Type: TypeInteger, Nullable: true},
	}}

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{
			name: "postgres rename column",
			got:  Postgres{}.RenameColumn(frequencies, "days", "duration"),
			want: []string{"ALTER TABLE frequencies RENAME COLUMN days TO duration"},
		},
		{
			name: "sqlite rename column",
			got:  SQLite{}.RenameColumn(frequencies, "days", "duration"),
			want: []string{"ALTER TABLE frequencies RENAME COLUMN days TO duration"},
		},
		{
			name: "postgres rename foreign key column",
			got:  Postgres{}.RenameColumn(testIngredientsTable(), "location_id", "place_id"),
			want: []string{
				"ALTER TABLE ingredients RENAME COLUMN location_id TO place_id",
				"ALTER TABLE ingredients RENAME CONSTRAINT fk_ingredients_location_id TO fk_ingredients_place_id",
			},
		},
		{
			name: "sqlite rename foreign key column",
			got:  SQLite{}.RenameColumn(testIngredientsTable(), "location_id", "place_id"),
			want: []string{"ALTER TABLE ingredients RENAME COLUMN location_id TO place_id"},
		},
		{
			name: "postgres add column with default",
			got:  Postgres{}.AddColumn("ingredients", &Column{Name: "is_favorite", Type: TypeBool, Default: "false"}),
			want: []string{"ALTER TABLE ingredients ADD COLUMN is_favorite BOOLEAN NOT NULL DEFAULT FALSE"},
		},
		{
			name: "sqlite add nullable column",
			got:  SQLite{}.AddColumn("products", &Column{Name: "isle", Type: TypeText, Nullable: true}),
			want: []string{"ALTER TABLE products ADD COLUMN isle TEXT"},
		},
		{
			name: "drop column",
			got:  Postgres{}.DropColumn("recipes", "rating"),
			want: []string{"ALTER TABLE recipes DROP COLUMN rating"},
		},
		{
			name: "create unique",
			got:  SQLite{}.CreateUnique("units", unique),
			want: []string{"CREATE UNIQUE INDEX ux_units_name ON units (name)"},
		},
		{
			name: "drop unique",
			got:  Postgres{}.DropUnique("units", unique),
			want: []string{"DROP INDEX ux_units_name"},
		},
		{
			name: "postgres lock",
			got:  Postgres{}.LockTables([]string{"schema_history", "frequencies"}),
			want: []string{"LOCK TABLE schema_history, frequencies IN ACCESS EXCLUSIVE MODE"},
		},
		{
			name: "sqlite lock",
			got:  SQLite{}.LockTables([]string{"frequencies"}),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestReplaceForeignKey(t *testing.T) {
	table := testIngredientsTable()
	fk, _ := table.ForeignKey("location_id")

	t.Run("postgres swaps the constraint", func(t *testing.T) {
		pre, post := Postgres{}.ReplaceForeignKey(table, fk)
		assert.Equal(t, []string{"ALTER TABLE ingredients DROP CONSTRAINT fk_ingredients_location_id"}, pre)
		assert.Equal(t, []string{
			"ALTER TABLE ingredients ADD CONSTRAINT fk_ingredients_location_id FOREIGN KEY (location_id) REFERENCES locations (id) ON DELETE RESTRICT",
		}, post)
	})

	t.Run("sqlite rebuilds the table", func(t *testing.T) {
		pre, post := SQLite{}.ReplaceForeignKey(table, fk)
		assert.Empty(t, pre)
		require.Len(t, post, 5)
		assert.Contains(t, post[0], "CREATE TABLE ingredients__rebuild (")
		assert.Equal(t, "INSERT INTO ingredients__rebuild (id, ingredient, location_id, qty, is_favorite) SELECT id, ingredient, location_id, qty, is_favorite FROM ingredients", post[1])
		assert.Equal(t, "DROP TABLE ingredients", post[2])
		assert.Equal(t, "ALTER TABLE ingredients__rebuild RENAME TO ingredients", post[3])
		assert.Equal(t, "CREATE UNIQUE INDEX ux_ingredients_ingredient ON ingredients (ingredient)", post[4])
	})
}

func TestRenameThenRetargetForeignKey(t *testing.T) {
	label := func(name, column string) *Table {
		return &Table{Name: name, Columns: []*Column{
			{Name: "id", Type: TypeID},
			{Name: column, Type: TypeText},
		}}
	}
	changes := []Change{
		{Version: 1, Description: "create departments", Operation: CreateTable{Table: label("departments", "department")}},
		{Version: 2, Description: "create locations", Operation: CreateTable{Table: label("locations", "location")}},
		{Version: 3, Description: "create ingredients", Operation: CreateTable{Table: &Table{
			Name: "ingredients",
			Columns: []*Column{
				{Name: "id", Type: TypeID},
				{Name: "department_id", Type: TypeRef},
			},
			ForeignKeys: []*ForeignKey{{Column: "department_id", RefTable: "departments", OnDelete: OnDeleteRestrict}},
		}}},
		{Version: 4, Description: "rename ingredient place", Operation: RenameColumn{Table: "ingredients", From: "department_id", To: "location_id"}},
		{Version: 5, Description: "ingredient locations", Operation: RetargetForeignKey{
			Table: "ingredients", Column: "location_id", To: "locations",
			Map: &LabelMap{FromLabel: "department", ToLabel: "location"},
		}},
	}
	models, err := Fold(changes)
	require.NoError(t, err)

	statements := func(d Dialect, v int) []string {
		t.Helper()
		stmts, err := changes[v-1].Operation.Statements(d, models[v-1], models[v])
		require.NoError(t, err)
		return stmts
	}

	created := statements(Postgres{}, 3)
	require.Len(t, created, 1)
	assert.Contains(t, created[0], "CONSTRAINT fk_ingredients_department_id FOREIGN KEY")

	renamed := statements(Postgres{}, 4)
	assert.Contains(t, renamed, "ALTER TABLE ingredients RENAME CONSTRAINT fk_ingredients_department_id TO fk_ingredients_location_id")

	retargeted := statements(Postgres{}, 5)
	assert.Contains(t, retargeted, "ALTER TABLE ingredients DROP CONSTRAINT fk_ingredients_location_id")
	assert.Contains(t, retargeted,
		"ALTER TABLE ingredients ADD CONSTRAINT fk_ingredients_location_id FOREIGN KEY (location_id) REFERENCES locations (id) ON DELETE RESTRICT")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, squirrel.Dollar, Postgres{}.Placeholder())
	assert.Equal(t, squirrel.Question, SQLite{}.Placeholder())
}
