package migrator

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
)

// Dialect renders schema operations for one database engine
type Dialect interface {
	Name() string
	DriverName() string
	Placeholder() squirrel.PlaceholderFormat

	ColumnType(t ColumnType) string
	Literal(t ColumnType, value string) string

	CreateTable(t *Table) []string
	AddColumn(table string, c *Column) []string
	DropColumn(table, column string) []string
	// RenameColumn renames a column of t, the table as it was before the change
	RenameColumn(t *Table, from, to string) []string
	CreateUnique(table string, u *Unique) []string
	DropUnique(table string, u *Unique) []string

	// ReplaceForeignKey returns the statements that run before and after the
	// column values are rewritten when a foreign key changes target.
	ReplaceForeignKey(after *Table, fk *ForeignKey) (pre, post []string)

	// LockTables takes exclusive locks for the remainder of the transaction
	LockTables(tables []string) []string
}

// DialectFor returns the dialect for a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pq", "pgx":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver: %s", driver)
}

// Postgres renders PostgreSQL DDL
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) Placeholder() squirrel.PlaceholderFormat { return squirrel.Dollar }

func (Postgres) ColumnType(t ColumnType) string {
	switch t {
	case TypeID:
		return "BIGSERIAL"
	case TypeRef:
		return "BIGINT"
	case TypeText:
		return "TEXT"
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeBool:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeMoney:
		return "NUMERIC(10,2)"
	}
	return "TEXT"
}

func (Postgres) Literal(t ColumnType, value string) string {
	if t == TypeBool {
		return strings.ToUpper(value)
	}
	return value
}

func (d Postgres) CreateTable(t *Table) []string {
	return []string{createTableSQL(d, t.Name, t)}
}

func (d Postgres) AddColumn(table string, c *Column) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnSQL(d, c))}
}

func (Postgres) DropColumn(table, column string) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)}
}

func (Postgres) RenameColumn(t *Table, from, to string) []string {
	stmts := []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", t.Name, from, to)}
	// constraint names follow the column
	if _, ok := t.ForeignKey(from); ok {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s",
			t.Name, ForeignKeyName(t.Name, from), ForeignKeyName(t.Name, to)))
	}
	return stmts
}

func (Postgres) CreateUnique(table string, u *Unique) []string {
	return []string{createUniqueSQL(table, u)}
}

func (Postgres) DropUnique(_ string, u *Unique) []string {
	return []string{fmt.Sprintf("DROP INDEX %s", u.Name)}
}

func (Postgres) ReplaceForeignKey(after *Table, fk *ForeignKey) (pre, post []string) {
	name := ForeignKeyName(after.Name, fk.Column)
	pre = []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", after.Name, name)}
	post = []string{fmt.Sprintf("ALTER TABLE %s ADD %s", after.Name, foreignKeySQL(after.Name, fk))}
	return pre, post
}

func (Postgres) LockTables(tables []string) []string {
	if len(tables) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("LOCK TABLE %s IN ACCESS EXCLUSIVE MODE", strings.Join(tables, ", "))}
}

// SQLite renders SQLite DDL. Foreign keys are declared but the connection runs
// with enforcement off; referential integrity is kept by the store.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) Placeholder() squirrel.PlaceholderFormat { return squirrel.Question }

func (SQLite) ColumnType(t ColumnType) string {
	switch t {
	case TypeID, TypeRef, TypeInteger, TypeBool:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	case TypeText, TypeDate, TypeMoney:
		return "TEXT"
	}
	return "TEXT"
}

func (SQLite) Literal(t ColumnType, value string) string {
	if t == TypeBool {
		switch strings.ToLower(value) {
		case "true":
			return "1"
		case "false":
			return "0"
		}
	}
	return value
}

func (d SQLite) CreateTable(t *Table) []string {
	return []string{createTableSQL(d, t.Name, t)}
}

func (d SQLite) AddColumn(table string, c *Column) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnSQL(d, c))}
}

func (SQLite) DropColumn(table, column string) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)}
}

func (SQLite) RenameColumn(t *Table, from, to string) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", t.Name, from, to)}
}

func (SQLite) CreateUnique(table string, u *Unique) []string {
	return []string{createUniqueSQL(table, u)}
}

func (SQLite) DropUnique(_ string, u *Unique) []string {
	return []string{fmt.Sprintf("DROP INDEX %s", u.Name)}
}

// ReplaceForeignKey rebuilds the table, since SQLite cannot alter constraints in place
func (d SQLite) ReplaceForeignKey(after *Table, _ *ForeignKey) (pre, post []string) {
	return nil, d.rebuild(after)
}

func (SQLite) LockTables([]string) []string {
	return nil
}

func (d SQLite) rebuild(t *Table) []string {
	tmp := t.Name + "__rebuild"
	cols := strings.Join(t.ColumnNames(), ", ")

	stmts := []string{
		createTableSQL(d, tmp, t),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmp, cols, cols, t.Name),
		fmt.Sprintf("DROP TABLE %s", t.Name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, t.Name),
	}
	for _, u := range t.Uniques {
		stmts = append(stmts, createUniqueSQL(t.Name, u))
	}
	return stmts
}

func createTableSQL(d Dialect, name string, t *Table) string {
	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys))
	for _, c := range t.Columns {
		defs = append(defs, columnSQL(d, c))
	}
	for _, fk := range t.ForeignKeys {
		defs = append(defs, foreignKeySQL(t.Name, fk))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", name, strings.Join(defs, ",\n\t"))
}

func columnSQL(d Dialect, c *Column) string {
	if c.Type == TypeID {
		if _, ok := d.(SQLite); ok {
			return fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", c.Name)
		}
		return fmt.Sprintf("%s %s PRIMARY KEY", c.Name, d.ColumnType(c.Type))
	}

	def := fmt.Sprintf("%s %s", c.Name, d.ColumnType(c.Type))
	if !c.Nullable {
		def += " NOT NULL"
	}
	if c.Default != "" {
		def += " DEFAULT " + d.Literal(c.Type, c.Default)
	}
	return def
}

func foreignKeySQL(table string, fk *ForeignKey) string {
	onDelete := fk.OnDelete
	if onDelete == "" {
		onDelete = OnDeleteRestrict
	}
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id) ON DELETE %s",
		ForeignKeyName(table, fk.Column), fk.Column, fk.RefTable, onDelete)
}

func createUniqueSQL(table string, u *Unique) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", u.Name, table, strings.Join(u.Columns, ", "))
}
