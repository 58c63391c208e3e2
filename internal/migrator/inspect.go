package migrator

import (
	"context"
	"fmt"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
)

// LiveSchema is the shape of the database as it exists right now
type LiveSchema struct {
	tables map[string]*liveTable
}

type liveTable struct {
	columns map[string]bool
	indexes map[string]bool
	fks     map[string]string // column -> referenced table
}

func newLiveSchema() *LiveSchema {
	return &LiveSchema{tables: make(map[string]*liveTable)}
}

func (l *LiveSchema) addTable(name string) *liveTable {
	t, ok := l.tables[name]
	if !ok {
		t = &liveTable{
			columns: make(map[string]bool),
			indexes: make(map[string]bool),
			fks:     make(map[string]string),
		}
		l.tables[name] = t
	}
	return t
}

func (l *LiveSchema) HasTable(name string) bool {
	_, ok := l.tables[name]
	return ok
}

func (l *LiveSchema) HasColumn(table, column string) bool {
	t, ok := l.tables[table]
	return ok && t.columns[column]
}

func (l *LiveSchema) HasIndex(table, index string) bool {
	t, ok := l.tables[table]
	return ok && t.indexes[index]
}

// ForeignKeyTarget returns the table a column references, if any
func (l *LiveSchema) ForeignKeyTarget(table, column string) (string, bool) {
	t, ok := l.tables[table]
	if !ok {
		return "", false
	}
	ref, ok := t.fks[column]
	return ref, ok
}

// LiveSchemaFromModel builds a live view equal to a schema model
func LiveSchemaFromModel(s *Schema) *LiveSchema {
	live := newLiveSchema()
	for name, t := range s.Tables {
		lt := live.addTable(name)
		for _, c := range t.Columns {
			lt.columns[c.Name] = true
		}
		for _, u := range t.Uniques {
			lt.indexes[u.Name] = true
		}
		for _, fk := range t.ForeignKeys {
			lt.fks[fk.Column] = fk.RefTable
		}
	}
	return live
}

// Inspector reads the live schema of a database connection or transaction
type Inspector func(ctx context.Context, d Dialect, db schema.ExecQuerier) (*LiveSchema, error)

// AtlasInspector inspects the live schema through atlas drivers
func AtlasInspector(ctx context.Context, d Dialect, db schema.ExecQuerier) (*LiveSchema, error) {
	var (
		drv migrate.Driver
		err error
	)
	switch d.(type) {
	case Postgres:
		drv, err = postgres.Open(db)
	case SQLite:
		drv, err = sqlite.Open(db)
	default:
		return nil, fmt.Errorf("no inspector for dialect %s", d.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open atlas driver: %w", err)
	}

	realm, err := drv.InspectRealm(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}

	live := newLiveSchema()
	for _, s := range realm.Schemas {
		for _, t := range s.Tables {
			lt := live.addTable(t.Name)
			for _, c := range t.Columns {
				lt.columns[c.Name] = true
			}
			for _, idx := range t.Indexes {
				if idx.Name != "" {
					lt.indexes[idx.Name] = true
				}
			}
			for _, fk := range t.ForeignKeys {
				if fk.RefTable == nil {
					continue
				}
				for _, c := range fk.Columns {
					lt.fks[c.Name] = fk.RefTable.Name
				}
			}
		}
	}
	return live, nil
}
