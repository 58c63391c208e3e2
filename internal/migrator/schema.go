package migrator

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnType is a dialect-neutral column type
type ColumnType int

const (
	TypeID      ColumnType = iota // auto-incrementing primary key
	TypeRef                       // integer foreign key
	TypeText                      // unbounded text
	TypeInteger                   // 32/64-bit integer
	TypeFloat                     // double precision
	TypeBool                      // boolean
	TypeDate                      // calendar date
	TypeMoney                     // fixed point, two decimal places
)

func (t ColumnType) String() string {
	switch t {
	case TypeID:
		return "id"
	case TypeRef:
		return "ref"
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeMoney:
		return "money"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Referential actions for foreign keys
const (
	OnDeleteCascade  = "CASCADE"
	OnDeleteRestrict = "RESTRICT"
)

// Column describes a single column
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Default  string // dialect-neutral literal, e.g. "false", "0", "''"
}

// ForeignKey references the id column of another table
type ForeignKey struct {
	Column   string
	RefTable string
	OnDelete string
}

// Unique is a named unique index
type Unique struct {
	Name    string
	Columns []string
}

// Table is the model of one table
type Table struct {
	Name        string
	Columns     []*Column
	ForeignKeys []*ForeignKey
	Uniques     []*Unique
}

// Schema is the model of the whole database, built by folding changes in order
type Schema struct {
	Tables map[string]*Table
}

func NewSchema() *Schema {
	return &Schema{Tables: make(map[string]*Table)}
}

func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// TableNames returns the table names in sorted order
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy
func (s *Schema) Clone() *Schema {
	out := NewSchema()
	for name, t := range s.Tables {
		out.Tables[name] = t.Clone()
	}
	return out
}

// ReferencesTo lists foreign keys in other tables that point at the given table
func (s *Schema) ReferencesTo(table string) []TableRef {
	var refs []TableRef
	for _, name := range s.TableNames() {
		for _, fk := range s.Tables[name].ForeignKeys {
			if fk.RefTable == table {
				refs = append(refs, TableRef{Table: name, Column: fk.Column, OnDelete: fk.OnDelete})
			}
		}
	}
	return refs
}

// TableRef names a referencing column
type TableRef struct {
	Table    string
	Column   string
	OnDelete string
}

func (t *Table) Clone() *Table {
	out := &Table{Name: t.Name}
	for _, c := range t.Columns {
		cc := *c
		out.Columns = append(out.Columns, &cc)
	}
	for _, fk := range t.ForeignKeys {
		f := *fk
		out.ForeignKeys = append(out.ForeignKeys, &f)
	}
	for _, u := range t.Uniques {
		out.Uniques = append(out.Uniques, &Unique{Name: u.Name, Columns: append([]string(nil), u.Columns...)})
	}
	return out
}

func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (t *Table) ForeignKey(column string) (*ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return nil, false
}

func (t *Table) Unique(name string) (*Unique, bool) {
	for _, u := range t.Uniques {
		if u.Name == name {
			return u, true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in declaration order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// constrained reports whether a column takes part in a foreign key or unique index
func (t *Table) constrained(column string) bool {
	if _, ok := t.ForeignKey(column); ok {
		return true
	}
	for _, u := range t.Uniques {
		for _, c := range u.Columns {
			if c == column {
				return true
			}
		}
	}
	return false
}

// ForeignKeyName is the constraint name used for a foreign key column
func ForeignKeyName(table, column string) string {
	return fmt.Sprintf("fk_%s_%s", table, column)
}

// UniqueName is the conventional index name for a unique constraint
func UniqueName(table string, columns ...string) string {
	return fmt.Sprintf("ux_%s_%s", table, strings.Join(columns, "_"))
}
