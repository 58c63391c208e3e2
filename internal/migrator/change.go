package migrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Change is one versioned structural change
type Change struct {
	Version     int
	Description string
	Operation   Operation
}

// Checksum identifies the dialect-neutral definition of the change
func (c Change) Checksum() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", c.Version, c.Description, c.Operation)))
	return hex.EncodeToString(sum[:])
}

// Querier is the subset of sqlx used for data precondition checks
type Querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

// Operation is the body of a change
type Operation interface {
	fmt.Stringer

	// Tables lists the existing tables the operation touches
	Tables() []string
	// Mutate applies the operation to the schema model
	Mutate(s *Schema) error
	// Preconditions describes what must hold before the operation runs
	Preconditions() []string
	// CheckLive verifies the live schema still has the expected prior shape
	CheckLive(live *LiveSchema, before *Schema) error
	// CheckData verifies existing rows survive the operation
	CheckData(ctx context.Context, q Querier, before *Schema) error
	// Statements renders the forward action
	Statements(d Dialect, before, after *Schema) ([]string, error)
}

// CreateTable adds a new entity
type CreateTable struct {
	Table *Table
}

func (o CreateTable) String() string {
	var parts []string
	for _, c := range o.Table.Columns {
		parts = append(parts, columnString(c))
	}
	for _, fk := range o.Table.ForeignKeys {
		parts = append(parts, fmt.Sprintf("fk %s->%s %s", fk.Column, fk.RefTable, fk.OnDelete))
	}
	for _, u := range o.Table.Uniques {
		parts = append(parts, fmt.Sprintf("unique %s(%s)", u.Name, strings.Join(u.Columns, ",")))
	}
	return fmt.Sprintf("create table %s (%s)", o.Table.Name, strings.Join(parts, "; "))
}

func (o CreateTable) Tables() []string { return nil }

func (o CreateTable) Mutate(s *Schema) error {
	if _, ok := s.Table(o.Table.Name); ok {
		return invalidf("table %s already exists", o.Table.Name)
	}
	for _, fk := range o.Table.ForeignKeys {
		if _, ok := o.Table.Column(fk.Column); !ok {
			return invalidf("foreign key column %s.%s is not declared", o.Table.Name, fk.Column)
		}
		if _, ok := s.Table(fk.RefTable); !ok {
			return invalidf("table %s references unknown table %s", o.Table.Name, fk.RefTable)
		}
	}
	for _, u := range o.Table.Uniques {
		for _, c := range u.Columns {
			if _, ok := o.Table.Column(c); !ok {
				return invalidf("unique %s names unknown column %s", u.Name, c)
			}
		}
	}
	s.Tables[o.Table.Name] = o.Table.Clone()
	return nil
}

func (o CreateTable) Preconditions() []string {
	pre := []string{fmt.Sprintf("table %s does not exist", o.Table.Name)}
	for _, fk := range o.Table.ForeignKeys {
		pre = append(pre, fmt.Sprintf("table %s exists", fk.RefTable))
	}
	return pre
}

func (o CreateTable) CheckLive(live *LiveSchema, _ *Schema) error {
	if live.HasTable(o.Table.Name) {
		return conflictf("table %s already exists", o.Table.Name)
	}
	for _, fk := range o.Table.ForeignKeys {
		if !live.HasTable(fk.RefTable) {
			return conflictf("referenced table %s is missing", fk.RefTable)
		}
	}
	return nil
}

func (o CreateTable) CheckData(context.Context, Querier, *Schema) error { return nil }

func (o CreateTable) Statements(d Dialect, _, _ *Schema) ([]string, error) {
	stmts := d.CreateTable(o.Table)
	for _, u := range o.Table.Uniques {
		stmts = append(stmts, d.CreateUnique(o.Table.Name, u)...)
	}
	return stmts, nil
}

// AddColumn adds a field to an existing entity
type AddColumn struct {
	Table  string
	Column *Column
}

func (o AddColumn) String() string {
	return fmt.Sprintf("add column %s.%s", o.Table, columnString(o.Column))
}

func (o AddColumn) Tables() []string { return []string{o.Table} }

func (o AddColumn) Mutate(s *Schema) error {
	t, ok := s.Table(o.Table)
	if !ok {
		return invalidf("unknown table %s", o.Table)
	}
	if _, ok := t.Column(o.Column.Name); ok {
		return invalidf("column %s.%s already exists", o.Table, o.Column.Name)
	}
	if o.Column.Type == TypeID {
		return invalidf("cannot add a primary key column to %s", o.Table)
	}
	if !o.Column.Nullable && o.Column.Default == "" {
		return invalidf("column %s.%s is NOT NULL without a default", o.Table, o.Column.Name)
	}
	c := *o.Column
	t.Columns = append(t.Columns, &c)
	return nil
}

func (o AddColumn) Preconditions() []string {
	return []string{
		fmt.Sprintf("table %s exists", o.Table),
		fmt.Sprintf("column %s.%s does not exist", o.Table, o.Column.Name),
	}
}

func (o AddColumn) CheckLive(live *LiveSchema, _ *Schema) error {
	if !live.HasTable(o.Table) {
		return conflictf("table %s is missing", o.Table)
	}
	if live.HasColumn(o.Table, o.Column.Name) {
		return conflictf("column %s.%s already exists", o.Table, o.Column.Name)
	}
	return nil
}

func (o AddColumn) CheckData(context.Context, Querier, *Schema) error { return nil }

func (o AddColumn) Statements(d Dialect, _, _ *Schema) ([]string, error) {
	return d.AddColumn(o.Table, o.Column), nil
}

// DropColumn removes an unconstrained field
type DropColumn struct {
	Table  string
	Column string
}

func (o DropColumn) String() string {
	return fmt.Sprintf("drop column %s.%s", o.Table, o.Column)
}

func (o DropColumn) Tables() []string { return []string{o.Table} }

func (o DropColumn) Mutate(s *Schema) error {
	t, ok := s.Table(o.Table)
	if !ok {
		return invalidf("unknown table %s", o.Table)
	}
	c, ok := t.Column(o.Column)
	if !ok {
		return invalidf("unknown column %s.%s", o.Table, o.Column)
	}
	if c.Type == TypeID || t.constrained(o.Column) {
		return invalidf("column %s.%s is part of a key or constraint", o.Table, o.Column)
	}
	cols := t.Columns[:0]
	for _, existing := range t.Columns {
		if existing.Name != o.Column {
			cols = append(cols, existing)
		}
	}
	t.Columns = cols
	return nil
}

func (o DropColumn) Preconditions() []string {
	return []string{fmt.Sprintf("column %s.%s exists", o.Table, o.Column)}
}

func (o DropColumn) CheckLive(live *LiveSchema, _ *Schema) error {
	if !live.HasColumn(o.Table, o.Column) {
		return conflictf("column %s.%s is missing", o.Table, o.Column)
	}
	return nil
}

func (o DropColumn) CheckData(context.Context, Querier, *Schema) error { return nil }

func (o DropColumn) Statements(d Dialect, _, _ *Schema) ([]string, error) {
	return d.DropColumn(o.Table, o.Column), nil
}

// RenameColumn moves the values of a field to a new name
type RenameColumn struct {
	Table string
	From  string
	To    string
}

func (o RenameColumn) String() string {
	return fmt.Sprintf("rename column %s.%s -> %s", o.Table, o.From, o.To)
}

func (o RenameColumn) Tables() []string { return []string{o.Table} }

func (o RenameColumn) Mutate(s *Schema) error {
	t, ok := s.Table(o.Table)
	if !ok {
		return invalidf("unknown table %s", o.Table)
	}
	c, ok := t.Column(o.From)
	if !ok {
		return invalidf("unknown column %s.%s", o.Table, o.From)
	}
	if _, ok := t.Column(o.To); ok {
		return invalidf("column %s.%s already exists", o.Table, o.To)
	}
	c.Name = o.To
	for _, fk := range t.ForeignKeys {
		if fk.Column == o.From {
			fk.Column = o.To
		}
	}
	for _, u := range t.Uniques {
		for i, col := range u.Columns {
			if col == o.From {
				u.Columns[i] = o.To
			}
		}
	}
	return nil
}

func (o RenameColumn) Preconditions() []string {
	return []string{
		fmt.Sprintf("column %s.%s exists", o.Table, o.From),
		fmt.Sprintf("column %s.%s does not exist", o.Table, o.To),
	}
}

func (o RenameColumn) CheckLive(live *LiveSchema, _ *Schema) error {
	if !live.HasColumn(o.Table, o.From) {
		return conflictf("column %s.%s is missing", o.Table, o.From)
	}
	if live.HasColumn(o.Table, o.To) {
		return conflictf("column %s.%s already exists", o.Table, o.To)
	}
	return nil
}

func (o RenameColumn) CheckData(context.Context, Querier, *Schema) error { return nil }

func (o RenameColumn) Statements(d Dialect, before, _ *Schema) ([]string, error) {
	t, ok := before.Table(o.Table)
	if !ok {
		return nil, invalidf("unknown table %s", o.Table)
	}
	return d.RenameColumn(t, o.From, o.To), nil
}

// LabelMap translates old key values to new ones by matching label columns:
// a row pointing at old.id is repointed at the new row whose ToLabel equals
// the old row's FromLabel.
type LabelMap struct {
	FromLabel string
	ToLabel   string
}

// RetargetForeignKey points an existing foreign key column at another table
type RetargetForeignKey struct {
	Table  string
	Column string
	To     string
	Map    *LabelMap
}

func (o RetargetForeignKey) String() string {
	s := fmt.Sprintf("retarget %s.%s -> %s", o.Table, o.Column, o.To)
	if o.Map != nil {
		s += fmt.Sprintf(" by %s=%s", o.Map.FromLabel, o.Map.ToLabel)
	}
	return s
}

func (o RetargetForeignKey) Tables() []string { return []string{o.Table} }

func (o RetargetForeignKey) Mutate(s *Schema) error {
	t, ok := s.Table(o.Table)
	if !ok {
		return invalidf("unknown table %s", o.Table)
	}
	fk, ok := t.ForeignKey(o.Column)
	if !ok {
		return invalidf("column %s.%s has no foreign key", o.Table, o.Column)
	}
	to, ok := s.Table(o.To)
	if !ok {
		return invalidf("unknown target table %s", o.To)
	}
	if fk.RefTable == o.To {
		return invalidf("%s.%s already references %s", o.Table, o.Column, o.To)
	}
	if o.Map != nil {
		from, _ := s.Table(fk.RefTable)
		if _, ok := from.Column(o.Map.FromLabel); !ok {
			return invalidf("unknown column %s.%s", fk.RefTable, o.Map.FromLabel)
		}
		if _, ok := to.Column(o.Map.ToLabel); !ok {
			return invalidf("unknown column %s.%s", o.To, o.Map.ToLabel)
		}
	}
	fk.RefTable = o.To
	return nil
}

func (o RetargetForeignKey) Preconditions() []string {
	pre := []string{
		fmt.Sprintf("column %s.%s has a foreign key", o.Table, o.Column),
		fmt.Sprintf("table %s exists", o.To),
	}
	if o.Map != nil {
		pre = append(pre, fmt.Sprintf("every %s.%s maps to a %s row by %s=%s", o.Table, o.Column, o.To, o.Map.FromLabel, o.Map.ToLabel))
	} else {
		pre = append(pre, fmt.Sprintf("every %s.%s exists in %s", o.Table, o.Column, o.To))
	}
	return pre
}

func (o RetargetForeignKey) from(before *Schema) string {
	t, _ := before.Table(o.Table)
	fk, _ := t.ForeignKey(o.Column)
	return fk.RefTable
}

func (o RetargetForeignKey) CheckLive(live *LiveSchema, before *Schema) error {
	if !live.HasColumn(o.Table, o.Column) {
		return conflictf("column %s.%s is missing", o.Table, o.Column)
	}
	if !live.HasTable(o.To) {
		return conflictf("target table %s is missing", o.To)
	}
	want := o.from(before)
	got, ok := live.ForeignKeyTarget(o.Table, o.Column)
	if !ok {
		return conflictf("column %s.%s has no foreign key", o.Table, o.Column)
	}
	if got != want {
		return conflictf("%s.%s references %s, expected %s", o.Table, o.Column, got, want)
	}
	return nil
}

// mapped is a correlated subquery yielding the new key for the current row
func (o RetargetForeignKey) mapped(from string) string {
	return fmt.Sprintf("SELECT MIN(n.id) FROM %s o JOIN %s n ON n.%s = o.%s WHERE o.id = %s.%s",
		from, o.To, o.Map.ToLabel, o.Map.FromLabel, o.Table, o.Column)
}

func (o RetargetForeignKey) CheckData(ctx context.Context, q Querier, before *Schema) error {
	var query string
	if o.Map != nil {
		query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND (%s) IS NULL",
			o.Table, o.Column, o.mapped(o.from(before)))
	} else {
		query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %s n WHERE n.id = %s.%s)",
			o.Table, o.Column, o.To, o.Table, o.Column)
	}

	var orphans int
	if err := q.GetContext(ctx, &orphans, query); err != nil {
		return fmt.Errorf("failed to validate %s.%s values: %w", o.Table, o.Column, err)
	}
	if orphans > 0 {
		return preconditionf("%d %s rows have %s values with no match in %s", orphans, o.Table, o.Column, o.To)
	}
	return nil
}

func (o RetargetForeignKey) Statements(d Dialect, before, after *Schema) ([]string, error) {
	t, ok := after.Table(o.Table)
	if !ok {
		return nil, invalidf("unknown table %s", o.Table)
	}
	fk, _ := t.ForeignKey(o.Column)

	pre, post := d.ReplaceForeignKey(t, fk)
	stmts := append([]string{}, pre...)
	if o.Map != nil {
		stmts = append(stmts, fmt.Sprintf("UPDATE %s SET %s = (%s) WHERE %s IS NOT NULL",
			o.Table, o.Column, o.mapped(o.from(before)), o.Column))
	}
	return append(stmts, post...), nil
}

// AddUnique adds a uniqueness constraint over existing columns
type AddUnique struct {
	Table   string
	Columns []string
	Name    string
}

func (o AddUnique) name() string {
	if o.Name != "" {
		return o.Name
	}
	return UniqueName(o.Table, o.Columns...)
}

func (o AddUnique) String() string {
	return fmt.Sprintf("add unique %s on %s(%s)", o.name(), o.Table, strings.Join(o.Columns, ","))
}

func (o AddUnique) Tables() []string { return []string{o.Table} }

func (o AddUnique) Mutate(s *Schema) error {
	t, ok := s.Table(o.Table)
	if !ok {
		return invalidf("unknown table %s", o.Table)
	}
	if len(o.Columns) == 0 {
		return invalidf("unique on %s has no columns", o.Table)
	}
	for _, c := range o.Columns {
		if _, ok := t.Column(c); !ok {
			return invalidf("unknown column %s.%s", o.Table, c)
		}
	}
	if _, ok := t.Unique(o.name()); ok {
		return invalidf("unique %s already exists", o.name())
	}
	t.Uniques = append(t.Uniques, &Unique{Name: o.name(), Columns: append([]string(nil), o.Columns...)})
	return nil
}

func (o AddUnique) Preconditions() []string {
	return []string{
		fmt.Sprintf("index %s does not exist", o.name()),
		fmt.Sprintf("no duplicate %s(%s) values", o.Table, strings.Join(o.Columns, ",")),
	}
}

func (o AddUnique) CheckLive(live *LiveSchema, _ *Schema) error {
	for _, c := range o.Columns {
		if !live.HasColumn(o.Table, c) {
			return conflictf("column %s.%s is missing", o.Table, c)
		}
	}
	if live.HasIndex(o.Table, o.name()) {
		return conflictf("index %s already exists", o.name())
	}
	return nil
}

func (o AddUnique) CheckData(ctx context.Context, q Querier, _ *Schema) error {
	cols := strings.Join(o.Columns, ", ")
	query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) dup", cols, o.Table, cols)

	var groups int
	if err := q.GetContext(ctx, &groups, query); err != nil {
		return fmt.Errorf("failed to check duplicates in %s: %w", o.Table, err)
	}
	if groups > 0 {
		return preconditionf("%d duplicate %s(%s) groups", groups, o.Table, cols)
	}
	return nil
}

func (o AddUnique) Statements(d Dialect, _, _ *Schema) ([]string, error) {
	return d.CreateUnique(o.Table, &Unique{Name: o.name(), Columns: o.Columns}), nil
}

// DropUnique removes a uniqueness constraint
type DropUnique struct {
	Table string
	Name  string
}

func (o DropUnique) String() string {
	return fmt.Sprintf("drop unique %s on %s", o.Name, o.Table)
}

func (o DropUnique) Tables() []string { return []string{o.Table} }

func (o DropUnique) Mutate(s *Schema) error {
	t, ok := s.Table(o.Table)
	if !ok {
		return invalidf("unknown table %s", o.Table)
	}
	if _, ok := t.Unique(o.Name); !ok {
		return invalidf("unknown unique %s on %s", o.Name, o.Table)
	}
	uniques := t.Uniques[:0]
	for _, u := range t.Uniques {
		if u.Name != o.Name {
			uniques = append(uniques, u)
		}
	}
	t.Uniques = uniques
	return nil
}

func (o DropUnique) Preconditions() []string {
	return []string{fmt.Sprintf("index %s exists", o.Name)}
}

func (o DropUnique) CheckLive(live *LiveSchema, _ *Schema) error {
	if !live.HasIndex(o.Table, o.Name) {
		return conflictf("index %s is missing", o.Name)
	}
	return nil
}

func (o DropUnique) CheckData(context.Context, Querier, *Schema) error { return nil }

func (o DropUnique) Statements(d Dialect, _, _ *Schema) ([]string, error) {
	return d.DropUnique(o.Table, &Unique{Name: o.Name}), nil
}

// ExecSQL is a portable data step between structural changes
type ExecSQL struct {
	SQL     string
	Touches []string
}

func (o ExecSQL) String() string {
	return "exec " + strings.Join(strings.Fields(o.SQL), " ")
}

func (o ExecSQL) Tables() []string { return o.Touches }

func (o ExecSQL) Mutate(s *Schema) error {
	for _, name := range o.Touches {
		if _, ok := s.Table(name); !ok {
			return invalidf("unknown table %s", name)
		}
	}
	return nil
}

func (o ExecSQL) Preconditions() []string {
	pre := make([]string, 0, len(o.Touches))
	for _, name := range o.Touches {
		pre = append(pre, fmt.Sprintf("table %s exists", name))
	}
	return pre
}

func (o ExecSQL) CheckLive(live *LiveSchema, _ *Schema) error {
	for _, name := range o.Touches {
		if !live.HasTable(name) {
			return conflictf("table %s is missing", name)
		}
	}
	return nil
}

func (o ExecSQL) CheckData(context.Context, Querier, *Schema) error { return nil }

func (o ExecSQL) Statements(Dialect, *Schema, *Schema) ([]string, error) {
	return []string{o.SQL}, nil
}

func columnString(c *Column) string {
	s := fmt.Sprintf("%s:%s", c.Name, c.Type)
	if c.Nullable {
		s += "?"
	}
	if c.Default != "" {
		s += "=" + c.Default
	}
	return s
}
