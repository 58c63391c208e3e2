package store

import (
	m "github.com/eleven-am/pantry/internal/migrator"
)

func idColumn() *m.Column { return &m.Column{Name: "id", Type: m.TypeID} }

func textColumn(name string) *m.Column { return &m.Column{Name: name, Type: m.TypeText} }

func refColumn(name string) *m.Column { return &m.Column{Name: name, Type: m.TypeRef} }

func restrict(column, table string) *m.ForeignKey {
	return &m.ForeignKey{Column: column, RefTable: table, OnDelete: m.OnDeleteRestrict}
}

func cascade(column, table string) *m.ForeignKey {
	return &m.ForeignKey{Column: column, RefTable: table, OnDelete: m.OnDeleteCascade}
}

func uniqueOn(table string, columns ...string) *m.Unique {
	return &m.Unique{Name: m.UniqueName(table, columns...), Columns: columns}
}

// labelTable is a register with a single unique label column
func labelTable(name, label string) *m.Table {
	return &m.Table{
		Name:    name,
		Columns: []*m.Column{idColumn(), textColumn(label)},
		Uniques: []*m.Unique{uniqueOn(name, label)},
	}
}

// Changelog is the ordered list of structural changes that produce the
// current schema. Entries are append-only: a released change is never edited.
func Changelog() []m.Change {
	ops := []struct {
		description string
		op          m.Operation
	}{
		{"create units", m.CreateTable{Table: labelTable("units", "name")}},
		{"create stores", m.CreateTable{Table: &m.Table{
			Name: "stores",
			Columns: []*m.Column{
				idColumn(),
				textColumn("store_name"),
				{Name: "address", Type: m.TypeText, Default: "''"},
			},
		}}},
		{"create categories", m.CreateTable{Table: labelTable("categories", "category")}},
		{"create departments", m.CreateTable{Table: labelTable("departments", "department")}},
		{"create frequencies", m.CreateTable{Table: &m.Table{
			Name: "frequencies",
			Columns: []*m.Column{
				idColumn(),
				textColumn("frequency"),
				{Name: "days", Type: m.TypeInteger, Nullable: true},
			},
		}}},
		{"create ingredients", m.CreateTable{Table: &m.Table{
			Name: "ingredients",
			Columns: []*m.Column{
				idColumn(),
				textColumn("ingredient"),
				refColumn("location_id"),
				refColumn("unit_id"),
				{Name: "qty", Type: m.TypeFloat, Nullable: true},
			},
			ForeignKeys: []*m.ForeignKey{
				restrict("location_id", "departments"),
				restrict("unit_id", "units"),
			},
		}}},
		{"create recipes", m.CreateTable{Table: &m.Table{
			Name: "recipes",
			Columns: []*m.Column{
				idColumn(),
				textColumn("recipe_name"),
				{Name: "instructions", Type: m.TypeText, Default: "''"},
				{Name: "servings", Type: m.TypeInteger},
				{Name: "last_made", Type: m.TypeDate, Nullable: true},
				{Name: "on_schedule", Type: m.TypeBool, Default: "false"},
				refColumn("category_id"),
				{Name: "frequency_id", Type: m.TypeRef, Nullable: true},
			},
			ForeignKeys: []*m.ForeignKey{
				restrict("category_id", "categories"),
				restrict("frequency_id", "frequencies"),
			},
		}}},
		{"create recipe ingredients", m.CreateTable{Table: &m.Table{
			Name: "recipe_ingredients",
			Columns: []*m.Column{
				idColumn(),
				refColumn("recipe_id"),
				refColumn("ingredient_id"),
				refColumn("unit_id"),
				{Name: "qty", Type: m.TypeFloat},
				{Name: "is_optional", Type: m.TypeBool, Default: "false"},
			},
			ForeignKeys: []*m.ForeignKey{
				cascade("recipe_id", "recipes"),
				cascade("ingredient_id", "ingredients"),
				restrict("unit_id", "units"),
			},
			Uniques: []*m.Unique{uniqueOn("recipe_ingredients", "recipe_id", "ingredient_id")},
		}}},
		{"create products", m.CreateTable{Table: &m.Table{
			Name: "products",
			Columns: []*m.Column{
				idColumn(),
				refColumn("ingredient_id"),
				textColumn("brand"),
				textColumn("size"),
				refColumn("store_id"),
				refColumn("department_id"),
			},
			ForeignKeys: []*m.ForeignKey{
				cascade("ingredient_id", "ingredients"),
				restrict("store_id", "stores"),
				restrict("department_id", "departments"),
			},
		}}},
		{"create prices", m.CreateTable{Table: &m.Table{
			Name: "prices",
			Columns: []*m.Column{
				idColumn(),
				refColumn("product_id"),
				{Name: "date", Type: m.TypeDate},
				{Name: "cost", Type: m.TypeMoney},
			},
			ForeignKeys: []*m.ForeignKey{cascade("product_id", "products")},
			Uniques:     []*m.Unique{uniqueOn("prices", "product_id", "date")},
		}}},
		{"create locations", m.CreateTable{Table: labelTable("locations", "location")}},
		{"seed locations from ingredient departments", m.ExecSQL{
			SQL: `INSERT INTO locations (location)
				SELECT DISTINCT d.department FROM departments d
				JOIN ingredients i ON i.location_id = d.id`,
			Touches: []string{"locations", "departments", "ingredients"},
		}},
		{"locate ingredients by location", m.RetargetForeignKey{
			Table:  "ingredients",
			Column: "location_id",
			To:     "locations",
			Map:    &m.LabelMap{FromLabel: "department", ToLabel: "location"},
		}},
		{"rename frequency days to duration", m.RenameColumn{Table: "frequencies", From: "days", To: "duration"}},
		{"unique store names", m.AddUnique{Table: "stores", Columns: []string{"store_name"}}},
		{"unique frequency labels", m.AddUnique{Table: "frequencies", Columns: []string{"frequency"}}},
		{"add product isle", m.AddColumn{Table: "products", Column: &m.Column{Name: "isle", Type: m.TypeText, Nullable: true}}},
		{"add ingredient favourites", m.AddColumn{Table: "ingredients", Column: &m.Column{Name: "is_favorite", Type: m.TypeBool, Default: "false"}}},
	}

	changes := make([]m.Change, len(ops))
	for i, o := range ops {
		changes[i] = m.Change{Version: i + 1, Description: o.description, Operation: o.op}
	}
	return changes
}
