package model

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Entry is a reference register row reduced to its label
type Entry struct {
	ID    int64  `db:"id"`
	Label string `db:"label"`
}

type Unit struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type Store struct {
	ID        int64  `db:"id"`
	StoreName string `db:"store_name"`
	Address   string `db:"address"`
}

type Category struct {
	ID       int64  `db:"id"`
	Category string `db:"category"`
}

type Department struct {
	ID         int64  `db:"id"`
	Department string `db:"department"`
}

type Location struct {
	ID       int64  `db:"id"`
	Location string `db:"location"`
}

func (l Location) String() string {
	return l.Location
}

// Frequency is a cooking cadence. A NULL duration is an unscheduled interval.
type Frequency struct {
	ID        int64           `db:"id"`
	Frequency string          `db:"frequency"`
	Duration  sql.Null[int64] `db:"duration"`
}

// Ingredient is a canonical ingredient. A NULL qty means the ingredient is not
// quantity-tracked, which is not the same as zero on hand.
type Ingredient struct {
	ID         int64             `db:"id"`
	Ingredient string            `db:"ingredient"`
	LocationID int64             `db:"location_id"`
	UnitID     int64             `db:"unit_id"`
	Qty        sql.Null[float64] `db:"qty"`
	IsFavorite bool              `db:"is_favorite"`
}

type Recipe struct {
	ID           int64           `db:"id"`
	RecipeName   string          `db:"recipe_name"`
	Instructions string          `db:"instructions"`
	Servings     int             `db:"servings"`
	LastMade     NullDate        `db:"last_made"`
	OnSchedule   bool            `db:"on_schedule"`
	CategoryID   int64           `db:"category_id"`
	FrequencyID  sql.Null[int64] `db:"frequency_id"`
}

// RecipeIngredient is one line of a recipe's composition
type RecipeIngredient struct {
	ID           int64   `db:"id"`
	RecipeID     int64   `db:"recipe_id"`
	IngredientID int64   `db:"ingredient_id"`
	UnitID       int64   `db:"unit_id"`
	Qty          float64 `db:"qty"`
	IsOptional   bool    `db:"is_optional"`
}

type Product struct {
	ID           int64            `db:"id"`
	IngredientID int64            `db:"ingredient_id"`
	Brand        string           `db:"brand"`
	Size         string           `db:"size"`
	StoreID      int64            `db:"store_id"`
	DepartmentID int64            `db:"department_id"`
	Isle         sql.Null[string] `db:"isle"`
}

// Price is one dated cost observation for a product
type Price struct {
	ID        int64           `db:"id"`
	ProductID int64           `db:"product_id"`
	Date      Date            `db:"date"`
	Cost      decimal.Decimal `db:"cost"`
}

// PricePoint is a point of a price series
type PricePoint struct {
	Date Date            `db:"date"`
	Cost decimal.Decimal `db:"cost"`
}

// CompositionLine is a resolved composition row for reporting
type CompositionLine struct {
	ID           int64   `db:"id"`
	IngredientID int64   `db:"ingredient_id"`
	Ingredient   string  `db:"ingredient"`
	Qty          float64 `db:"qty"`
	UnitID       int64   `db:"unit_id"`
	Unit         string  `db:"unit"`
	IsOptional   bool    `db:"is_optional"`
}

type RecipeWithIngredients struct {
	Recipe      Recipe
	Ingredients []CompositionLine
}

// CostLine is the resolved price of one ingredient in a cost rollup
type CostLine struct {
	IngredientID int64
	Ingredient   string
	ProductID    int64
	Brand        string
	Size         string
	PriceDate    Date
	Cost         decimal.Decimal
	IsOptional   bool
}

// CostRollup is the cost of a recipe as of a date
type CostRollup struct {
	RecipeID   int64
	AsOf       Date
	Total      decimal.Decimal
	Lines      []CostLine
	Unresolved []string
}

// Complete reports whether every ingredient resolved to a price
func (c *CostRollup) Complete() bool {
	return len(c.Unresolved) == 0
}
