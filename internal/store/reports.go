package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/eleven-am/pantry/internal/model"
)

type compositionRow struct {
	RecipeID int64 `db:"recipe_id"`
	model.CompositionLine
}

func (s *Store) compositionLines(ctx context.Context, op string, recipeID *int64) ([]compositionRow, error) {
	q := s.sb.Select(
		"ri.id AS id",
		"ri.recipe_id AS recipe_id",
		"ri.ingredient_id AS ingredient_id",
		"i.ingredient AS ingredient",
		"ri.qty AS qty",
		"ri.unit_id AS unit_id",
		"u.name AS unit",
		"ri.is_optional AS is_optional",
	).
		From("recipe_ingredients ri").
		Join("ingredients i ON i.id = ri.ingredient_id").
		Join("units u ON u.id = ri.unit_id").
		OrderBy("ri.recipe_id", "ri.id")
	if recipeID != nil {
		q = q.Where(squirrel.Eq{"ri.recipe_id": *recipeID})
	}

	var rows []compositionRow
	if err := s.query(ctx, &rows, q); err != nil {
		return nil, parseError(err, op, "recipe_ingredients")
	}
	return rows, nil
}

// ListRecipesWithIngredients returns every recipe with its resolved
// ingredient lines, recipes by name and lines in insertion order
func (s *Store) ListRecipesWithIngredients(ctx context.Context) ([]model.RecipeWithIngredients, error) {
	const op = "ListRecipesWithIngredients"

	var out []model.RecipeWithIngredients
	err := s.WithTransaction(ctx, func(tx *Store) error {
		recipes, err := tx.ListRecipes(ctx, RecipeFilter{})
		if err != nil {
			return err
		}
		rows, err := tx.compositionLines(ctx, op, nil)
		if err != nil {
			return err
		}

		byRecipe := make(map[int64][]model.CompositionLine)
		for _, row := range rows {
			byRecipe[row.RecipeID] = append(byRecipe[row.RecipeID], row.CompositionLine)
		}

		out = make([]model.RecipeWithIngredients, len(recipes))
		for i, r := range recipes {
			lines := byRecipe[r.ID]
			if lines == nil {
				lines = []model.CompositionLine{}
			}
			out[i] = model.RecipeWithIngredients{Recipe: r, Ingredients: lines}
		}
		return nil
	})
	return out, err
}

type priceCandidate struct {
	ProductID int64           `db:"product_id"`
	Brand     string          `db:"brand"`
	Size      string          `db:"size"`
	Date      model.Date      `db:"date"`
	Cost      decimal.Decimal `db:"cost"`
}

// cheapestLatest picks, among the products of an ingredient, the cheapest of
// each product's latest price
func cheapestLatest(candidates []priceCandidate) (priceCandidate, bool) {
	latest := make(map[int64]priceCandidate)
	var order []int64
	for _, c := range candidates {
		cur, ok := latest[c.ProductID]
		if !ok {
			order = append(order, c.ProductID)
		}
		if !ok || c.Date.After(cur.Date) {
			latest[c.ProductID] = c
		}
	}

	var best priceCandidate
	found := false
	for _, id := range order {
		c := latest[id]
		if !found || c.Cost.LessThan(best.Cost) {
			best = c
			found = true
		}
	}
	return best, found
}

// RecipeCost totals one package of every ingredient at the cheapest latest
// price known on asOf. When some ingredient cannot be priced the partial
// rollup is returned together with a *PartialDataWarning.
func (s *Store) RecipeCost(ctx context.Context, recipeID int64, asOf model.Date) (*model.CostRollup, error) {
	const op = "RecipeCost"
	if err := checkDay(op, asOf); err != nil {
		return nil, err
	}

	rollup := &model.CostRollup{RecipeID: recipeID, AsOf: asOf, Total: decimal.Zero, Lines: []model.CostLine{}}
	err := s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRow(ctx, op, "recipes", recipeID); err != nil {
			return err
		}
		rows, err := tx.compositionLines(ctx, op, &recipeID)
		if err != nil {
			return err
		}

		for _, row := range rows {
			var candidates []priceCandidate
			q := tx.sb.Select("p.id AS product_id", "p.brand AS brand", "p.size AS size", "pr.date AS date", "pr.cost AS cost").
				From("products p").
				Join("prices pr ON pr.product_id = p.id").
				Where(squirrel.Eq{"p.ingredient_id": row.IngredientID}).
				Where(squirrel.LtOrEq{"pr.date": asOf}).
				OrderBy("p.id", "pr.date")
			if err := tx.query(ctx, &candidates, q); err != nil {
				return parseError(err, op, "prices")
			}

			best, ok := cheapestLatest(candidates)
			if !ok {
				rollup.Unresolved = append(rollup.Unresolved, row.Ingredient)
				continue
			}

			rollup.Lines = append(rollup.Lines, model.CostLine{
				IngredientID: row.IngredientID,
				Ingredient:   row.Ingredient,
				ProductID:    best.ProductID,
				Brand:        best.Brand,
				Size:         best.Size,
				PriceDate:    best.Date,
				Cost:         best.Cost,
				IsOptional:   row.IsOptional,
			})
			rollup.Total = rollup.Total.Add(best.Cost)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rollup.Complete() {
		s.log.Store().Debug("Recipe cost is partial", "recipe_id", recipeID, "missing", rollup.Unresolved)
		return rollup, &PartialDataWarning{RecipeID: recipeID, Missing: rollup.Unresolved}
	}
	return rollup, nil
}
