package store

import (
	"context"

	"github.com/Masterminds/squirrel"

	"github.com/eleven-am/pantry/internal/model"
)

// CompositionInput adds an ingredient to a recipe
type CompositionInput struct {
	RecipeID     int64   `db:"recipe_id" validate:"required"`
	IngredientID int64   `db:"ingredient_id" validate:"required"`
	UnitID       int64   `db:"unit_id" validate:"required"`
	Qty          float64 `db:"qty" validate:"finite,gt=0"`
	IsOptional   bool    `db:"is_optional"`
}

// CompositionPatch changes the fields that are non-nil
type CompositionPatch struct {
	Qty        *float64
	UnitID     *int64
	IsOptional *bool
}

// AddIngredient lists an ingredient in a recipe. A recipe lists each
// ingredient at most once; change an existing line with UpdateComposition.
func (s *Store) AddIngredient(ctx context.Context, in CompositionInput) (int64, error) {
	const op = "AddIngredient"
	if err := s.check(op, in); err != nil {
		return 0, err
	}

	var id int64
	err := s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRef(ctx, op, "recipe_ingredients", "recipe_id", "recipes", in.RecipeID); err != nil {
			return err
		}
		if err := tx.requireRef(ctx, op, "recipe_ingredients", "ingredient_id", "ingredients", in.IngredientID); err != nil {
			return err
		}
		if err := tx.requireRef(ctx, op, "recipe_ingredients", "unit_id", "units", in.UnitID); err != nil {
			return err
		}

		n, err := tx.count(ctx, tx.sb.Select("COUNT(*)").From("recipe_ingredients").
			Where(squirrel.Eq{"recipe_id": in.RecipeID, "ingredient_id": in.IngredientID}))
		if err != nil {
			return parseError(err, op, "recipe_ingredients")
		}
		if n > 0 {
			return &Error{Op: op, Table: "recipe_ingredients", Err: ErrDuplicate,
				Constraint: "ux_recipe_ingredients_recipe_id_ingredient_id",
				Detail:     "ingredient is already part of the recipe"}
		}

		newID, err := tx.insert(ctx, tx.sb.Insert("recipe_ingredients").
			Columns("recipe_id", "ingredient_id", "unit_id", "qty", "is_optional").
			Values(in.RecipeID, in.IngredientID, in.UnitID, in.Qty, in.IsOptional))
		if err != nil {
			return parseError(err, op, "recipe_ingredients")
		}
		id = newID
		return nil
	})
	return id, err
}

func compositionKey(recipeID, ingredientID int64) squirrel.Eq {
	return squirrel.Eq{"recipe_id": recipeID, "ingredient_id": ingredientID}
}

// UpdateComposition changes a recipe line
func (s *Store) UpdateComposition(ctx context.Context, recipeID, ingredientID int64, patch CompositionPatch) error {
	const op = "UpdateComposition"

	set := map[string]interface{}{}
	if patch.Qty != nil {
		if !finite(*patch.Qty) {
			return invalid(op, "qty", "must be a finite number")
		}
		if *patch.Qty <= 0 {
			return invalid(op, "qty", "must be greater than 0")
		}
		set["qty"] = *patch.Qty
	}
	if patch.UnitID != nil {
		set["unit_id"] = *patch.UnitID
	}
	if patch.IsOptional != nil {
		set["is_optional"] = *patch.IsOptional
	}

	return s.WithTransaction(ctx, func(tx *Store) error {
		n, err := tx.count(ctx, tx.sb.Select("COUNT(*)").From("recipe_ingredients").Where(compositionKey(recipeID, ingredientID)))
		if err != nil {
			return parseError(err, op, "recipe_ingredients")
		}
		if n == 0 {
			return &Error{Op: op, Table: "recipe_ingredients", Err: ErrNotFound}
		}
		if len(set) == 0 {
			return nil
		}
		if patch.UnitID != nil {
			if err := tx.requireRef(ctx, op, "recipe_ingredients", "unit_id", "units", *patch.UnitID); err != nil {
				return err
			}
		}
		_, err = tx.execute(ctx, tx.sb.Update("recipe_ingredients").SetMap(set).Where(compositionKey(recipeID, ingredientID)))
		return parseError(err, op, "recipe_ingredients")
	})
}

// RemoveIngredient drops an ingredient from a recipe
func (s *Store) RemoveIngredient(ctx context.Context, recipeID, ingredientID int64) error {
	const op = "RemoveIngredient"
	n, err := s.execute(ctx, s.sb.Delete("recipe_ingredients").Where(compositionKey(recipeID, ingredientID)))
	if err != nil {
		return parseError(err, op, "recipe_ingredients")
	}
	if n == 0 {
		return &Error{Op: op, Table: "recipe_ingredients", Err: ErrNotFound}
	}
	return nil
}

// ListComposition returns a recipe's lines in insertion order
func (s *Store) ListComposition(ctx context.Context, recipeID int64) ([]model.RecipeIngredient, error) {
	const op = "ListComposition"
	if err := s.requireRow(ctx, op, "recipes", recipeID); err != nil {
		return nil, err
	}

	lines := []model.RecipeIngredient{}
	q := s.sb.Select("id", "recipe_id", "ingredient_id", "unit_id", "qty", "is_optional").
		From("recipe_ingredients").
		Where(squirrel.Eq{"recipe_id": recipeID}).
		OrderBy("id")
	if err := s.query(ctx, &lines, q); err != nil {
		return nil, parseError(err, op, "recipe_ingredients")
	}
	return lines, nil
}
