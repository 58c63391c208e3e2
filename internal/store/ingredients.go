package store

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"

	"github.com/eleven-am/pantry/internal/model"
)

var ingredientColumns = []string{"id", "ingredient", "location_id", "unit_id", "qty", "is_favorite"}

// IngredientInput describes a new ingredient. Qty is optional: absent means
// the ingredient is not quantity-tracked.
type IngredientInput struct {
	Name       string            `db:"ingredient" validate:"required"`
	LocationID int64             `db:"location_id" validate:"required"`
	UnitID     int64             `db:"unit_id" validate:"required"`
	Qty        sql.Null[float64] `db:"qty" validate:"omitempty,finite,gte=0"`
	IsFavorite bool              `db:"is_favorite"`
}

// Set returns a patch value that sets v. Optional patch fields are tri-state:
// nil leaves the value alone, Clear removes it and Set replaces it.
func Set[T any](v T) *sql.Null[T] {
	return &sql.Null[T]{V: v, Valid: true}
}

// Clear returns a patch value that clears the field
func Clear[T any]() *sql.Null[T] {
	return &sql.Null[T]{}
}

// IngredientPatch changes the fields that are non-nil
type IngredientPatch struct {
	Name       *string
	LocationID *int64
	UnitID     *int64
	Qty        *sql.Null[float64]
	IsFavorite *bool
}

func (s *Store) checkIngredientRefs(ctx context.Context, op string, locationID, unitID *int64) error {
	if locationID != nil {
		if err := s.requireRef(ctx, op, "ingredients", "location_id", "locations", *locationID); err != nil {
			return err
		}
	}
	if unitID != nil {
		if err := s.requireRef(ctx, op, "ingredients", "unit_id", "units", *unitID); err != nil {
			return err
		}
	}
	return nil
}

// CreateIngredient adds an ingredient. Names are not unique.
func (s *Store) CreateIngredient(ctx context.Context, in IngredientInput) (int64, error) {
	const op = "CreateIngredient"
	if err := s.check(op, in); err != nil {
		return 0, err
	}

	var id int64
	err := s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.checkIngredientRefs(ctx, op, &in.LocationID, &in.UnitID); err != nil {
			return err
		}
		newID, err := tx.insert(ctx, tx.sb.Insert("ingredients").
			Columns("ingredient", "location_id", "unit_id", "qty", "is_favorite").
			Values(in.Name, in.LocationID, in.UnitID, in.Qty, in.IsFavorite))
		if err != nil {
			return parseError(err, op, "ingredients")
		}
		id = newID
		return nil
	})
	return id, err
}

// UpdateIngredient applies a patch. Changed references are re-validated.
func (s *Store) UpdateIngredient(ctx context.Context, id int64, patch IngredientPatch) error {
	const op = "UpdateIngredient"

	set := map[string]interface{}{}
	if patch.Name != nil {
		if *patch.Name == "" {
			return invalid(op, "ingredient", "is required")
		}
		set["ingredient"] = *patch.Name
	}
	if patch.LocationID != nil {
		set["location_id"] = *patch.LocationID
	}
	if patch.UnitID != nil {
		set["unit_id"] = *patch.UnitID
	}
	if patch.Qty != nil {
		if patch.Qty.Valid && !finite(patch.Qty.V) {
			return invalid(op, "qty", "must be a finite number")
		}
		if patch.Qty.Valid && patch.Qty.V < 0 {
			return invalid(op, "qty", "must be at least 0")
		}
		set["qty"] = *patch.Qty
	}
	if patch.IsFavorite != nil {
		set["is_favorite"] = *patch.IsFavorite
	}

	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRow(ctx, op, "ingredients", id); err != nil {
			return err
		}
		if len(set) == 0 {
			return nil
		}
		if err := tx.checkIngredientRefs(ctx, op, patch.LocationID, patch.UnitID); err != nil {
			return err
		}
		_, err := tx.execute(ctx, tx.sb.Update("ingredients").SetMap(set).Where(squirrel.Eq{"id": id}))
		return parseError(err, op, "ingredients")
	})
}

func (s *Store) GetIngredient(ctx context.Context, id int64) (*model.Ingredient, error) {
	var ing model.Ingredient
	q := s.sb.Select(ingredientColumns...).From("ingredients").Where(squirrel.Eq{"id": id})
	if err := s.get(ctx, &ing, q); err != nil {
		return nil, parseError(err, "GetIngredient", "ingredients")
	}
	return &ing, nil
}

// IngredientFilter narrows ListIngredients
type IngredientFilter struct {
	LocationID    *int64
	FavoritesOnly bool
}

// ListIngredients returns ingredients ordered by name then id
func (s *Store) ListIngredients(ctx context.Context, filter IngredientFilter) ([]model.Ingredient, error) {
	q := s.sb.Select(ingredientColumns...).From("ingredients").OrderBy("ingredient", "id")
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.FavoritesOnly {
		q = q.Where(squirrel.Eq{"is_favorite": true})
	}

	ingredients := []model.Ingredient{}
	if err := s.query(ctx, &ingredients, q); err != nil {
		return nil, parseError(err, "ListIngredients", "ingredients")
	}
	return ingredients, nil
}

// DeleteIngredient removes an ingredient with its products, their prices and
// every recipe line that uses it, atomically.
func (s *Store) DeleteIngredient(ctx context.Context, id int64) error {
	return s.deleteOwned(ctx, "DeleteIngredient", "ingredients", id)
}
