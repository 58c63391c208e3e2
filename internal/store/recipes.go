package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/eleven-am/pantry/internal/model"
)

var recipeColumns = []string{
	"id", "recipe_name", "instructions", "servings", "last_made", "on_schedule", "category_id", "frequency_id",
}

// qualified prefixes columns with a table alias, keeping the bare names
func qualified(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = fmt.Sprintf("%s.%s AS %s", alias, c, c)
	}
	return out
}

// RecipeInput describes a new recipe
type RecipeInput struct {
	Name         string          `db:"recipe_name" validate:"required"`
	Instructions string          `db:"instructions"`
	Servings     int             `db:"servings" validate:"gt=0"`
	CategoryID   int64           `db:"category_id" validate:"required"`
	FrequencyID  sql.Null[int64] `db:"frequency_id"`
	LastMade     model.NullDate  `db:"last_made" validate:"-"`
	OnSchedule   bool            `db:"on_schedule"`
}

// RecipePatch changes the fields that are non-nil
type RecipePatch struct {
	Name         *string
	Instructions *string
	Servings     *int
	CategoryID   *int64
	FrequencyID  *sql.Null[int64]
	LastMade     *model.NullDate
	OnSchedule   *bool
}

func (s *Store) checkRecipeRefs(ctx context.Context, op string, categoryID *int64, frequencyID *sql.Null[int64]) error {
	if categoryID != nil {
		if err := s.requireRef(ctx, op, "recipes", "category_id", "categories", *categoryID); err != nil {
			return err
		}
	}
	if frequencyID != nil && frequencyID.Valid {
		if err := s.requireRef(ctx, op, "recipes", "frequency_id", "frequencies", frequencyID.V); err != nil {
			return err
		}
	}
	return nil
}

// warnUnscheduled records recipes flagged as on schedule with nothing to
// schedule them by. They are kept as entered.
func (s *Store) warnUnscheduled(r *model.Recipe) {
	if r.OnSchedule && !r.FrequencyID.Valid {
		s.log.Store().Warn("Recipe is on schedule without a frequency", "recipe_id", r.ID, "recipe", r.RecipeName)
	}
}

// CreateRecipe adds a recipe
func (s *Store) CreateRecipe(ctx context.Context, in RecipeInput) (int64, error) {
	const op = "CreateRecipe"
	if err := s.check(op, in); err != nil {
		return 0, err
	}

	var id int64
	err := s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.checkRecipeRefs(ctx, op, &in.CategoryID, &in.FrequencyID); err != nil {
			return err
		}
		newID, err := tx.insert(ctx, tx.sb.Insert("recipes").
			Columns("recipe_name", "instructions", "servings", "last_made", "on_schedule", "category_id", "frequency_id").
			Values(in.Name, in.Instructions, in.Servings, in.LastMade, in.OnSchedule, in.CategoryID, in.FrequencyID))
		if err != nil {
			return parseError(err, op, "recipes")
		}
		id = newID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.warnUnscheduled(&model.Recipe{ID: id, RecipeName: in.Name, OnSchedule: in.OnSchedule, FrequencyID: in.FrequencyID})
	return id, nil
}

// UpdateRecipe applies a patch. Changed references are re-validated.
func (s *Store) UpdateRecipe(ctx context.Context, id int64, patch RecipePatch) error {
	const op = "UpdateRecipe"

	set := map[string]interface{}{}
	if patch.Name != nil {
		if *patch.Name == "" {
			return invalid(op, "recipe_name", "is required")
		}
		set["recipe_name"] = *patch.Name
	}
	if patch.Instructions != nil {
		set["instructions"] = *patch.Instructions
	}
	if patch.Servings != nil {
		if *patch.Servings <= 0 {
			return invalid(op, "servings", "must be greater than 0")
		}
		set["servings"] = *patch.Servings
	}
	if patch.CategoryID != nil {
		set["category_id"] = *patch.CategoryID
	}
	if patch.FrequencyID != nil {
		set["frequency_id"] = *patch.FrequencyID
	}
	if patch.LastMade != nil {
		set["last_made"] = *patch.LastMade
	}
	if patch.OnSchedule != nil {
		set["on_schedule"] = *patch.OnSchedule
	}

	var updated *model.Recipe
	err := s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRow(ctx, op, "recipes", id); err != nil {
			return err
		}
		if len(set) == 0 {
			return nil
		}
		if err := tx.checkRecipeRefs(ctx, op, patch.CategoryID, patch.FrequencyID); err != nil {
			return err
		}
		if _, err := tx.execute(ctx, tx.sb.Update("recipes").SetMap(set).Where(squirrel.Eq{"id": id})); err != nil {
			return parseError(err, op, "recipes")
		}
		r, err := tx.GetRecipe(ctx, id)
		if err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		s.warnUnscheduled(updated)
	}
	return nil
}

func (s *Store) GetRecipe(ctx context.Context, id int64) (*model.Recipe, error) {
	var r model.Recipe
	q := s.sb.Select(recipeColumns...).From("recipes").Where(squirrel.Eq{"id": id})
	if err := s.get(ctx, &r, q); err != nil {
		return nil, parseError(err, "GetRecipe", "recipes")
	}
	return &r, nil
}

// RecipeFilter narrows ListRecipes
type RecipeFilter struct {
	CategoryID *int64
	OnSchedule *bool
}

// ListRecipes returns recipes ordered by name then id
func (s *Store) ListRecipes(ctx context.Context, filter RecipeFilter) ([]model.Recipe, error) {
	q := s.sb.Select(recipeColumns...).From("recipes").OrderBy("recipe_name", "id")
	if filter.CategoryID != nil {
		q = q.Where(squirrel.Eq{"category_id": *filter.CategoryID})
	}
	if filter.OnSchedule != nil {
		q = q.Where(squirrel.Eq{"on_schedule": *filter.OnSchedule})
	}

	recipes := []model.Recipe{}
	if err := s.query(ctx, &recipes, q); err != nil {
		return nil, parseError(err, "ListRecipes", "recipes")
	}
	return recipes, nil
}

// DeleteRecipe removes a recipe and its composition
func (s *Store) DeleteRecipe(ctx context.Context, id int64) error {
	return s.deleteOwned(ctx, "DeleteRecipe", "recipes", id)
}

// MarkMade records the day a recipe was last cooked
func (s *Store) MarkMade(ctx context.Context, id int64, day model.Date) error {
	const op = "MarkMade"
	if day.IsZero() {
		return invalid(op, "last_made", "is required")
	}
	n, err := s.execute(ctx, s.sb.Update("recipes").Set("last_made", day).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return parseError(err, op, "recipes")
	}
	if n == 0 {
		return notFound(op, "recipes", id)
	}
	return nil
}

// DueRecipes returns the scheduled recipes whose interval has elapsed as of
// the given day. Recipes never made are always due. Frequencies without a
// duration schedule nothing.
func (s *Store) DueRecipes(ctx context.Context, asOf model.Date) ([]model.Recipe, error) {
	var rows []struct {
		model.Recipe
		Duration int64 `db:"duration"`
	}

	q := s.sb.Select(append(qualified("r", recipeColumns), "f.duration AS duration")...).
		From("recipes r").
		Join("frequencies f ON f.id = r.frequency_id").
		Where(squirrel.Eq{"r.on_schedule": true}).
		Where(squirrel.NotEq{"f.duration": nil}).
		OrderBy("r.recipe_name", "r.id")
	if err := s.query(ctx, &rows, q); err != nil {
		return nil, parseError(err, "DueRecipes", "recipes")
	}

	due := []model.Recipe{}
	for _, row := range rows {
		if !row.LastMade.Valid || !row.LastMade.Date.AddDays(int(row.Duration)).After(asOf) {
			due = append(due, row.Recipe)
		}
	}
	return due, nil
}
