package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/pantry/internal/model"
)

func TestListRecipesWithIngredients(t *testing.T) {
	f := newFixture(t)
	flour := f.ingredient(t, "flour")
	eggs := f.ingredient(t, "eggs")
	waffles := f.recipe(t, "Waffles")
	pancakes := f.recipe(t, "Pancakes")
	f.recipe(t, "Toast")

	add := func(recipe, ingredient int64, qty float64, optional bool) {
		t.Helper()
		_, err := f.s.AddIngredient(f.ctx, CompositionInput{
			RecipeID: recipe, IngredientID: ingredient, UnitID: f.cup, Qty: qty, IsOptional: optional,
		})
		require.NoError(t, err)
	}
	add(pancakes, eggs, 2, false)
	add(pancakes, flour, 1.5, false)
	add(waffles, flour, 2, true)

	all, err := f.s.ListRecipesWithIngredients(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "Pancakes", all[0].Recipe.RecipeName)
	require.Len(t, all[0].Ingredients, 2)
	assert.Equal(t, "eggs", all[0].Ingredients[0].Ingredient)
	assert.Equal(t, "cup", all[0].Ingredients[0].Unit)
	assert.Equal(t, 2.0, all[0].Ingredients[0].Qty)
	assert.Equal(t, "flour", all[0].Ingredients[1].Ingredient)
	assert.Equal(t, 1.5, all[0].Ingredients[1].Qty)

	assert.Equal(t, "Toast", all[1].Recipe.RecipeName)
	assert.Empty(t, all[1].Ingredients)
	assert.NotNil(t, all[1].Ingredients)

	assert.Equal(t, "Waffles", all[2].Recipe.RecipeName)
	require.Len(t, all[2].Ingredients, 1)
	assert.True(t, all[2].Ingredients[0].IsOptional)
}

func TestCheapestLatest(t *testing.T) {
	candidates := []priceCandidate{
		{ProductID: 1, Date: mustDate("2024-01-01"), Cost: mustDecimal("3.00")},
		{ProductID: 1, Date: mustDate("2024-02-01"), Cost: mustDecimal("6.00")},
		{ProductID: 2, Date: mustDate("2024-01-15"), Cost: mustDecimal("4.00")},
	}

	best, ok := cheapestLatest(candidates)
	require.True(t, ok)
	assert.Equal(t, int64(2), best.ProductID)
	assert.Equal(t, "4.00", best.Cost.StringFixed(2))

	_, ok = cheapestLatest(nil)
	assert.False(t, ok)
}

func TestRecipeCost(t *testing.T) {
	f := newFixture(t)
	flour := f.ingredient(t, "flour")
	eggs := f.ingredient(t, "eggs")
	milk := f.ingredient(t, "milk")
	pancakes := f.recipe(t, "Pancakes")
	for _, id := range []int64{flour, eggs} {
		_, err := f.s.AddIngredient(f.ctx, CompositionInput{RecipeID: pancakes, IngredientID: id, UnitID: f.cup, Qty: 1})
		require.NoError(t, err)
	}
	_, err := f.s.AddIngredient(f.ctx, CompositionInput{RecipeID: pancakes, IngredientID: milk, UnitID: f.cup, Qty: 1, IsOptional: true})
	require.NoError(t, err)

	acme := f.product(t, flour, "Acme")
	house := f.product(t, flour, "House")
	farm := f.product(t, eggs, "Farm")
	dairy := f.product(t, milk, "Dairy")

	record := func(product int64, day, cost string) {
		t.Helper()
		require.NoError(t, f.s.RecordPrice(f.ctx, product, mustDate(day), mustDecimal(cost)))
	}
	record(acme, "2024-01-01", "4.99")
	record(acme, "2024-03-01", "5.25")
	record(house, "2024-02-01", "5.10")
	record(farm, "2024-01-15", "3.00")
	record(dairy, "2024-04-01", "1.20")

	tests := []struct {
		name    string
		asOf    string
		total   string
		brands  []string
		missing []string
	}{
		{"before any price", "2023-12-31", "0.00", []string{}, []string{"flour", "eggs", "milk"}},
		{"only flour priced", "2024-01-10", "4.99", []string{"Acme"}, []string{"eggs", "milk"}},
		{"cheapest product wins", "2024-02-10", "7.99", []string{"Acme", "Farm"}, []string{"milk"}},
		{"latest price replaces older", "2024-03-10", "8.10", []string{"House", "Farm"}, []string{"milk"}},
		{"optional lines are included", "2024-04-01", "9.30", []string{"House", "Farm", "Dairy"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rollup, err := f.s.RecipeCost(f.ctx, pancakes, mustDate(tt.asOf))
			require.NotNil(t, rollup)

			if tt.missing == nil {
				require.NoError(t, err)
				assert.True(t, rollup.Complete())
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrPartialData)

				var warning *PartialDataWarning
				require.ErrorAs(t, err, &warning)
				assert.Equal(t, tt.missing, warning.Missing)
				assert.Equal(t, tt.missing, rollup.Unresolved)
			}

			assert.Equal(t, tt.total, rollup.Total.StringFixed(2))
			brands := []string{}
			for _, line := range rollup.Lines {
				brands = append(brands, line.Brand)
				assert.False(t, line.PriceDate.After(mustDate(tt.asOf)))
			}
			assert.Equal(t, tt.brands, brands)
		})
	}

	t.Run("errors", func(t *testing.T) {
		_, err := f.s.RecipeCost(f.ctx, 999, mustDate("2024-01-01"))
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = f.s.RecipeCost(f.ctx, pancakes, model.Date{})
		assert.ErrorIs(t, err, ErrValidation)
	})
}
