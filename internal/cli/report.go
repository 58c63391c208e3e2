package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/eleven-am/pantry/internal/model"
	"github.com/eleven-am/pantry/internal/store"
)

var costAsOf string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print recipe reports",
}

var reportRecipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "List every recipe with its ingredients",
	Args:  cobra.NoArgs,
	RunE:  runReportRecipes,
}

var reportCostCmd = &cobra.Command{
	Use:   "cost <recipe-id>",
	Short: "Cost a recipe from the latest known prices",
	Long: `Totals one package of every ingredient of a recipe, using for each
ingredient the cheapest of its products' latest prices on or before --as-of.
Ingredients without a price are listed as missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runReportCost,
}

func init() {
	reportCostCmd.Flags().StringVar(&costAsOf, "as-of", "", "price date, YYYY-MM-DD (default: today)")

	reportCmd.AddCommand(reportRecipesCmd)
	reportCmd.AddCommand(reportCostCmd)
}

func runReportRecipes(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd, time.Minute)
	defer cancel()

	s, closeFn, err := openCurrentStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	recipes, err := s.ListRecipesWithIngredients(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recipes) == 0 {
		fmt.Fprintln(out, "No recipes")
		return nil
	}
	for _, r := range recipes {
		fmt.Fprintf(out, "%s (serves %d)\n", r.Recipe.RecipeName, r.Recipe.Servings)
		for _, line := range r.Ingredients {
			optional := ""
			if line.IsOptional {
				optional = " (optional)"
			}
			fmt.Fprintf(out, "  - %s %s %s%s\n", strconv.FormatFloat(line.Qty, 'f', -1, 64), line.Unit, line.Ingredient, optional)
		}
	}
	return nil
}

func runReportCost(cmd *cobra.Command, args []string) error {
	recipeID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid recipe id %q", args[0])
	}

	asOf := model.Today()
	if costAsOf != "" {
		asOf, err = model.ParseDate(costAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	ctx, cancel := commandContext(cmd, time.Minute)
	defer cancel()

	s, closeFn, err := openCurrentStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	recipe, err := s.GetRecipe(ctx, recipeID)
	if err != nil {
		return err
	}

	rollup, err := s.RecipeCost(ctx, recipeID, asOf)
	var warning *store.PartialDataWarning
	if err != nil && !errors.As(err, &warning) {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s as of %s\n", recipe.RecipeName, asOf)
	for _, line := range rollup.Lines {
		optional := ""
		if line.IsOptional {
			optional = " (optional)"
		}
		fmt.Fprintf(out, "  %-20s %-24s %s %10s%s\n",
			line.Ingredient, line.Brand+" "+line.Size, line.PriceDate, line.Cost.StringFixed(2), optional)
	}
	fmt.Fprintf(out, "Total: %s\n", rollup.Total.StringFixed(2))

	if warning != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", warning)
	}
	return nil
}
