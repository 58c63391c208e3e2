package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eleven-am/pantry/internal/config"
)

var (
	initPath  string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new pantry configuration file",
	Long: `Creates a pantry.yaml configuration file with default settings.
Global --driver and --url flags are written into the file.`,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "pantry.yaml", "where to write the configuration file")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists. Use --force to overwrite", initPath)
	}

	cfg := config.Default()
	if driverName != "" {
		cfg.Database.Driver = driverName
	}
	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.Save(cfg, initPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", initPath)
	fmt.Fprintf(out, "\nNext steps:\n")
	fmt.Fprintf(out, "1. Check the database settings in %s\n", initPath)
	fmt.Fprintf(out, "2. Run 'pantry migrate up' to create the schema\n")
	return nil
}
