package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eleven-am/pantry/internal/config"
	"github.com/eleven-am/pantry/internal/logger"
	"github.com/eleven-am/pantry/internal/migrator"
	"github.com/eleven-am/pantry/internal/store"
	"github.com/eleven-am/pantry/pkg/pantry"
)

// Global configuration variables
var (
	configFile   string
	databaseURL  string
	driverName   string
	debug        bool
	pantryConfig *config.Config
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pantry",
		Short: "Pantry - household recipes, groceries and prices",
		Long: `Pantry keeps the household's recipes, ingredients, products and the
prices paid for them in a single database.

The command line manages the database schema and prints reports:
- Schema migrations, history and lock recovery
- Recipes with their ingredients
- Recipe cost from the latest known prices`,
		Version:           pantry.Version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: pantry.yaml)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "url", "", "database connection URL or SQLite file")
	rootCmd.PersistentFlags().StringVar(&driverName, "driver", "", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// loadConfig resolves the configuration from the file, the environment and
// the global flags, in increasing order of precedence
func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	if driverName != "" {
		cfg.Database.Driver = driverName
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := logger.New(cfg.Logger())
	if err != nil {
		return err
	}

	pantryConfig = cfg
	cmd.SetContext(logger.NewContext(cmd.Context(), l))
	return nil
}

// commandContext bounds a command's work and keeps the logger set up by
// loadConfig
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

func engineOptions() []migrator.Option {
	return []migrator.Option{migrator.WithHistoryTable(pantryConfig.Migrations.Table)}
}

// openStore connects to the configured database. The returned function
// closes the connection.
func openStore(ctx context.Context) (*store.Store, func(), error) {
	db, err := store.Connect(ctx, pantryConfig.Database.Driver, pantryConfig.Database.URL, pantryConfig.Database.MaxConnections)
	if err != nil {
		return nil, nil, err
	}

	log := logger.FromContext(ctx)
	s, err := store.New(db, store.WithLogger(log))
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	log.CLI().Debug("Connected to database", "driver", pantryConfig.Database.Driver)
	return s, func() {
		db.Close()
		_ = log.Sync()
	}, nil
}

// openCurrentStore opens the store and makes sure its schema is current,
// applying pending changes when auto_apply is set
func openCurrentStore(ctx context.Context) (*store.Store, func(), error) {
	s, closeFn, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	if pantryConfig.Migrations.AutoApply {
		if _, err := s.Migrate(ctx, engineOptions()...); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to apply schema changes: %w", err)
		}
		return s, closeFn, nil
	}

	engine, err := s.Engine(engineOptions()...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	status, err := engine.Status(ctx)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if status.Pending > 0 {
		closeFn()
		return nil, nil, fmt.Errorf("schema is at version %d of %d: run 'pantry migrate up' first", status.Current, status.Latest)
	}
	return s, closeFn, nil
}
