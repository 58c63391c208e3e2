package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyVerbose    bool
	createIfNotExists bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Apply and inspect the changes that build the pantry schema.

Changes are applied in order, each in its own transaction, while holding
the schema lock. A failed change leaves the schema at the last committed
version.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version and pending changes",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending change",
	Args:  cobra.NoArgs,
	RunE:  runMigrateUp,
}

var migrateHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List the changes applied to the database",
	Args:  cobra.NoArgs,
	RunE:  runMigrateHistory,
}

var migrateUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Clear a schema lock left by an interrupted migration",
	Args:  cobra.NoArgs,
	RunE:  runMigrateUnlock,
}

func init() {
	migrateUpCmd.Flags().BoolVar(&createIfNotExists, "create-if-not-exists", false, "Create the database if it does not exist")
	migrateHistoryCmd.Flags().BoolVar(&historyVerbose, "verbose", false, "print the statements of every change")

	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateHistoryCmd)
	migrateCmd.AddCommand(migrateUnlockCmd)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd, 5*time.Minute)
	defer cancel()

	s, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	engine, err := s.Engine(engineOptions()...)
	if err != nil {
		return err
	}
	status, err := engine.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema status: %w", err)
	}
	pending, err := engine.PendingChanges(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Current version: %d\n", status.Current)
	fmt.Fprintf(out, "Latest version:  %d\n", status.Latest)
	if status.Holder != "" {
		fmt.Fprintf(out, "Locked by:       %s\n", status.Holder)
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "Schema is up to date")
		return nil
	}
	fmt.Fprintf(out, "Pending changes: %d\n", len(pending))
	for _, ch := range pending {
		fmt.Fprintf(out, "  %3d  %s\n", ch.Version, ch.Description)
	}
	return nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd, 5*time.Minute)
	defer cancel()

	if createIfNotExists {
		if err := ensureDatabase(ctx, cmd.OutOrStdout(), pantryConfig.Database.Driver, pantryConfig.Database.URL); err != nil {
			return err
		}
	}

	s, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := s.Migrate(ctx, engineOptions()...)
	if err != nil {
		if result != nil && len(result.Applied) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d changes before the failure, schema is at version %d\n", len(result.Applied), result.To)
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(result.Applied) == 0 {
		fmt.Fprintf(out, "Schema is up to date at version %d\n", result.To)
		return nil
	}
	fmt.Fprintf(out, "Migrated from version %d to %d (%d changes)\n", result.From, result.To, len(result.Applied))
	return nil
}

func runMigrateHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd, 5*time.Minute)
	defer cancel()

	s, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	engine, err := s.Engine(engineOptions()...)
	if err != nil {
		return err
	}
	records, err := engine.History(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No changes applied")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(out, "%3d  %-20s  %s\n", r.Version, r.AppliedAt.UTC().Format(time.DateTime), r.Description)
		if historyVerbose {
			if r.Preconditions != "" {
				fmt.Fprintf(out, "     requires: %s\n", r.Preconditions)
			}
			if r.Forward != "" {
				fmt.Fprintf(out, "     %s\n", r.Forward)
			}
		}
	}
	return nil
}

func runMigrateUnlock(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd, 5*time.Minute)
	defer cancel()

	s, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	engine, err := s.Engine(engineOptions()...)
	if err != nil {
		return err
	}
	holder, since, err := engine.LockHolder(ctx)
	if err != nil {
		return err
	}
	if holder == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is not locked")
		return nil
	}
	if err := engine.Unlock(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Released lock held by %s since %s\n", holder, since)
	return nil
}
