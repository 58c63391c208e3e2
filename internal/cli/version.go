package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eleven-am/pantry/internal/store"
	"github.com/eleven-am/pantry/pkg/pantry"
)

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Show version information",
	Long:              "Display pantry version, schema version and build information",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), pantry.FullVersionInfo(len(store.Changelog())))
	},
}
