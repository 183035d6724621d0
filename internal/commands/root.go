// Package commands wires the CLI surface on top of the sync engine.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprout-dev/sprout/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "sprout",
		Short:   "Sync bank transactions locally and categorize them with AI",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newExportCommand())

	return rootCmd
}
