package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprout-dev/sprout/internal/config"
	"github.com/sprout-dev/sprout/internal/export"
	"github.com/sprout-dev/sprout/internal/log"
	"github.com/sprout-dev/sprout/internal/storage"
)

func newExportCommand() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all stored transactions to a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			log.Setup(log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

			dir := cfg.ExportDir
			if outDir != "" {
				dir = outDir
			}

			store, err := storage.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer store.Close()

			path, count, err := export.ToFile(cmd.Context(), store, dir, time.Now())
			if err != nil {
				return err
			}

			cmd.Printf("Wrote %d transactions to %s\n", count, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "output directory (defaults to the configured export directory)")

	return cmd
}
