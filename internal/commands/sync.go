package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprout-dev/sprout/internal/category"
	"github.com/sprout-dev/sprout/internal/categorize"
	"github.com/sprout-dev/sprout/internal/config"
	"github.com/sprout-dev/sprout/internal/core"
	"github.com/sprout-dev/sprout/internal/log"
	"github.com/sprout-dev/sprout/internal/resolver"
	"github.com/sprout-dev/sprout/internal/storage"
	"github.com/sprout-dev/sprout/internal/syncer"
	"github.com/sprout-dev/sprout/internal/teller"
)

func newSyncCommand() *cobra.Command {
	var full bool
	var fromDate string
	var batchSize int
	var recategorize bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch new transactions and categorize them",
		Long: `Sync pulls transactions for every linked account, skipping date ranges
already stored locally, then categorizes anything new in batches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, full, fromDate, batchSize, recategorize)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "re-fetch the whole window instead of only gaps")
	cmd.Flags().StringVar(&fromDate, "from", "", "window start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "transactions per categorization request")
	cmd.Flags().BoolVar(&recategorize, "recategorize", false, "clear stored categories and categorize again")

	return cmd
}

func runSync(cmd *cobra.Command, full bool, fromDate string, batchSize int, recategorize bool) error {
	cfg := config.Load()
	if err := cfg.ValidateSync(); err != nil {
		return err
	}

	logger := log.Setup(log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	opts := syncer.Options{
		Full:         full,
		BatchSize:    cfg.BatchSize,
		Recategorize: recategorize,
		DefaultStart: cfg.DefaultStart,
	}
	if batchSize > 0 {
		opts.BatchSize = batchSize
	}
	if fromDate != "" {
		from, err := core.ParseDate(fromDate)
		if err != nil {
			return fmt.Errorf("invalid --from %q: use YYYY-MM-DD", fromDate)
		}
		opts.FromDate = &from
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	taxonomy, err := category.Load(cfg.CategoryFile)
	if err != nil {
		return fmt.Errorf("loading categories: %w", err)
	}

	bank, err := teller.New(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("creating bank client: %w", err)
	}

	model := cfg.GeminiModel
	if model == "" {
		model = categorize.DefaultModel
	}
	ai, err := categorize.NewClient(cmd.Context(), cfg.GeminiAPIKey, model, taxonomy)
	if err != nil {
		return fmt.Errorf("creating categorization client: %w", err)
	}
	batcher := categorize.NewBatcher(ai, categorize.WithFallback(taxonomy.Fallback()))

	orch := syncer.New(store, bank, resolver.New(store), batcher, taxonomy.Overrides(), opts)

	start := time.Now()
	summary, err := orch.Run(cmd.Context(), cfg.AccessTokens)
	if err != nil {
		return err
	}

	printRunSummary(cmd, summary)
	logger.Info("sync finished",
		slog.Int("accounts", len(summary.Accounts)),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

func printRunSummary(cmd *cobra.Command, s *syncer.RunSummary) {
	for _, a := range s.Accounts {
		if a.Phase == syncer.PhaseFailed {
			cmd.Printf("%-30s FAILED at %s: %v\n", a.DisplayName, a.FailedAt, a.Err)
			continue
		}
		cmd.Printf("%-30s fetched %d, new %d, duplicates %d", a.DisplayName, a.Fetched, a.Inserted, a.Duplicates)
		if a.Overridden > 0 {
			cmd.Printf(", overridden %d", a.Overridden)
		}
		cmd.Printf(", categorized %d", a.Categorized)
		if a.Fallback > 0 {
			cmd.Printf(" (%d fallback)", a.Fallback)
		}
		if a.Abandoned > 0 {
			cmd.Printf(", abandoned %d", a.Abandoned)
		}
		cmd.Println()
	}
	for _, token := range s.InvalidTokens {
		cmd.Printf("token %s skipped: authentication failed\n", token)
	}
	if len(s.Accounts) == 0 && len(s.InvalidTokens) == 0 {
		cmd.Println("no accounts found")
	}
}
