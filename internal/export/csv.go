// Package export writes synced transactions to CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sprout-dev/sprout/internal/core"
	"github.com/sprout-dev/sprout/internal/storage"
)

var header = []string{
	"id", "date", "description", "amount", "running_balance",
	"status", "type", "inferred_category", "confidence",
	"account_name", "account_type", "account_last_four",
}

// Write renders rows as CSV with a header line.
func Write(w io.Writer, rows []storage.ExportRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return fmt.Errorf("writing transaction %s: %w", r.Transaction.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func record(r storage.ExportRow) []string {
	t := r.Transaction

	balance := ""
	if t.RunningBalance != nil {
		balance = t.RunningBalance.String()
	}
	category := ""
	if t.InferredCategory != nil {
		category = *t.InferredCategory
	}
	confidence := ""
	if t.Confidence != nil {
		confidence = strconv.FormatFloat(*t.Confidence, 'f', -1, 64)
	}

	return []string{
		t.ID,
		t.Date.Format(core.DateFormat),
		t.Description,
		t.Amount.String(),
		balance,
		t.Status,
		t.Type,
		category,
		confidence,
		r.AccountName,
		r.AccountType,
		r.LastFour,
	}
}

// ToFile exports every stored transaction to dir, named by the run date.
// Returns the file path and the number of exported rows.
func ToFile(ctx context.Context, store *storage.Store, dir string, now time.Time) (string, int, error) {
	rows, err := store.ForExport(ctx)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("transactions-%s.csv", now.Format(core.DateFormat)))

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := Write(f, rows); err != nil {
		return "", 0, err
	}

	slog.InfoContext(ctx, "transactions exported", "path", path, "rows", len(rows))
	return path, len(rows), nil
}
