package categorize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sprout-dev/sprout/internal/category"
	"github.com/sprout-dev/sprout/internal/core"
)

// promptTransaction is the view of a transaction the model sees.
type promptTransaction struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Status      string `json:"status"`
}

const basePrompt = "You are a financial transaction categorizer.\n\n" +
	"Task:\n" +
	"- Assign each transaction below to exactly ONE category from the list.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"transaction_id\": string, copied from the input\n" +
	"- \"category\": string, one of the category names below\n" +
	"- \"confidence\": number between 0 and 1\n\n"

const rulesPrompt = "Rules:\n" +
	"- Negative amounts are outflows; positive amounts are often refunds or deposits.\n" +
	"- Refunds keep the category of the merchant, they are not income.\n" +
	"- Use the most specific applicable category; avoid overusing the fallback.\n" +
	"- Use ONLY the exact category names listed. Never invent a category.\n" +
	"- Categorize EVERY transaction, no skipping.\n" +
	"- Confidence reflects certainty: 0.8+ for clear merchants, below 0.5 when guessing.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// buildPrompt renders the categorization prompt for one batch.
func buildPrompt(taxonomy *category.Config, txs []core.Transaction) (string, error) {
	names := make([]string, 0, len(taxonomy.Categories))
	for _, c := range taxonomy.Categories {
		names = append(names, fmt.Sprintf("- %s: %s", c.Name, c.Description))
	}

	views := make([]promptTransaction, 0, len(txs))
	for _, t := range txs {
		views = append(views, promptTransaction{
			ID:          t.ID,
			Date:        t.Date.Format(core.DateFormat),
			Description: t.Description,
			Amount:      t.Amount.String(),
			Type:        t.Type,
			Status:      t.Status,
		})
	}
	payload, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transactions for prompt: %w", err)
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("Categories:\n")
	b.WriteString(strings.Join(names, "\n"))
	b.WriteString("\n\nTransactions:\n")
	b.Write(payload)
	b.WriteString("\n\n")
	b.WriteString(rulesPrompt)
	return b.String(), nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
