// Package categorize assigns AI-inferred categories to transactions in
// fixed-size batches with a rate-limit-aware retry policy.
package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/sprout-dev/sprout/internal/category"
	"github.com/sprout-dev/sprout/internal/core"
)

// DefaultModel is the Gemini model used for categorization.
const DefaultModel = "gemini-2.0-flash"

// Client categorizes transaction batches with the Gemini API.
type Client struct {
	genai    *genai.Client
	model    string
	taxonomy *category.Config
}

// NewClient builds a categorization client. model may be empty to use
// DefaultModel.
func NewClient(ctx context.Context, apiKey, model string, taxonomy *category.Config) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{genai: gc, model: model, taxonomy: taxonomy}, nil
}

// assignment is one item of the model's JSON response.
type assignment struct {
	TransactionID string  `json:"transaction_id"`
	Category      string  `json:"category"`
	Confidence    float64 `json:"confidence"`
}

// Categorize sends one batch to the model and returns the validated
// assignments. Provider rate limiting comes back tagged KindRateLimited so
// the batcher can apply its cooldown policy; other API failures are fatal
// for the batch.
func (c *Client) Categorize(ctx context.Context, txs []core.Transaction) (core.CategorizationResult, error) {
	if len(txs) == 0 {
		return core.CategorizationResult{}, nil
	}
	op := "categorize.Client"

	prompt, err := buildPrompt(c.taxonomy, txs)
	if err != nil {
		return nil, core.E(core.KindFatal, op, err)
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, classifyAPIError(op, err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, core.Errorf(core.KindFatal, op, "empty response from model")
	}

	var parsed []assignment
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		return nil, core.Errorf(core.KindFatal, op, "unmarshal model response: %v", err)
	}

	return c.validate(ctx, txs, parsed), nil
}

// validate keeps only assignments for transactions in the batch, with a
// known category and confidence inside [0, 1]. Confidence values are passed
// through unmodified.
func (c *Client) validate(ctx context.Context, txs []core.Transaction, parsed []assignment) core.CategorizationResult {
	inBatch := make(map[string]bool, len(txs))
	for _, t := range txs {
		inBatch[t.ID] = true
	}

	result := make(core.CategorizationResult, len(parsed))
	for _, a := range parsed {
		switch {
		case !inBatch[a.TransactionID]:
			slog.WarnContext(ctx, "model returned unknown transaction id, skipping",
				"transaction_id", a.TransactionID)
		case !c.taxonomy.Valid(a.Category):
			slog.WarnContext(ctx, "model invented a category, skipping",
				"transaction_id", a.TransactionID, "category", a.Category)
		case a.Confidence < 0 || a.Confidence > 1:
			slog.WarnContext(ctx, "model confidence out of bounds, skipping",
				"transaction_id", a.TransactionID, "confidence", a.Confidence)
		default:
			result[a.TransactionID] = core.Assignment{Category: a.Category, Confidence: a.Confidence}
		}
	}
	return result
}

func classifyAPIError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return core.E(core.KindRateLimited, op, err)
		}
		return core.E(core.KindFatal, op, err)
	}
	// Some transports only surface the status in the message.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") ||
		(strings.Contains(msg, "rate") && strings.Contains(msg, "limit")) {
		return core.E(core.KindRateLimited, op, err)
	}
	return core.E(core.KindFatal, op, err)
}
