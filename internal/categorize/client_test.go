package categorize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprout-dev/sprout/internal/category"
	"github.com/sprout-dev/sprout/internal/core"
)

func testTaxonomy() *category.Config {
	return &category.Config{Categories: []category.Category{
		{Name: "dining", Description: "restaurants and bars"},
		{Name: "transport", Description: "fuel and transit"},
		{Name: "general", Description: "anything else"},
	}}
}

func TestCleanModelJSON(t *testing.T) {
	cases := map[string]string{
		`[{"a":1}]`:                          `[{"a":1}]`,
		"```json\n[{\"a\":1}]\n```":          `[{"a":1}]`,
		"```\n[{\"a\":1}]\n```":              `[{"a":1}]`,
		"Here you go:\n[{\"a\":1}]\nThanks!": `[{"a":1}]`,
		"  [1, 2]  ":                         `[1, 2]`,
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanModelJSON(in), "input %q", in)
	}
}

func TestBuildPromptIncludesTaxonomyAndTransactions(t *testing.T) {
	txs := makeTransactions(2)
	prompt, err := buildPrompt(testTaxonomy(), txs)
	require.NoError(t, err)

	assert.Contains(t, prompt, "dining: restaurants and bars")
	assert.Contains(t, prompt, `"transaction_id"`)
	assert.Contains(t, prompt, "txn_0")
	assert.Contains(t, prompt, "merchant 1")
}

func TestValidateFiltersBadAssignments(t *testing.T) {
	c := &Client{taxonomy: testTaxonomy()}
	txs := makeTransactions(3)

	result := c.validate(context.Background(), txs, []assignment{
		{TransactionID: "txn_0", Category: "dining", Confidence: 0.9},
		{TransactionID: "txn_1", Category: "made_up_category", Confidence: 0.9},
		{TransactionID: "txn_2", Category: "transport", Confidence: 1.5},
		{TransactionID: "txn_unknown", Category: "dining", Confidence: 0.9},
	})

	assert.Equal(t, core.CategorizationResult{
		"txn_0": {Category: "dining", Confidence: 0.9},
	}, result)
}

func TestClassifyAPIErrorRateLimitByMessage(t *testing.T) {
	err := classifyAPIError("op", errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"))
	assert.True(t, core.IsRateLimited(err))

	err = classifyAPIError("op", errors.New("rate limit exceeded, try again later"))
	assert.True(t, core.IsRateLimited(err))

	err = classifyAPIError("op", errors.New("invalid request"))
	assert.Equal(t, core.KindFatal, core.KindOf(err))
}
