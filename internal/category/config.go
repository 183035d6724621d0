// Package category loads the transaction taxonomy and manual overrides from
// a YAML config file.
package category

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sprout-dev/sprout/internal/core"
)

// DefaultFallback is assigned when categorization fails for non-rate-limit
// reasons, so the transaction is marked processed and not re-attempted.
var DefaultFallback = core.Assignment{Category: "general", Confidence: 0.5}

// Category is one taxonomy entry; the description guides the AI model.
type Category struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Override pins a transaction to a fixed category, taking precedence over
// AI categorization.
type Override struct {
	TransactionID string `yaml:"transaction_id"`
	Category      string `yaml:"category"`
}

// Config is the parsed category configuration.
type Config struct {
	Categories       []Category `yaml:"categories"`
	ManualCategories []Override `yaml:"manual_categories"`
	FallbackCategory string     `yaml:"fallback_category"`
}

// Load reads and validates a category config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse category config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("category config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("no categories defined")
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category with empty name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		seen[cat.Name] = true
	}
	if c.FallbackCategory != "" && !seen[c.FallbackCategory] {
		return fmt.Errorf("fallback category %q not in taxonomy", c.FallbackCategory)
	}
	return nil
}

// Valid reports whether name is a known category.
func (c *Config) Valid(name string) bool {
	for _, cat := range c.Categories {
		if cat.Name == name {
			return true
		}
	}
	return false
}

// Fallback returns the configured fallback assignment.
func (c *Config) Fallback() core.Assignment {
	if c.FallbackCategory == "" {
		return DefaultFallback
	}
	return core.Assignment{Category: c.FallbackCategory, Confidence: DefaultFallback.Confidence}
}

// Overrides returns the manual override map, dropping entries that name an
// unknown category with a warning.
func (c *Config) Overrides() map[string]string {
	out := make(map[string]string, len(c.ManualCategories))
	for _, o := range c.ManualCategories {
		if !c.Valid(o.Category) {
			slog.Warn("manual override names unknown category, skipping",
				"transaction_id", o.TransactionID,
				"category", o.Category)
			continue
		}
		out[o.TransactionID] = o.Category
	}
	return out
}
