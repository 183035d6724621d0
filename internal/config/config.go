// Package config loads engine configuration from the environment. A .env
// file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sprout-dev/sprout/internal/core"
)

// Config carries every already-validated value the engine consumes. It is
// passed explicitly into the orchestrator and its collaborators; nothing
// reads process-wide state after Load.
type Config struct {
	// Database
	DBPath string

	// Teller API
	CertPath     string
	KeyPath      string
	AccessTokens []string

	// Categorization
	GeminiAPIKey string
	GeminiModel  string
	CategoryFile string
	BatchSize    int

	// Sync
	DefaultStart time.Time // zero when unset

	// Export
	ExportDir string

	// Logging
	LogLevel  string
	LogFormat string

	defaultStartRaw string
}

// Load reads configuration from the environment.
func Load() *Config {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	return &Config{
		DBPath: getEnv("SPROUT_DB_PATH", "./data/sprout.db"),

		CertPath:     getEnv("TELLER_CERT_PATH", ""),
		KeyPath:      getEnv("TELLER_KEY_PATH", ""),
		AccessTokens: splitList(getEnv("TELLER_ACCESS_TOKENS", "")),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", ""),
		CategoryFile: getEnv("SPROUT_CATEGORY_FILE", "./config.yml"),
		BatchSize:    getEnvInt("SPROUT_BATCH_SIZE", 10),

		ExportDir: getEnv("SPROUT_EXPORT_DIR", "./exports"),

		LogLevel:  getEnv("SPROUT_LOG_LEVEL", "info"),
		LogFormat: getEnv("SPROUT_LOG_FORMAT", "text"),

		defaultStartRaw: getEnv("SPROUT_DEFAULT_START_DATE", ""),
	}
}

// Validate checks the values every command needs.
func (c *Config) Validate() error {
	var errs []string

	if c.DBPath == "" {
		errs = append(errs, "database path cannot be empty")
	} else if dir := filepath.Dir(c.DBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create database directory %q: %v", dir, err))
			}
		}
	}

	if c.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid batch size %d: must be at least 1", c.BatchSize))
	} else if c.BatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid batch size %d: must be at most 1000", c.BatchSize))
	}

	if c.defaultStartRaw != "" {
		start, err := core.ParseDate(c.defaultStartRaw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid SPROUT_DEFAULT_START_DATE %q: use YYYY-MM-DD", c.defaultStartRaw))
		} else {
			c.DefaultStart = start
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateSync additionally checks the credentials a sync run needs.
func (c *Config) ValidateSync() error {
	if err := c.Validate(); err != nil {
		return err
	}

	var errs []string

	for name, path := range map[string]string{
		"TELLER_CERT_PATH": c.CertPath,
		"TELLER_KEY_PATH":  c.KeyPath,
	} {
		if path == "" {
			errs = append(errs, name+" is required")
		} else if _, err := os.Stat(path); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("%s does not exist: %s", name, path))
		}
	}

	if len(c.AccessTokens) == 0 {
		errs = append(errs, "TELLER_ACCESS_TOKENS is required (comma-separated)")
	}
	for _, token := range c.AccessTokens {
		if !strings.HasPrefix(token, "token_") {
			errs = append(errs, fmt.Sprintf("access token %q does not look like a Teller token", truncate(token)))
		}
	}

	if c.GeminiAPIKey == "" {
		errs = append(errs, "GEMINI_API_KEY is required")
	}
	if c.CategoryFile == "" {
		errs = append(errs, "category config file path cannot be empty")
	} else if _, err := os.Stat(c.CategoryFile); os.IsNotExist(err) {
		errs = append(errs, fmt.Sprintf("category config file does not exist: %s", c.CategoryFile))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func truncate(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
