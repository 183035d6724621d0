package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprout-dev/sprout/internal/core"
)

func writeFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	return path
}

func syncEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SPROUT_DB_PATH", filepath.Join(t.TempDir(), "sprout.db"))
	t.Setenv("TELLER_CERT_PATH", writeFile(t, "cert.pem"))
	t.Setenv("TELLER_KEY_PATH", writeFile(t, "key.pem"))
	t.Setenv("TELLER_ACCESS_TOKENS", "token_abc, token_def")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("SPROUT_CATEGORY_FILE", writeFile(t, "config.yml"))
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./exports", cfg.ExportDir)
}

func TestLoadSplitsTokenList(t *testing.T) {
	t.Setenv("TELLER_ACCESS_TOKENS", "token_a, token_b ,,token_c")
	cfg := Load()
	assert.Equal(t, []string{"token_a", "token_b", "token_c"}, cfg.AccessTokens)
}

func TestValidateSyncOK(t *testing.T) {
	syncEnv(t)
	cfg := Load()
	assert.NoError(t, cfg.ValidateSync())
}

func TestValidateSyncMissingCredentials(t *testing.T) {
	syncEnv(t)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("TELLER_ACCESS_TOKENS", "")
	cfg := Load()
	err := cfg.ValidateSync()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "TELLER_ACCESS_TOKENS")
}

func TestValidateSyncRejectsMalformedToken(t *testing.T) {
	syncEnv(t)
	t.Setenv("TELLER_ACCESS_TOKENS", "not-a-token")
	cfg := Load()
	require.Error(t, cfg.ValidateSync())
}

func TestValidateParsesDefaultStartDate(t *testing.T) {
	syncEnv(t)
	t.Setenv("SPROUT_DEFAULT_START_DATE", "2024-01-15")
	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, core.Day(2024, 1, 15), cfg.DefaultStart)
}

func TestValidateRejectsBadDefaultStartDate(t *testing.T) {
	syncEnv(t)
	t.Setenv("SPROUT_DEFAULT_START_DATE", "15/01/2024")
	cfg := Load()
	require.Error(t, cfg.Validate())
}

func TestValidateBatchSizeBounds(t *testing.T) {
	syncEnv(t)
	t.Setenv("SPROUT_BATCH_SIZE", "0")
	require.Error(t, Load().Validate())

	t.Setenv("SPROUT_BATCH_SIZE", "1001")
	require.Error(t, Load().Validate())

	t.Setenv("SPROUT_BATCH_SIZE", "25")
	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.BatchSize)
}
