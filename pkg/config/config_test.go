package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("SMTP_HOST", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "parley.db", cfg.DatabasePath)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Contains(t, cfg.LLMBaseURL, "localhost")
	assert.Empty(t, cfg.SMTPHost, "mail disabled by default")
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_PATH", "/var/lib/parley/parley.db")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_BASE_URL", "https://api.anthropic.com/v1")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/var/lib/parley/parley.db", cfg.DatabasePath)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, "https://api.anthropic.com/v1", cfg.LLMBaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
}

func TestDefaultTuning(t *testing.T) {
	p := config.DefaultTuning()

	assert.Equal(t, 0.7, p.Derivation.Temperature)
	assert.Equal(t, 2000, p.Derivation.MaxTokens)
	assert.Equal(t, 0.3, p.Analysis.Temperature)
	assert.Equal(t, 0.3, p.Sanitize.Temperature)
	assert.Equal(t, 6000, p.Sanitize.MaxTokens)
	assert.Equal(t, 0.4, p.Judgment.Temperature)
	assert.Equal(t, 6000, p.Judgment.MaxTokens)
}

func TestLoadTuning(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("name: local\njudgment:\n  temperature: 0.2\n  max_tokens: 8000\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tuning_local.yaml"), yaml, 0o644))

	p, err := config.LoadTuning(dir, "LOCAL")
	require.NoError(t, err)

	assert.Equal(t, "local", p.Name)
	assert.Equal(t, 0.2, p.Judgment.Temperature)
	assert.Equal(t, 8000, p.Judgment.MaxTokens)
	// Untouched classes keep defaults.
	assert.Equal(t, 0.7, p.Derivation.Temperature)

	_, err = config.LoadTuning(dir, "missing")
	require.Error(t, err)
}
