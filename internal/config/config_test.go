// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 4, cfg.Browser.MaxSessions)
	assert.Equal(t, 1366, cfg.Browser.ViewportWidth)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, 10*time.Second, cfg.Executor.VisibilityTimeout)
	assert.Equal(t, 1*time.Second, cfg.Executor.SettleDelay)
	assert.Equal(t, 15*time.Second, cfg.Executor.FeedTimeout)

	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("rejects non-positive session cap", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.MaxSessions = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.max_sessions")
	})

	t.Run("rejects unknown llm provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LLM.Provider = "anthropic"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.provider")
	})

	t.Run("rejects zero rate limit", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Server.RateLimit = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.rate_limit")
	})

	t.Run("rejects degenerate viewport", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.ViewportHeight = 0
		assert.Error(t, cfg.Validate())
	})
}

// -- Load Tests --

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
logger:
  level: debug
  format: json
server:
  listen_addr: ":9100"
browser:
  headless: false
  max_sessions: 2
llm:
  provider: openai
  model: gpt-4o
  endpoint: https://api.openai.com/v1
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, ":9100", cfg.Server.ListenAddr)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Browser.MaxSessions)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Executor.VisibilityTimeout)
	assert.Equal(t, "webpilot", cfg.Logger.ServiceName)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// Point the search path at an empty directory.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: nope\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}
