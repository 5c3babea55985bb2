package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Skel Crypto Agent", cfg.Name)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.Session.MaxTurns)
	assert.Equal(t, "basic", cfg.Providers.TavilySearchDepth)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  api_key: file-key
  timeout: 90s
session:
  max_turns: 5
server:
  addr: ":9999"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.LLM.APIKey)
	assert.Equal(t, 90*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 5, cfg.Session.MaxTurns)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2, cfg.Providers.MaxRetries)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not: a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  api_key: file-key
server:
  addr: ":9999"
`), 0o644))

	t.Setenv("FIREWORKS_API_KEY", "env-key")
	t.Setenv("SKEL_AGENT_ADDR", ":7777")
	t.Setenv("COINGECKO_API_KEY", "cg-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "cg-key", cfg.Providers.CoinGeckoAPIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "secret"
	cfg.Session.MaxTurns = 7

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", loaded.LLM.APIKey)
	assert.Equal(t, 7, loaded.Session.MaxTurns)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "key"
	require.NoError(t, cfg.Validate())

	missingKey := DefaultConfig()
	assert.ErrorContains(t, missingKey.Validate(), "llm.api_key")

	badTurns := DefaultConfig()
	badTurns.LLM.APIKey = "key"
	badTurns.Session.MaxTurns = 0
	assert.ErrorContains(t, badTurns.Validate(), "max_turns")

	badDepth := DefaultConfig()
	badDepth.LLM.APIKey = "key"
	badDepth.Providers.TavilySearchDepth = "extreme"
	assert.ErrorContains(t, badDepth.Validate(), "tavily_search_depth")

	badTimeout := DefaultConfig()
	badTimeout.LLM.APIKey = "key"
	badTimeout.Providers.Timeout = "soon"
	assert.ErrorContains(t, badTimeout.Validate(), "providers.timeout")
}

func TestDurationAccessorsFallBack(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 8*time.Second, cfg.GetClassifierTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetBackoffBase())

	cfg.Providers.Cooldown = "garbage"
	assert.Equal(t, time.Minute, cfg.GetCooldown())
	cfg.Session.IdleTTL = ""
	assert.Equal(t, 30*time.Minute, cfg.GetSessionIdleTTL())
	cfg.Session.SweepInterval = "90s"
	assert.Equal(t, 90*time.Second, cfg.GetSweepInterval())
}
