// Package config loads the agent configuration from a YAML file with
// environment-variable overrides for every credential.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all skel-crypto-agent configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configures the completion/classification backend.
	LLM LLMConfig `yaml:"llm"`

	// Providers configures the market-data upstreams.
	Providers ProvidersConfig `yaml:"providers"`

	// Session controls conversational memory retention.
	Session SessionConfig `yaml:"session"`

	// Server configures the SSE transport.
	Server ServerConfig `yaml:"server"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the chat-completion backend.
type LLMConfig struct {
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	Timeout           string `yaml:"timeout"`
	ClassifierTimeout string `yaml:"classifier_timeout"`
}

// ProvidersConfig holds per-upstream credentials and knobs.
type ProvidersConfig struct {
	CoinGeckoAPIKey     string `yaml:"coingecko_api_key"`
	CryptoPanicAPIKey   string `yaml:"cryptopanic_api_key"`
	CoinMarketCapAPIKey string `yaml:"coinmarketcap_api_key"`
	CryptoRankAPIKey    string `yaml:"cryptorank_api_key"`

	TavilyAPIKey      string `yaml:"tavily_api_key"`
	TavilySearchDepth string `yaml:"tavily_search_depth"` // basic or advanced
	TavilyMaxResults  int    `yaml:"tavily_max_results"`

	ChainlistURL string `yaml:"chainlist_url"`

	Timeout        string `yaml:"timeout"`
	MaxRetries     int    `yaml:"max_retries"`
	BackoffBase    string `yaml:"backoff_base"`
	Cooldown       string `yaml:"cooldown"`
	SearchTopK     int    `yaml:"search_top_k"`
	DetailFanout   int    `yaml:"detail_fanout"`
	PriceQuoteTopN int    `yaml:"price_quote_top_n"`
}

// SessionConfig controls the session store.
type SessionConfig struct {
	// MaxTurns is the number of retained user/assistant exchange pairs.
	MaxTurns int `yaml:"max_turns"`
	// IdleTTL is how long an untouched session survives.
	IdleTTL string `yaml:"idle_ttl"`
	// SweepInterval is how often the background sweeper runs.
	SweepInterval string `yaml:"sweep_interval"`
}

// ServerConfig configures the HTTP/SSE listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Skel Crypto Agent",
		Version: "1.0.0",

		LLM: LLMConfig{
			Model:             "sentientfoundation/dobby-unhinged-llama-3-3-70b-new",
			BaseURL:           "https://api.fireworks.ai/inference/v1",
			Timeout:           "60s",
			ClassifierTimeout: "8s",
		},

		Providers: ProvidersConfig{
			TavilySearchDepth: "basic",
			TavilyMaxResults:  5,
			ChainlistURL:      "https://chainlist.org/rpcs.json",
			Timeout:           "15s",
			MaxRetries:        2,
			BackoffBase:       "500ms",
			Cooldown:          "60s",
			SearchTopK:        5,
			DetailFanout:      3,
			PriceQuoteTopN:    3,
		},

		Session: SessionConfig{
			MaxTurns:      20,
			IdleTTL:       "30m",
			SweepInterval: "5m",
		},

		Server: ServerConfig{
			Addr: ":8000",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables always win over file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variables over file values.
// Names match the original deployment so existing .env files keep working.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("FIREWORKS_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("FIREWORKS_MODEL_NAME"); model != "" {
		c.LLM.Model = model
	}
	if key := os.Getenv("COINGECKO_API_KEY"); key != "" {
		c.Providers.CoinGeckoAPIKey = key
	}
	if key := os.Getenv("CRYPTOPANIC_API_KEY"); key != "" {
		c.Providers.CryptoPanicAPIKey = key
	}
	if key := os.Getenv("COINMARKETCAP_API_KEY"); key != "" {
		c.Providers.CoinMarketCapAPIKey = key
	}
	if key := os.Getenv("CRYPTORANK_API_KEY"); key != "" {
		c.Providers.CryptoRankAPIKey = key
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Providers.TavilyAPIKey = key
	}
	if depth := os.Getenv("TAVILY_SEARCH_DEPTH"); depth != "" {
		c.Providers.TavilySearchDepth = depth
	}
	if addr := os.Getenv("SKEL_AGENT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("SKEL_AGENT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set FIREWORKS_API_KEY)")
	}
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("session.max_turns must be positive, got %d", c.Session.MaxTurns)
	}
	if depth := c.Providers.TavilySearchDepth; depth != "basic" && depth != "advanced" {
		return fmt.Errorf("providers.tavily_search_depth must be basic or advanced, got %q", depth)
	}
	if _, err := time.ParseDuration(c.Providers.Timeout); err != nil {
		return fmt.Errorf("invalid providers.timeout: %w", err)
	}
	return nil
}

// GetLLMTimeout returns the LLM request timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetClassifierTimeout returns the intent-classification budget.
func (c *Config) GetClassifierTimeout() time.Duration {
	return parseDuration(c.LLM.ClassifierTimeout, 8*time.Second)
}

// GetProviderTimeout returns the per-upstream-call timeout.
func (c *Config) GetProviderTimeout() time.Duration {
	return parseDuration(c.Providers.Timeout, 15*time.Second)
}

// GetBackoffBase returns the first retry delay.
func (c *Config) GetBackoffBase() time.Duration {
	return parseDuration(c.Providers.BackoffBase, 500*time.Millisecond)
}

// GetCooldown returns the default rate-limit cooldown window.
func (c *Config) GetCooldown() time.Duration {
	return parseDuration(c.Providers.Cooldown, time.Minute)
}

// GetSessionIdleTTL returns how long idle sessions are retained.
func (c *Config) GetSessionIdleTTL() time.Duration {
	return parseDuration(c.Session.IdleTTL, 30*time.Minute)
}

// GetSweepInterval returns the eviction sweep cadence.
func (c *Config) GetSweepInterval() time.Duration {
	return parseDuration(c.Session.SweepInterval, 5*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
