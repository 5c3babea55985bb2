package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

const (
	tavilyName    = "tavily"
	tavilyBaseURL = "https://api.tavily.com"
)

// TavilyConfig configures the web-search client.
type TavilyConfig struct {
	BaseURL     string
	APIKey      string
	SearchDepth string
	MaxResults  int
	Timeout     time.Duration
}

// DefaultTavilyConfig returns sensible defaults for search context.
func DefaultTavilyConfig() TavilyConfig {
	return TavilyConfig{
		BaseURL:     tavilyBaseURL,
		SearchDepth: "basic",
		MaxResults:  5,
		Timeout:     20 * time.Second,
	}
}

// Tavily supplies web-search grounding for general chat answers.
type Tavily struct {
	config  TavilyConfig
	client  HTTPDoer
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewTavily creates a client with default configuration.
func NewTavily(gw *gateway.Gateway, apiKey string, logger *zap.Logger) *Tavily {
	cfg := DefaultTavilyConfig()
	cfg.APIKey = apiKey
	return NewTavilyWithConfig(cfg, gw, logger)
}

// NewTavilyWithConfig creates a client with custom configuration.
func NewTavilyWithConfig(config TavilyConfig, gw *gateway.Gateway, logger *zap.Logger) *Tavily {
	if config.BaseURL == "" {
		config.BaseURL = tavilyBaseURL
	}
	if config.SearchDepth == "" {
		config.SearchDepth = "basic"
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tavily{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		gateway: gw,
		logger:  logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (t *Tavily) SetHTTPClient(client HTTPDoer) { t.client = client }

// Enabled reports whether an API key is configured.
func (t *Tavily) Enabled() bool { return t.config.APIKey != "" }

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyPayload struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs a web search and returns the distilled answer with its
// supporting sources.
func (t *Tavily) Search(ctx context.Context, query string) (*market.SearchKnowledge, error) {
	if !t.Enabled() {
		return nil, fmt.Errorf("%s: no API key configured", tavilyName)
	}
	res, err := t.gateway.Fetch(ctx, gateway.Request{
		Provider: tavilyName,
		Key:      "search:" + query,
		TTL:      gateway.TTLCoinSearch,
		Describe: fmt.Sprintf("Searching the web for %q", query),
		Do: func(ctx context.Context) (any, error) {
			body := tavilyRequest{
				APIKey:        t.config.APIKey,
				Query:         query,
				SearchDepth:   t.config.SearchDepth,
				MaxResults:    t.config.MaxResults,
				IncludeAnswer: true,
			}
			var payload tavilyPayload
			if _, err := postJSON(ctx, t.client, tavilyName, t.config.BaseURL+"/search", nil, body, &payload); err != nil {
				return nil, err
			}
			knowledge := &market.SearchKnowledge{Answer: payload.Answer}
			for _, r := range payload.Results {
				knowledge.Sources = append(knowledge.Sources, market.SearchResult{
					Title:   r.Title,
					URL:     r.URL,
					Snippet: r.Content,
				})
			}
			return knowledge, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Data.(*market.SearchKnowledge), nil
}
