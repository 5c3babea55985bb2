package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
)

const (
	cryptorankName    = "cryptorank"
	cryptorankBaseURL = "https://api.cryptorank.io/v2"
)

// ProjectCurrency is the CryptoRank catalog entry for a project.
type ProjectCurrency struct {
	ID     json.Number `json:"id"`
	Key    string      `json:"key"`
	Symbol string      `json:"symbol"`
	Name   string      `json:"name"`
	Type   string      `json:"type,omitempty"`
}

// ProjectReport aggregates every CryptoRank section available under the
// configured plan. Sections the plan forbids are listed in Restricted
// instead of failing the whole lookup.
type ProjectReport struct {
	Currency   ProjectCurrency
	Overview   json.RawMessage
	Metadata   json.RawMessage
	Categories json.RawMessage
	Funding    json.RawMessage
	Restricted []string
}

// CryptoRankConfig configures the project analytics client.
type CryptoRankConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultCryptoRankConfig returns the v2 API defaults.
func DefaultCryptoRankConfig() CryptoRankConfig {
	return CryptoRankConfig{
		BaseURL: cryptorankBaseURL,
		Timeout: 15 * time.Second,
	}
}

// CryptoRank answers project fundamentals lookups: catalog resolution,
// overview, metadata, categories, and funding rounds.
type CryptoRank struct {
	config  CryptoRankConfig
	client  HTTPDoer
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewCryptoRank creates a client with default configuration.
func NewCryptoRank(gw *gateway.Gateway, apiKey string, logger *zap.Logger) *CryptoRank {
	cfg := DefaultCryptoRankConfig()
	cfg.APIKey = apiKey
	return NewCryptoRankWithConfig(cfg, gw, logger)
}

// NewCryptoRankWithConfig creates a client with custom configuration.
func NewCryptoRankWithConfig(config CryptoRankConfig, gw *gateway.Gateway, logger *zap.Logger) *CryptoRank {
	if config.BaseURL == "" {
		config.BaseURL = cryptorankBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CryptoRank{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		gateway: gw,
		logger:  logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *CryptoRank) SetHTTPClient(client HTTPDoer) { c.client = client }

// Enabled reports whether an API key is configured.
func (c *CryptoRank) Enabled() bool { return c.config.APIKey != "" }

func (c *CryptoRank) headers() map[string]string {
	return map[string]string{"X-Api-Key": c.config.APIKey}
}

// ErrPlanRestricted marks an endpoint the configured API plan does not
// cover. CryptoRank answers those with 403, which must not be confused
// with rate limiting: the rest of the account keeps working.
var ErrPlanRestricted = errors.New("endpoint restricted by API plan")

// cryptorankStatus treats 403 as a plan restriction and leaves the rest
// to the shared classifier.
func cryptorankStatus(provider string, resp *http.Response) error {
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s: %w", provider, ErrPlanRestricted)
	}
	return classifyStatus(provider, resp)
}

// dataEnvelope unwraps CryptoRank's {"data": ...} response shape.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// get fetches one endpoint through the gateway and returns the unwrapped
// "data" payload.
func (c *CryptoRank) get(ctx context.Context, key, describe, path string) (json.RawMessage, error) {
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: cryptorankName,
		Key:      key,
		TTL:      gateway.TTLCoinDetails,
		Describe: describe,
		Do: func(ctx context.Context) (any, error) {
			var envelope dataEnvelope
			raw, err := getJSONClassify(ctx, c.client, cryptorankName, c.config.BaseURL+path, c.headers(), &envelope, cryptorankStatus)
			if err != nil {
				return nil, err
			}
			if len(envelope.Data) > 0 {
				return envelope.Data, nil
			}
			return json.RawMessage(raw), nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Data.(json.RawMessage), nil
}

// ResolveProject finds the catalog entry whose key, symbol, or name
// matches the query.
func (c *CryptoRank) ResolveProject(ctx context.Context, query string) (*ProjectCurrency, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s: no API key configured", cryptorankName)
	}
	raw, err := c.get(ctx, "map", "Loading CryptoRank project catalog",
		"/currencies/map?include="+url.QueryEscape("[lifeCycle,type]"))
	if err != nil {
		return nil, err
	}
	var entries []ProjectCurrency
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%s: decode catalog: %w", cryptorankName, err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	var bySymbol, byName *ProjectCurrency
	for i := range entries {
		entry := &entries[i]
		if strings.ToLower(entry.Key) == needle {
			return entry, nil
		}
		if bySymbol == nil && strings.ToLower(entry.Symbol) == needle {
			bySymbol = entry
		}
		if byName == nil && strings.ToLower(entry.Name) == needle {
			byName = entry
		}
	}
	if bySymbol != nil {
		return bySymbol, nil
	}
	if byName != nil {
		return byName, nil
	}
	// Substring fallback over names, first hit wins.
	for i := range entries {
		if strings.Contains(strings.ToLower(entries[i].Name), needle) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%s: no project matching %q", cryptorankName, query)
}

// Analyze resolves the project and collects every section the API plan
// allows. A 403 on a section marks it restricted; any other failure on a
// non-core section is skipped with a log line.
func (c *CryptoRank) Analyze(ctx context.Context, query string) (*ProjectReport, error) {
	currency, err := c.ResolveProject(ctx, query)
	if err != nil {
		return nil, err
	}
	report := &ProjectReport{Currency: *currency}
	id := currency.ID.String()

	sections := []struct {
		name string
		path string
		dest *json.RawMessage
	}{
		{"overview", "/currencies/" + id, &report.Overview},
		{"full-metadata", "/currencies/" + id + "/full-metadata", &report.Metadata},
		{"categories", "/currencies/categories", &report.Categories},
		{"funding-rounds", "/currencies/" + id + "/funding-rounds", &report.Funding},
	}
	for _, section := range sections {
		raw, err := c.get(ctx, section.name+":"+id,
			fmt.Sprintf("Fetching %s %s from CryptoRank", currency.Name, section.name), section.path)
		if err != nil {
			if errors.Is(err, ErrPlanRestricted) {
				report.Restricted = append(report.Restricted, section.name)
				continue
			}
			c.logger.Debug("cryptorank section unavailable",
				zap.String("section", section.name), zap.Error(err))
			continue
		}
		*section.dest = raw
	}
	return report, nil
}
