package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

const (
	cryptopanicName    = "cryptopanic"
	cryptopanicBaseURL = "https://cryptopanic.com/api/developer/v2/posts/"
)

// NewsResult is a news fetch plus the raw upstream payload.
type NewsResult struct {
	Items []market.NewsItem
	Raw   json.RawMessage
}

// CryptoPanicConfig configures the news client.
type CryptoPanicConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// DefaultCryptoPanicConfig returns the developer API defaults.
func DefaultCryptoPanicConfig() CryptoPanicConfig {
	return CryptoPanicConfig{
		BaseURL: cryptopanicBaseURL,
		Timeout: 15 * time.Second,
	}
}

// CryptoPanic fetches recent news posts and bullish/bearish vote counts
// for a symbol.
type CryptoPanic struct {
	config  CryptoPanicConfig
	client  HTTPDoer
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewCryptoPanic creates a client with default configuration.
func NewCryptoPanic(gw *gateway.Gateway, token string, logger *zap.Logger) *CryptoPanic {
	cfg := DefaultCryptoPanicConfig()
	cfg.APIToken = token
	return NewCryptoPanicWithConfig(cfg, gw, logger)
}

// NewCryptoPanicWithConfig creates a client with custom configuration.
func NewCryptoPanicWithConfig(config CryptoPanicConfig, gw *gateway.Gateway, logger *zap.Logger) *CryptoPanic {
	if config.BaseURL == "" {
		config.BaseURL = cryptopanicBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CryptoPanic{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		gateway: gw,
		logger:  logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *CryptoPanic) SetHTTPClient(client HTTPDoer) { c.client = client }

// Enabled reports whether an API token is configured. Without one the
// news leg of an analysis is skipped rather than failed.
func (c *CryptoPanic) Enabled() bool { return c.config.APIToken != "" }

type cryptopanicPost struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	PublishedAt time.Time   `json:"published_at"`
	Source      struct {
		Title string `json:"title"`
	} `json:"source"`
	Instruments []struct {
		Code string `json:"code"`
	} `json:"instruments"`
}

type cryptopanicPayload struct {
	Count   int               `json:"count"`
	Results []cryptopanicPost `json:"results"`
}

func (c *CryptoPanic) postsURL(symbol, filter string) string {
	values := url.Values{}
	values.Set("auth_token", c.config.APIToken)
	values.Set("public", "true")
	values.Set("kind", "news")
	if symbol != "" {
		values.Set("currencies", strings.ToUpper(symbol))
	}
	if filter != "" {
		values.Set("filter", filter)
	}
	return c.config.BaseURL + "?" + values.Encode()
}

// News returns recent news posts mentioning symbol.
func (c *CryptoPanic) News(ctx context.Context, symbol string, limit int) (*NewsResult, error) {
	if !c.Enabled() {
		return &NewsResult{}, nil
	}
	key := "news:" + strings.ToUpper(symbol)
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: cryptopanicName,
		Key:      key,
		TTL:      gateway.TTLNews,
		Describe: fmt.Sprintf("Fetching %s news from CryptoPanic", strings.ToUpper(symbol)),
		Do: func(ctx context.Context) (any, error) {
			var payload cryptopanicPayload
			raw, err := getJSON(ctx, c.client, cryptopanicName, c.postsURL(symbol, ""), nil, &payload)
			if err != nil {
				return nil, err
			}
			items := make([]market.NewsItem, 0, len(payload.Results))
			for _, post := range payload.Results {
				item := market.NewsItem{
					ID:          post.ID.String(),
					Title:       post.Title,
					URL:         post.URL,
					Source:      post.Source.Title,
					PublishedAt: post.PublishedAt,
				}
				for _, inst := range post.Instruments {
					item.Currencies = append(item.Currencies, strings.ToUpper(inst.Code))
				}
				items = append(items, item)
			}
			return &NewsResult{Items: items, Raw: raw}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	result := res.Data.(*NewsResult)
	if limit > 0 && len(result.Items) > limit {
		trimmed := *result
		trimmed.Items = result.Items[:limit]
		return &trimmed, nil
	}
	return result, nil
}

// BullBearCounts fetches bullish and bearish post counts for symbol in
// parallel. A missing token yields zero counts, not an error.
func (c *CryptoPanic) BullBearCounts(ctx context.Context, symbol string) (market.NewsCounts, error) {
	var counts market.NewsCounts
	if !c.Enabled() {
		return counts, nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.filteredCount(ctx, symbol, "bullish")
		counts.Bullish = n
		return err
	})
	g.Go(func() error {
		n, err := c.filteredCount(ctx, symbol, "bearish")
		counts.Bearish = n
		return err
	})
	if err := g.Wait(); err != nil {
		return market.NewsCounts{}, err
	}
	return counts, nil
}

func (c *CryptoPanic) filteredCount(ctx context.Context, symbol, filter string) (int, error) {
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: cryptopanicName,
		Key:      "count:" + filter + ":" + strings.ToUpper(symbol),
		TTL:      gateway.TTLNews,
		Describe: fmt.Sprintf("Counting %s posts for %s", filter, strings.ToUpper(symbol)),
		Do: func(ctx context.Context) (any, error) {
			var payload cryptopanicPayload
			if _, err := getJSON(ctx, c.client, cryptopanicName, c.postsURL(symbol, filter), nil, &payload); err != nil {
				return nil, err
			}
			if payload.Count > 0 {
				return payload.Count, nil
			}
			return len(payload.Results), nil
		},
	})
	if err != nil {
		return 0, err
	}
	return res.Data.(int), nil
}
