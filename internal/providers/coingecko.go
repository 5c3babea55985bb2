package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

const (
	coingeckoName    = "coingecko"
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"
)

// TrendingSnapshot is a trending fetch plus the raw upstream payload for
// SOURCES pass-through.
type TrendingSnapshot struct {
	Coins []market.CoinSummary
	Raw   json.RawMessage
}

// CoinSearchResult pairs parsed search hits with the raw payload.
type CoinSearchResult struct {
	Coins []market.CoinSummary
	Raw   json.RawMessage
}

// CoinDetailsResult pairs parsed coin details with the raw payload.
type CoinDetailsResult struct {
	Details market.CoinDetails
	Raw     json.RawMessage
}

// CoinGeckoConfig configures the CoinGecko client.
type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultCoinGeckoConfig returns the public API defaults. The demo key
// is optional; without one the public rate limits apply.
func DefaultCoinGeckoConfig() CoinGeckoConfig {
	return CoinGeckoConfig{
		BaseURL: coingeckoBaseURL,
		Timeout: 15 * time.Second,
	}
}

// CoinGecko is the market-data client backing trending, search, and coin
// details. All calls go through the gateway for caching and cooldown.
type CoinGecko struct {
	config  CoinGeckoConfig
	client  HTTPDoer
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewCoinGecko creates a client with default configuration.
func NewCoinGecko(gw *gateway.Gateway, apiKey string, logger *zap.Logger) *CoinGecko {
	cfg := DefaultCoinGeckoConfig()
	cfg.APIKey = apiKey
	return NewCoinGeckoWithConfig(cfg, gw, logger)
}

// NewCoinGeckoWithConfig creates a client with custom configuration.
func NewCoinGeckoWithConfig(config CoinGeckoConfig, gw *gateway.Gateway, logger *zap.Logger) *CoinGecko {
	if config.BaseURL == "" {
		config.BaseURL = coingeckoBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoinGecko{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		gateway: gw,
		logger:  logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client. Tests use it to
// point the provider at an httptest server transport.
func (c *CoinGecko) SetHTTPClient(client HTTPDoer) { c.client = client }

func (c *CoinGecko) headers() map[string]string {
	if c.config.APIKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": c.config.APIKey}
}

func (c *CoinGecko) withKey(rawURL string) string {
	if c.config.APIKey == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "x_cg_demo_api_key=" + url.QueryEscape(c.config.APIKey)
}

type trendingPayload struct {
	Coins []struct {
		Item struct {
			ID            string `json:"id"`
			Symbol        string `json:"symbol"`
			Name          string `json:"name"`
			MarketCapRank int    `json:"market_cap_rank"`
			Data          struct {
				Price                 float64            `json:"price"`
				PriceChangePercentage map[string]float64 `json:"price_change_percentage_24h"`
			} `json:"data"`
		} `json:"item"`
	} `json:"coins"`
}

// Trending returns the current trending list in upstream order.
func (c *CoinGecko) Trending(ctx context.Context) (*TrendingSnapshot, error) {
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: coingeckoName,
		Key:      "trending",
		TTL:      gateway.TTLTrending,
		Describe: "Fetching trending coins from CoinGecko",
		Do: func(ctx context.Context) (any, error) {
			var payload trendingPayload
			raw, err := getJSON(ctx, c.client, coingeckoName, c.withKey(c.config.BaseURL+"/search/trending"), c.headers(), &payload)
			if err != nil {
				return nil, err
			}
			coins := make([]market.CoinSummary, 0, len(payload.Coins))
			for _, entry := range payload.Coins {
				item := entry.Item
				summary := market.CoinSummary{
					ID:            item.ID,
					Symbol:        strings.ToUpper(item.Symbol),
					Name:          item.Name,
					MarketCapRank: item.MarketCapRank,
					PriceUSD:      item.Data.Price,
				}
				if change, ok := item.Data.PriceChangePercentage["usd"]; ok {
					summary.Change24h = &change
				}
				coins = append(coins, summary)
			}
			return &TrendingSnapshot{Coins: coins, Raw: raw}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Data.(*TrendingSnapshot), nil
}

type searchPayload struct {
	Coins []struct {
		ID            string `json:"id"`
		Symbol        string `json:"symbol"`
		Name          string `json:"name"`
		MarketCapRank int    `json:"market_cap_rank"`
	} `json:"coins"`
}

// SearchCoins queries the coin catalog by free text, ordered by market
// cap rank with unranked entries last. It satisfies the resolver's
// search fallback contract.
func (c *CoinGecko) SearchCoins(ctx context.Context, query string) ([]market.CoinSummary, json.RawMessage, error) {
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: coingeckoName,
		Key:      "search:" + strings.ToLower(query),
		TTL:      gateway.TTLCoinSearch,
		Describe: fmt.Sprintf("Searching CoinGecko for %q", query),
		Do: func(ctx context.Context) (any, error) {
			endpoint := c.withKey(c.config.BaseURL + "/search?query=" + url.QueryEscape(query))
			var payload searchPayload
			raw, err := getJSON(ctx, c.client, coingeckoName, endpoint, c.headers(), &payload)
			if err != nil {
				return nil, err
			}
			coins := make([]market.CoinSummary, 0, len(payload.Coins))
			for _, entry := range payload.Coins {
				coins = append(coins, market.CoinSummary{
					ID:            entry.ID,
					Symbol:        strings.ToUpper(entry.Symbol),
					Name:          entry.Name,
					MarketCapRank: entry.MarketCapRank,
				})
			}
			sort.SliceStable(coins, func(i, j int) bool {
				return rankOrder(coins[i].MarketCapRank) < rankOrder(coins[j].MarketCapRank)
			})
			return &CoinSearchResult{Coins: coins, Raw: raw}, nil
		},
	})
	if err != nil {
		return nil, nil, err
	}
	result := res.Data.(*CoinSearchResult)
	return result.Coins, result.Raw, nil
}

// rankOrder sorts unranked (zero) entries after every ranked one.
func rankOrder(rank int) int {
	if rank <= 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

type coinDetailsPayload struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank int    `json:"market_cap_rank"`
	Description   struct {
		EN string `json:"en"`
	} `json:"description"`
	Links struct {
		Homepage []string `json:"homepage"`
	} `json:"links"`
	MarketData struct {
		CurrentPrice             map[string]float64 `json:"current_price"`
		MarketCap                map[string]float64 `json:"market_cap"`
		TotalVolume              map[string]float64 `json:"total_volume"`
		PriceChangePercentage24h *float64           `json:"price_change_percentage_24h"`
		PriceChangePercentage7d  *float64           `json:"price_change_percentage_7d"`
		PriceChangePercentage30d *float64           `json:"price_change_percentage_30d"`
	} `json:"market_data"`
}

// CoinDetails fetches full market data for one coin ID.
func (c *CoinGecko) CoinDetails(ctx context.Context, coinID string) (*CoinDetailsResult, error) {
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: coingeckoName,
		Key:      "details:" + coinID,
		TTL:      gateway.TTLCoinDetails,
		Describe: fmt.Sprintf("Fetching market data for %s", coinID),
		Do: func(ctx context.Context) (any, error) {
			endpoint := c.withKey(c.config.BaseURL + "/coins/" + url.PathEscape(coinID) +
				"?localization=false&tickers=false&community_data=false&developer_data=false&sparkline=false")
			var payload coinDetailsPayload
			raw, err := getJSON(ctx, c.client, coingeckoName, endpoint, c.headers(), &payload)
			if err != nil {
				return nil, err
			}
			details := market.CoinDetails{
				CoinSummary: market.CoinSummary{
					ID:            payload.ID,
					Symbol:        strings.ToUpper(payload.Symbol),
					Name:          payload.Name,
					MarketCapRank: payload.MarketCapRank,
					PriceUSD:      payload.MarketData.CurrentPrice["usd"],
					Change24h:     payload.MarketData.PriceChangePercentage24h,
					Change7d:      payload.MarketData.PriceChangePercentage7d,
					Change30d:     payload.MarketData.PriceChangePercentage30d,
				},
				MarketCapUSD:   payload.MarketData.MarketCap["usd"],
				TotalVolumeUSD: payload.MarketData.TotalVolume["usd"],
				Description:    firstParagraph(payload.Description.EN),
			}
			if len(payload.Links.Homepage) > 0 {
				details.Homepage = payload.Links.Homepage[0]
			}
			return &CoinDetailsResult{Details: details, Raw: raw}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Data.(*CoinDetailsResult), nil
}

type marketsPayload []struct {
	ID                           string   `json:"id"`
	Symbol                       string   `json:"symbol"`
	Name                         string   `json:"name"`
	MarketCapRank                int      `json:"market_cap_rank"`
	CurrentPrice                 float64  `json:"current_price"`
	PriceChangePct1h             *float64 `json:"price_change_percentage_1h_in_currency"`
	PriceChangePct24h            *float64 `json:"price_change_percentage_24h_in_currency"`
	PriceChangePct7d             *float64 `json:"price_change_percentage_7d_in_currency"`
	PriceChangePercentage24hFlat *float64 `json:"price_change_percentage_24h"`
}

// Markets returns market rows for the given coin IDs priced in currency.
func (c *CoinGecko) Markets(ctx context.Context, coinIDs []string, currency string) ([]market.PriceQuote, error) {
	if len(coinIDs) == 0 {
		return nil, nil
	}
	currency = strings.ToLower(currency)
	ids := strings.Join(coinIDs, ",")
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: coingeckoName,
		Key:      "markets:" + currency + ":" + ids,
		TTL:      gateway.TTLPrices,
		Describe: "Fetching CoinGecko market prices",
		Do: func(ctx context.Context) (any, error) {
			endpoint := c.withKey(c.config.BaseURL + "/coins/markets?vs_currency=" + url.QueryEscape(currency) +
				"&ids=" + url.QueryEscape(ids) + "&price_change_percentage=1h,24h,7d")
			var payload marketsPayload
			if _, err := getJSON(ctx, c.client, coingeckoName, endpoint, c.headers(), &payload); err != nil {
				return nil, err
			}
			quotes := make([]market.PriceQuote, 0, len(payload))
			for _, row := range payload {
				change24 := row.PriceChangePct24h
				if change24 == nil {
					change24 = row.PriceChangePercentage24hFlat
				}
				quotes = append(quotes, market.PriceQuote{
					Source:    "CoinGecko",
					Symbol:    strings.ToUpper(row.Symbol),
					Name:      row.Name,
					Currency:  strings.ToUpper(currency),
					Price:     row.CurrentPrice,
					Change1h:  row.PriceChangePct1h,
					Change24h: change24,
					Change7d:  row.PriceChangePct7d,
				})
			}
			return quotes, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Data.([]market.PriceQuote), nil
}

// ResolveCoinIDs finds catalog IDs whose symbol exactly matches the
// given ticker, best rank first. Used by price sources that key on
// CoinGecko IDs.
func (c *CoinGecko) ResolveCoinIDs(ctx context.Context, symbol string, limit int) ([]market.CoinSummary, error) {
	coins, _, err := c.SearchCoins(ctx, symbol)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(symbol)
	matched := make([]market.CoinSummary, 0, limit)
	for _, coin := range coins {
		if coin.Symbol == upper {
			matched = append(matched, coin)
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

// SimplePrice is the lightweight /simple/price fallback for a single coin.
func (c *CoinGecko) SimplePrice(ctx context.Context, coinID, currency string) (float64, error) {
	currency = strings.ToLower(currency)
	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: coingeckoName,
		Key:      "simple:" + currency + ":" + coinID,
		TTL:      gateway.TTLPrices,
		Describe: fmt.Sprintf("Fetching spot price for %s", coinID),
		Do: func(ctx context.Context) (any, error) {
			endpoint := c.withKey(c.config.BaseURL + "/simple/price?ids=" + url.QueryEscape(coinID) +
				"&vs_currencies=" + url.QueryEscape(currency))
			var payload map[string]map[string]float64
			if _, err := getJSON(ctx, c.client, coingeckoName, endpoint, c.headers(), &payload); err != nil {
				return nil, err
			}
			price, ok := payload[coinID][currency]
			if !ok {
				return nil, fmt.Errorf("%s: no %s price for %s", coingeckoName, currency, coinID)
			}
			return price, nil
		},
	})
	if err != nil {
		return 0, err
	}
	return res.Data.(float64), nil
}

func firstParagraph(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "\n"); idx > 0 {
		text = text[:idx]
	}
	const max = 600
	if len(text) > max {
		text = text[:max] + "…"
	}
	return text
}
