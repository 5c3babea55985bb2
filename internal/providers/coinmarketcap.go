package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

const (
	coinmarketcapName    = "coinmarketcap"
	coinmarketcapBaseURL = "https://pro-api.coinmarketcap.com"
)

// CoinMarketCap quotes prices with percent-change windows from the pro
// API. Disabled without an API key.
type CoinMarketCap struct {
	apiKey  string
	baseURL string
	client  HTTPDoer
	gateway *gateway.Gateway
}

// NewCoinMarketCap creates the quotes source.
func NewCoinMarketCap(gw *gateway.Gateway, apiKey string) *CoinMarketCap {
	return &CoinMarketCap{
		apiKey:  apiKey,
		baseURL: coinmarketcapBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		gateway: gw,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *CoinMarketCap) SetHTTPClient(client HTTPDoer) { c.client = client }

// SetBaseURL points the source at a different API host. Tests use it.
func (c *CoinMarketCap) SetBaseURL(baseURL string) { c.baseURL = baseURL }

// Name identifies the source in quote attribution.
func (c *CoinMarketCap) Name() string { return "CoinMarketCap" }

type cmcQuote struct {
	Price            float64  `json:"price"`
	PercentChange1h  *float64 `json:"percent_change_1h"`
	PercentChange24h *float64 `json:"percent_change_24h"`
	PercentChange7d  *float64 `json:"percent_change_7d"`
}

type cmcPayload struct {
	Data map[string][]struct {
		Name   string              `json:"name"`
		Symbol string              `json:"symbol"`
		Quote  map[string]cmcQuote `json:"quote"`
	} `json:"data"`
}

// Quotes returns every listed asset sharing the symbol, priced in the
// requested convert currency.
func (c *CoinMarketCap) Quotes(ctx context.Context, symbol, currency string, limit int) ([]market.PriceQuote, error) {
	if c.apiKey == "" {
		return nil, nil
	}
	base := strings.ToUpper(symbol)
	convert := strings.ToUpper(currency)

	res, err := c.gateway.Fetch(ctx, gateway.Request{
		Provider: coinmarketcapName,
		Key:      "quotes:" + base + ":" + convert,
		TTL:      gateway.TTLPrices,
		Describe: fmt.Sprintf("Fetching %s quotes from CoinMarketCap", base),
		Do: func(ctx context.Context) (any, error) {
			endpoint := c.baseURL + "/v2/cryptocurrency/quotes/latest?symbol=" +
				url.QueryEscape(base) + "&convert=" + url.QueryEscape(convert)
			headers := map[string]string{"X-CMC_PRO_API_KEY": c.apiKey}
			var payload cmcPayload
			if _, err := getJSON(ctx, c.client, coinmarketcapName, endpoint, headers, &payload); err != nil {
				return nil, err
			}
			var quotes []market.PriceQuote
			for _, entry := range payload.Data[base] {
				quoted, ok := entry.Quote[convert]
				if !ok || quoted.Price <= 0 {
					continue
				}
				quotes = append(quotes, market.PriceQuote{
					Source:    "CoinMarketCap",
					Symbol:    strings.ToUpper(entry.Symbol),
					Name:      entry.Name,
					Currency:  convert,
					Price:     quoted.Price,
					Change1h:  quoted.PercentChange1h,
					Change24h: quoted.PercentChange24h,
					Change7d:  quoted.PercentChange7d,
				})
			}
			return quotes, nil
		},
	})
	if err != nil {
		return nil, err
	}
	quotes := res.Data.([]market.PriceQuote)
	if limit > 0 && len(quotes) > limit {
		quotes = quotes[:limit]
	}
	return quotes, nil
}
