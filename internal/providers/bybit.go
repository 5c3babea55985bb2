package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

const bybitName = "bybit"

var bybitEndpoints = []string{
	"https://api.bytick.com",
	"https://api.bybit.com",
}

// Bybit quotes spot pair prices from the v5 market tickers endpoint.
type Bybit struct {
	client  HTTPDoer
	gateway *gateway.Gateway
}

// NewBybit creates the spot ticker source.
func NewBybit(gw *gateway.Gateway) *Bybit {
	return &Bybit{
		client:  &http.Client{Timeout: 10 * time.Second},
		gateway: gw,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (b *Bybit) SetHTTPClient(client HTTPDoer) { b.client = client }

// Name identifies the source in quote attribution.
func (b *Bybit) Name() string { return "Bybit" }

type bybitPayload struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

// Quotes returns at most one quote: the spot pair last price. USD maps
// to the USDT quote asset.
func (b *Bybit) Quotes(ctx context.Context, symbol, currency string, _ int) ([]market.PriceQuote, error) {
	base := strings.ToUpper(symbol)
	quote := strings.ToUpper(currency)
	if quote == "USD" {
		quote = "USDT"
	}
	pair := base + quote

	res, err := b.gateway.Fetch(ctx, gateway.Request{
		Provider: bybitName,
		Key:      "ticker:" + pair,
		TTL:      gateway.TTLPrices,
		Describe: fmt.Sprintf("Fetching %s from Bybit", pair),
		Do: func(ctx context.Context) (any, error) {
			var lastErr error
			for _, endpoint := range bybitEndpoints {
				var payload bybitPayload
				_, err := getJSON(ctx, b.client, bybitName,
					endpoint+"/v5/market/tickers?category=spot&symbol="+url.QueryEscape(pair), nil, &payload)
				if err != nil {
					lastErr = err
					continue
				}
				if payload.RetCode != 0 || len(payload.Result.List) == 0 {
					lastErr = fmt.Errorf("%s: no ticker for %s: %s", bybitName, pair, payload.RetMsg)
					continue
				}
				price, err := strconv.ParseFloat(payload.Result.List[0].LastPrice, 64)
				if err != nil || price <= 0 {
					lastErr = fmt.Errorf("%s: bad price %q for %s", bybitName, payload.Result.List[0].LastPrice, pair)
					continue
				}
				return market.PriceQuote{
					Source:   "Bybit",
					Symbol:   base,
					Currency: strings.ToUpper(currency),
					Price:    price,
				}, nil
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("%s: no endpoints configured", bybitName)
			}
			return nil, lastErr
		},
	})
	if err != nil {
		return nil, err
	}
	return []market.PriceQuote{res.Data.(market.PriceQuote)}, nil
}
