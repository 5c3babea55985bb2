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

const binanceName = "binance"

// binanceEndpoints are tried in order; the data mirror stays reachable
// from regions where the main API is blocked.
var binanceEndpoints = []string{
	"https://api.binance.com",
	"https://data-api.binance.vision",
}

// binanceQuoteMap maps fiat tickers onto the exchange's trading quotes.
var binanceQuoteMap = map[string]string{
	"USD": "USDT",
	"IDR": "BIDR",
}

// Binance quotes spot pair prices from the public ticker endpoint.
type Binance struct {
	client  HTTPDoer
	gateway *gateway.Gateway
}

// NewBinance creates the spot ticker source.
func NewBinance(gw *gateway.Gateway) *Binance {
	return &Binance{
		client:  &http.Client{Timeout: 10 * time.Second},
		gateway: gw,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (b *Binance) SetHTTPClient(client HTTPDoer) { b.client = client }

// Name identifies the source in quote attribution.
func (b *Binance) Name() string { return "Binance" }

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Quotes returns at most one quote: the spot pair price for symbol in
// the mapped trading quote.
func (b *Binance) Quotes(ctx context.Context, symbol, currency string, _ int) ([]market.PriceQuote, error) {
	base := strings.ToUpper(symbol)
	quote := strings.ToUpper(currency)
	if mapped, ok := binanceQuoteMap[quote]; ok {
		quote = mapped
	}
	pair := base + quote

	res, err := b.gateway.Fetch(ctx, gateway.Request{
		Provider: binanceName,
		Key:      "ticker:" + pair,
		TTL:      gateway.TTLPrices,
		Describe: fmt.Sprintf("Fetching %s from Binance", pair),
		Do: func(ctx context.Context) (any, error) {
			var lastErr error
			for _, endpoint := range binanceEndpoints {
				var ticker binanceTicker
				_, err := getJSON(ctx, b.client, binanceName,
					endpoint+"/api/v3/ticker/price?symbol="+url.QueryEscape(pair), nil, &ticker)
				if err != nil {
					lastErr = err
					continue
				}
				price, err := strconv.ParseFloat(ticker.Price, 64)
				if err != nil || price <= 0 {
					lastErr = fmt.Errorf("%s: bad price %q for %s", binanceName, ticker.Price, pair)
					continue
				}
				return market.PriceQuote{
					Source:   "Binance",
					Symbol:   base,
					Currency: strings.ToUpper(currency),
					Price:    price,
				}, nil
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("%s: no endpoints configured", binanceName)
			}
			return nil, lastErr
		},
	})
	if err != nil {
		return nil, err
	}
	return []market.PriceQuote{res.Data.(market.PriceQuote)}, nil
}
