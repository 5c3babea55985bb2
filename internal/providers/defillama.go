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
	defillamaName    = "defillama"
	defillamaBaseURL = "https://coins.llama.fi"
)

// CoinIDResolver maps an exchange ticker onto catalog coin IDs, best
// rank first. The CoinGecko client provides it.
type CoinIDResolver func(ctx context.Context, symbol string, limit int) ([]market.CoinSummary, error)

// DefiLlama quotes USD prices keyed by CoinGecko coin IDs. It only
// serves USD; other currencies yield no quotes.
type DefiLlama struct {
	client  HTTPDoer
	gateway *gateway.Gateway
	resolve CoinIDResolver
}

// NewDefiLlama creates the source. resolve supplies the coin IDs to
// price.
func NewDefiLlama(gw *gateway.Gateway, resolve CoinIDResolver) *DefiLlama {
	return &DefiLlama{
		client:  &http.Client{Timeout: 10 * time.Second},
		gateway: gw,
		resolve: resolve,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (d *DefiLlama) SetHTTPClient(client HTTPDoer) { d.client = client }

// Name identifies the source in quote attribution.
func (d *DefiLlama) Name() string { return "DefiLlama" }

type defillamaPayload struct {
	Coins map[string]struct {
		Price  float64 `json:"price"`
		Symbol string  `json:"symbol"`
	} `json:"coins"`
}

// Quotes prices the best-ranked coins sharing the symbol, USD only.
func (d *DefiLlama) Quotes(ctx context.Context, symbol, currency string, limit int) ([]market.PriceQuote, error) {
	if strings.ToUpper(currency) != "USD" || d.resolve == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}
	coins, err := d.resolve(ctx, symbol, limit)
	if err != nil || len(coins) == 0 {
		return nil, err
	}

	var quotes []market.PriceQuote
	for _, coin := range coins {
		key := "coingecko:" + coin.ID
		res, err := d.gateway.Fetch(ctx, gateway.Request{
			Provider: defillamaName,
			Key:      "price:" + coin.ID,
			TTL:      gateway.TTLPrices,
			Describe: fmt.Sprintf("Fetching %s from DefiLlama", coin.ID),
			Do: func(ctx context.Context) (any, error) {
				endpoint := defillamaBaseURL + "/prices/current/" + url.PathEscape(key) + "?searchWidth=4"
				var payload defillamaPayload
				if _, err := getJSON(ctx, d.client, defillamaName, endpoint, nil, &payload); err != nil {
					return nil, err
				}
				entry, ok := payload.Coins[key]
				if !ok || entry.Price <= 0 {
					return nil, fmt.Errorf("%s: no price for %s", defillamaName, key)
				}
				return entry.Price, nil
			},
		})
		if err != nil {
			continue
		}
		quotes = append(quotes, market.PriceQuote{
			Source:   "DefiLlama",
			Symbol:   strings.ToUpper(coin.Symbol),
			Name:     coin.Name,
			Currency: "USD",
			Price:    res.Data.(float64),
		})
	}
	return quotes, nil
}
