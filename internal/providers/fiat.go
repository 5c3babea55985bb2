package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
)

const (
	fiatName    = "fiat"
	fiatRateURL = "https://open.er-api.com/v6/latest/USD"
)

// FiatConverter converts between fiat currencies using a USD-based rate
// table. Rates are cached for an hour; exchange rates drift slowly.
type FiatConverter struct {
	client  HTTPDoer
	gateway *gateway.Gateway
	url     string
}

// NewFiatConverter creates the converter.
func NewFiatConverter(gw *gateway.Gateway) *FiatConverter {
	return &FiatConverter{
		client:  &http.Client{Timeout: 10 * time.Second},
		gateway: gw,
		url:     fiatRateURL,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (f *FiatConverter) SetHTTPClient(client HTTPDoer) { f.client = client }

// SetRateURL points the converter at a different rate feed. Tests use it.
func (f *FiatConverter) SetRateURL(url string) { f.url = url }

type fiatPayload struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

func (f *FiatConverter) rates(ctx context.Context) (map[string]float64, error) {
	res, err := f.gateway.Fetch(ctx, gateway.Request{
		Provider: fiatName,
		Key:      "usd-rates",
		TTL:      gateway.TTLFiatRates,
		Describe: "Loading fiat exchange rates",
		Do: func(ctx context.Context) (any, error) {
			var payload fiatPayload
			if _, err := getJSON(ctx, f.client, fiatName, f.url, nil, &payload); err != nil {
				return nil, err
			}
			if payload.Result != "success" || len(payload.Rates) == 0 {
				return nil, fmt.Errorf("%s: rate feed returned %q", fiatName, payload.Result)
			}
			rates := make(map[string]float64, len(payload.Rates))
			for code, rate := range payload.Rates {
				rates[strings.ToUpper(code)] = rate
			}
			return rates, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Data.(map[string]float64), nil
}

// USDTo returns how many units of currency one US dollar buys.
func (f *FiatConverter) USDTo(ctx context.Context, currency string) (float64, error) {
	return f.Convert(ctx, "USD", currency)
}

// Convert returns the rate from one fiat currency to another.
func (f *FiatConverter) Convert(ctx context.Context, from, to string) (float64, error) {
	rates, err := f.rates(ctx)
	if err != nil {
		return 0, err
	}
	fromRate, ok := rates[strings.ToUpper(strings.TrimSpace(from))]
	if !ok || fromRate <= 0 {
		return 0, fmt.Errorf("%s: unsupported currency %q", fiatName, from)
	}
	toRate, ok := rates[strings.ToUpper(strings.TrimSpace(to))]
	if !ok || toRate <= 0 {
		return 0, fmt.Errorf("%s: unsupported currency %q", fiatName, to)
	}
	return toRate / fromRate, nil
}

// Supported reports whether currency appears in the rate table.
func (f *FiatConverter) Supported(ctx context.Context, currency string) bool {
	rates, err := f.rates(ctx)
	if err != nil {
		return false
	}
	_, ok := rates[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}
