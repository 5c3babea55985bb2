package providers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

// newTestGateway returns a gateway that never actually sleeps between
// retries.
func newTestGateway() *gateway.Gateway {
	return gateway.New(gateway.Options{
		MaxRetries:  0,
		BackoffBase: 1,
	}, zap.NewNop())
}

// fakePriceSource serves canned quotes for the aggregation tests.
type fakePriceSource struct {
	name   string
	quotes []market.PriceQuote
	err    error

	Calls      int
	LastSymbol string
	LastFiat   string
}

func (f *fakePriceSource) Name() string { return f.name }

func (f *fakePriceSource) Quotes(_ context.Context, symbol, currency string, _ int) ([]market.PriceQuote, error) {
	f.Calls++
	f.LastSymbol = symbol
	f.LastFiat = currency
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

// fakePricer implements NativePricer with a fixed rate table keyed by
// symbol|currency.
type fakePricer struct {
	prices map[string]float64
}

func (f *fakePricer) NativePrice(_ context.Context, symbol, currency string) (float64, error) {
	if price, ok := f.prices[symbol+"|"+currency]; ok {
		return price, nil
	}
	return 0, errNoPrice
}

var errNoPrice = errors.New("no price")
