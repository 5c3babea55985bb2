package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

// stablecoins are treated as interchangeable with USD when normalizing
// source quotes.
var stablecoins = map[string]struct{}{
	"USDT": {},
	"USDC": {},
	"BUSD": {},
}

// PriceSource is one exchange or aggregator the price service fans out
// to. Sources return nil quotes without error when they cannot serve a
// symbol.
type PriceSource interface {
	Name() string
	Quotes(ctx context.Context, symbol, currency string, limit int) ([]market.PriceQuote, error)
}

// PriceService aggregates quotes across every configured source. All
// sources are queried in USD and converted afterwards, so one rate-table
// fetch covers any target currency.
type PriceService struct {
	sources []PriceSource
	fiat    *FiatConverter
	logger  *zap.Logger
}

// NewPriceService builds the aggregator over the given sources.
func NewPriceService(sources []PriceSource, fiat *FiatConverter, logger *zap.Logger) *PriceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceService{sources: sources, fiat: fiat, logger: logger}
}

// GetPrice returns the single best quote, or nil when no source served
// the symbol.
func (s *PriceService) GetPrice(ctx context.Context, symbol, currency string) (*market.PriceQuote, error) {
	quotes, err := s.GetPrices(ctx, symbol, currency, 1)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, nil
	}
	return &quotes[0], nil
}

// NativePrice satisfies the gas service's pricer contract. It fails when
// no quote is available rather than returning zero.
func (s *PriceService) NativePrice(ctx context.Context, symbol, currency string) (float64, error) {
	quote, err := s.GetPrice(ctx, symbol, currency)
	if err != nil {
		return 0, err
	}
	if quote == nil {
		return 0, fmt.Errorf("no %s price for %s", currency, symbol)
	}
	return quote.Price, nil
}

// GetPrices fans out to every source concurrently and returns up to
// limit consensus-filtered quotes. Fiat-to-fiat pairs short-circuit to
// the rate table.
func (s *PriceService) GetPrices(ctx context.Context, symbol, currency string, limit int) ([]market.PriceQuote, error) {
	base := strings.ToUpper(strings.TrimSpace(symbol))
	target := strings.ToUpper(strings.TrimSpace(currency))
	if target == "" {
		target = "USD"
	}
	if limit <= 0 {
		limit = 3
	}

	if fiatQuote := s.directFiatQuote(ctx, base, target); fiatQuote != nil {
		return []market.PriceQuote{*fiatQuote}, nil
	}

	const fetchCurrency = "USD"

	var mu sync.Mutex
	var collected []market.PriceQuote
	g, fanCtx := errgroup.WithContext(ctx)
	for _, source := range s.sources {
		g.Go(func() error {
			quotes, err := source.Quotes(fanCtx, base, fetchCurrency, limit)
			if err != nil {
				s.logger.Debug("price source failed",
					zap.String("source", source.Name()), zap.Error(err))
				return nil
			}
			mu.Lock()
			collected = append(collected, quotes...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var results []market.PriceQuote
	for _, quote := range collected {
		normalized, ok := normalizeQuote(quote, fetchCurrency)
		if !ok {
			continue
		}
		name := normalized.Name
		if name == "" {
			name = normalized.Symbol
		}
		key := normalized.Source + "|" + normalized.Symbol + "|" + strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, normalized)
	}

	results = applyConsensus(results)
	if len(results) > limit {
		results = results[:limit]
	}
	if len(results) == 0 {
		return nil, nil
	}

	if target != fetchCurrency {
		rate, err := s.fiat.USDTo(ctx, target)
		if err != nil {
			return nil, err
		}
		for i := range results {
			results[i].Currency = target
			results[i].Price *= rate
		}
	}
	return results, nil
}

// directFiatQuote serves fiat-to-fiat conversions straight from the
// rate table. Returns nil when either side is not a known fiat code.
func (s *PriceService) directFiatQuote(ctx context.Context, base, target string) *market.PriceQuote {
	if s.fiat == nil || base == target {
		return nil
	}
	if !s.fiat.Supported(ctx, base) || !s.fiat.Supported(ctx, target) {
		return nil
	}
	rate, err := s.fiat.Convert(ctx, base, target)
	if err != nil {
		return nil
	}
	return &market.PriceQuote{
		Source:   "ExchangeRate",
		Symbol:   base,
		Currency: target,
		Price:    rate,
	}
}

// normalizeQuote accepts quotes in the fetch currency and maps USD
// stablecoins onto USD. Anything else is discarded.
func normalizeQuote(quote market.PriceQuote, expected string) (market.PriceQuote, bool) {
	if quote.Price <= 0 {
		return quote, false
	}
	if quote.Currency == expected {
		return quote, true
	}
	if _, ok := stablecoins[quote.Currency]; ok && expected == "USD" {
		quote.Currency = "USD"
		return quote, true
	}
	return quote, false
}

// applyConsensus keeps quotes agreeing with the majority asset and
// drops price outliers far from the median.
func applyConsensus(quotes []market.PriceQuote) []market.PriceQuote {
	if len(quotes) <= 1 {
		return quotes
	}

	key := func(q market.PriceQuote) string {
		name := strings.ToLower(strings.TrimSpace(q.Name))
		if name == "" {
			name = strings.ToLower(q.Symbol)
		}
		return q.Symbol + ":" + name
	}

	counts := make(map[string]int)
	for _, q := range quotes {
		counts[key(q)]++
	}
	var majorityKey string
	var majorityCount int
	for k, n := range counts {
		if n > majorityCount {
			majorityKey, majorityCount = k, n
		}
	}

	baseline := quotes
	if majorityCount > 1 {
		var majority []market.PriceQuote
		for _, q := range quotes {
			if key(q) == majorityKey {
				majority = append(majority, q)
			}
		}
		median := medianPrice(majority)
		baseline = baseline[:0:0]
		for _, q := range quotes {
			if key(q) == majorityKey || median == 0 {
				baseline = append(baseline, q)
				continue
			}
			ratio := q.Price / median
			if ratio >= 0.4 && ratio <= 2.5 {
				baseline = append(baseline, q)
			}
		}
	}

	return filterOutliers(baseline)
}

// filterOutliers removes quotes whose price strays beyond half or
// double the median of the remaining set.
func filterOutliers(quotes []market.PriceQuote) []market.PriceQuote {
	if len(quotes) <= 1 {
		return quotes
	}
	median := medianPrice(quotes)
	if median == 0 {
		return quotes
	}
	filtered := make([]market.PriceQuote, 0, len(quotes))
	for _, q := range quotes {
		ratio := q.Price / median
		if ratio >= 0.5 && ratio <= 2.0 {
			filtered = append(filtered, q)
		}
	}
	if len(filtered) == 0 {
		return quotes
	}
	return filtered
}

func medianPrice(quotes []market.PriceQuote) float64 {
	prices := make([]float64, 0, len(quotes))
	for _, q := range quotes {
		prices = append(prices, q.Price)
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return (prices[mid-1] + prices[mid]) / 2
}
