package resolver

import (
	"context"
	"encoding/json"

	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

// fakeSearcher records queries and serves canned results.
type fakeSearcher struct {
	SearchFunc func(ctx context.Context, query string) ([]market.CoinSummary, json.RawMessage, error)

	Queries []string
}

func (f *fakeSearcher) SearchCoins(ctx context.Context, query string) ([]market.CoinSummary, json.RawMessage, error) {
	f.Queries = append(f.Queries, query)
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, query)
	}
	return nil, nil, nil
}
