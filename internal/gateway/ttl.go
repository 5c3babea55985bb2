package gateway

import "time"

// Per-provider cache freshness policy. Trending, details, and news are all
// short because the product answers "right now" questions; fiat rates and
// the Chainlist network index move slowly; gas quotes are never cached
// (TTL zero at the call site) because a stale gas price is worse than none.
const (
	TTLTrending    = 60 * time.Second
	TTLCoinDetails = 2 * time.Minute
	TTLCoinSearch  = 5 * time.Minute
	TTLNews        = 10 * time.Minute
	TTLPrices      = 30 * time.Second
	TTLFiatRates   = time.Hour
	TTLChainlist   = 6 * time.Hour
)
