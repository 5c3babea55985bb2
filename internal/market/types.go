// Package market holds the shared domain types exchanged between the
// provider clients, the session store, the resolver, and the turn pipeline.
package market

import "time"

// CoinSummary is the slim view of a coin used for trending memory and
// search results. ID is the canonical upstream identifier and never
// changes once assigned; Symbol and Name are display attributes.
type CoinSummary struct {
	ID            string   `json:"id"`
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	MarketCapRank int      `json:"market_cap_rank"`
	PriceUSD      float64  `json:"price_usd"`
	Change24h     *float64 `json:"change_24h,omitempty"`
	Change7d      *float64 `json:"change_7d,omitempty"`
	Change30d     *float64 `json:"change_30d,omitempty"`
}

// CoinDetails carries the fields the analysis flow depends on. Upstream
// returns far more; everything else is passed through raw via SOURCES.
type CoinDetails struct {
	CoinSummary
	MarketCapUSD   float64 `json:"market_cap_usd"`
	TotalVolumeUSD float64 `json:"total_volume_usd"`
	Description    string  `json:"description,omitempty"`
	Homepage       string  `json:"homepage,omitempty"`
}

// Momentum groups the percent-change windows fed to the sentiment scorer.
// Nil pointers mean the window was unavailable upstream.
type Momentum struct {
	Change24h *float64
	Change7d  *float64
	Change30d *float64
}

// Momentum extracts the scoring windows from a summary.
func (c CoinSummary) Momentum() Momentum {
	return Momentum{Change24h: c.Change24h, Change7d: c.Change7d, Change30d: c.Change30d}
}

// NewsItem is one news post about a coin.
type NewsItem struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Currencies  []string  `json:"currencies,omitempty"`
	Bullish     *bool     `json:"bullish,omitempty"`
}

// NewsCounts is the bullish/bearish post differential for a symbol.
type NewsCounts struct {
	Bullish int `json:"bullish"`
	Bearish int `json:"bearish"`
}

// SearchResult is one web-search hit used as LLM context.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchKnowledge is a web-search answer plus its supporting sources.
type SearchKnowledge struct {
	Answer  string         `json:"answer,omitempty"`
	Sources []SearchResult `json:"sources"`
}

// PriceQuote is a single exchange-rate observation from one price source.
type PriceQuote struct {
	Source    string   `json:"source"`
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name,omitempty"`
	Currency  string   `json:"currency"`
	Price     float64  `json:"price"`
	Change1h  *float64 `json:"change_1h,omitempty"`
	Change4h  *float64 `json:"change_4h,omitempty"`
	Change24h *float64 `json:"change_24h,omitempty"`
	Change7d  *float64 `json:"change_7d,omitempty"`
}
