// Package session holds per-conversation state: bounded chat history, the
// trending-list memory used for reference resolution, and the language
// preference. Nothing here survives a process restart; that is deliberate.
package session

import (
	"strings"
	"time"

	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

// TrendingMemory is the snapshot of the last trending list shown to a
// session, plus the derived lookup maps the resolver needs. It is built in
// one shot by NewTrendingMemory and never mutated afterwards, so swapping
// the pointer on the session replaces all three maps atomically.
type TrendingMemory struct {
	coins     []market.CoinSummary
	fetchedAt time.Time

	// bySymbol maps upper-cased symbol to coin IDs in trending order.
	// Symbol collisions keep every ID.
	bySymbol map[string][]string
	// byName maps lower-cased display name to coin IDs.
	byName map[string][]string
	// byID maps coin ID back to its position in the list (1-based).
	byID map[string]int
}

// NewTrendingMemory builds the snapshot and all derived maps together.
func NewTrendingMemory(coins []market.CoinSummary, fetchedAt time.Time) *TrendingMemory {
	m := &TrendingMemory{
		coins:     make([]market.CoinSummary, len(coins)),
		fetchedAt: fetchedAt,
		bySymbol:  make(map[string][]string, len(coins)),
		byName:    make(map[string][]string, len(coins)),
		byID:      make(map[string]int, len(coins)),
	}
	copy(m.coins, coins)
	for i, c := range m.coins {
		sym := strings.ToUpper(c.Symbol)
		m.bySymbol[sym] = append(m.bySymbol[sym], c.ID)
		name := strings.ToLower(c.Name)
		m.byName[name] = append(m.byName[name], c.ID)
		m.byID[c.ID] = i + 1
	}
	return m
}

// Len returns the number of remembered coins.
func (m *TrendingMemory) Len() int { return len(m.coins) }

// FetchedAt returns when the snapshot was taken.
func (m *TrendingMemory) FetchedAt() time.Time { return m.fetchedAt }

// Coins returns a copy of the remembered list in rank order.
func (m *TrendingMemory) Coins() []market.CoinSummary {
	out := make([]market.CoinSummary, len(m.coins))
	copy(out, m.coins)
	return out
}

// ByIndex returns the coin at the 1-based list position.
func (m *TrendingMemory) ByIndex(i int) (market.CoinSummary, bool) {
	if i < 1 || i > len(m.coins) {
		return market.CoinSummary{}, false
	}
	return m.coins[i-1], true
}

// BySymbol returns every coin ID listed under the symbol, in trending
// order. Matching is case-insensitive.
func (m *TrendingMemory) BySymbol(symbol string) []string {
	ids := m.bySymbol[strings.ToUpper(symbol)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// NameKeys returns the lower-cased name keys for fuzzy matching.
func (m *TrendingMemory) NameKeys() []string {
	keys := make([]string, 0, len(m.byName))
	for k := range m.byName {
		keys = append(keys, k)
	}
	return keys
}

// ByName returns the coin IDs under the exact lower-cased name key.
func (m *TrendingMemory) ByName(nameKey string) []string {
	ids := m.byName[strings.ToLower(nameKey)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Position returns the 1-based list position of a coin ID.
func (m *TrendingMemory) Position(coinID string) (int, bool) {
	pos, ok := m.byID[coinID]
	return pos, ok
}

// Coin returns the summary for a remembered coin ID.
func (m *TrendingMemory) Coin(coinID string) (market.CoinSummary, bool) {
	pos, ok := m.byID[coinID]
	if !ok {
		return market.CoinSummary{}, false
	}
	return m.coins[pos-1], true
}
