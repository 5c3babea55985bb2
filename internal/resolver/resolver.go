// Package resolver turns free-text coin mentions ("SKY", "$BTC", "nomor 3",
// "the first one") into canonical coin IDs. Session trending memory is
// consulted first so follow-ups stay consistent with what the user was just
// shown and no rate-limited search call is spent; upstream search is the
// fallback for coins outside the remembered list.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/market"
	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

// ErrUnresolvable means no strategy produced a candidate. The pipeline
// surfaces it as a clarifying question, not a hard error.
var ErrUnresolvable = errors.New("mention could not be resolved to a coin")

// Source tags where a resolution came from.
type Source string

const (
	SourceTrendingMemory Source = "trending_memory"
	SourceSearchFallback Source = "search_fallback"
)

// Result is the resolver output. CoinIDs are unique and keep resolution
// order. Raw is the unmodified search payload, present only for fallback
// resolutions so the pipeline can emit a coin_list SOURCES event.
type Result struct {
	CoinIDs []string
	Source  Source
	Raw     json.RawMessage
}

// Searcher is the upstream coin-search capability. Results must already be
// ranked by market-cap rank ascending; Raw is the untouched response body.
type Searcher interface {
	SearchCoins(ctx context.Context, query string) ([]market.CoinSummary, json.RawMessage, error)
}

// Resolver resolves mentions against a session's trending memory with
// search fallback.
type Resolver struct {
	store  *session.Store
	search Searcher
	topK   int
	logger *zap.Logger
}

// New creates a resolver. topK caps fallback results; zero means 5.
func New(store *session.Store, search Searcher, topK int, logger *zap.Logger) *Resolver {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, search: search, topK: topK, logger: logger.Named("resolver")}
}

// Resolve applies the strategies in fixed order: ordinal, symbol, name,
// search fallback. The first strategy that matches wins, so the result is
// deterministic for a given session state and mention.
func (r *Resolver) Resolve(ctx context.Context, activityID, mention string) (Result, error) {
	mention = strings.TrimSpace(mention)
	if mention == "" {
		return Result{}, ErrUnresolvable
	}

	memory := r.store.TrendingMemory(activityID)

	if idx, ok := parseOrdinal(mention); ok {
		// An ordinal is a positional reference into the shown list; with
		// no list (or past its end) there is nothing it can mean, and
		// falling through to text search would resolve it to noise.
		if memory == nil {
			return Result{}, fmt.Errorf("%w: ordinal %d with no trending list shown", ErrUnresolvable, idx)
		}
		coin, ok := memory.ByIndex(idx)
		if !ok {
			return Result{}, fmt.Errorf("%w: ordinal %d out of range 1..%d", ErrUnresolvable, idx, memory.Len())
		}
		r.logger.Debug("resolved by ordinal", zap.Int("index", idx), zap.String("coin_id", coin.ID))
		return Result{CoinIDs: []string{coin.ID}, Source: SourceTrendingMemory}, nil
	}

	if memory != nil {
		if ids := matchSymbol(memory, mention); len(ids) > 0 {
			r.logger.Debug("resolved by symbol", zap.Strings("coin_ids", ids))
			return Result{CoinIDs: ids, Source: SourceTrendingMemory}, nil
		}
		if ids := matchName(memory, mention); len(ids) > 0 {
			r.logger.Debug("resolved by name", zap.Strings("coin_ids", ids))
			return Result{CoinIDs: ids, Source: SourceTrendingMemory}, nil
		}
	}

	return r.fallback(ctx, mention)
}

func (r *Resolver) fallback(ctx context.Context, mention string) (Result, error) {
	query := cleanQuery(mention)
	coins, raw, err := r.search.SearchCoins(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("fallback search for %q: %w", query, err)
	}
	if len(coins) == 0 {
		return Result{}, fmt.Errorf("%w: search found nothing for %q", ErrUnresolvable, query)
	}
	if len(coins) > r.topK {
		coins = coins[:r.topK]
	}
	ids := make([]string, 0, len(coins))
	seen := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}
	r.logger.Debug("resolved by search fallback", zap.String("query", query), zap.Strings("coin_ids", ids))
	return Result{CoinIDs: ids, Source: SourceSearchFallback, Raw: raw}, nil
}

var (
	// "number 3", "no. 3", "nomor 3", "#2", "urutan 3"
	numberedRef = regexp.MustCompile(`(?i)(?:\b(?:number|no\.?|nomor|urutan)\s*|#)(\d{1,3})\b`)
	// bare small integer, e.g. the user just types "3"
	bareNumber = regexp.MustCompile(`^\s*(\d{1,3})\s*$`)
)

// wordOrdinals covers English and Indonesian spoken ordinals up to ten,
// which is as far as any trending list goes.
var wordOrdinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"1st": 1, "2nd": 2, "3rd": 3, "4th": 4, "5th": 5,
	"6th": 6, "7th": 7, "8th": 8, "9th": 9, "10th": 10,
	"pertama": 1, "kedua": 2, "ketiga": 3, "keempat": 4, "kelima": 5,
	"keenam": 6, "ketujuh": 7, "kedelapan": 8, "kesembilan": 9, "kesepuluh": 10,
}

// parseOrdinal extracts a 1-based list position from the mention.
func parseOrdinal(mention string) (int, bool) {
	if m := numberedRef.FindStringSubmatch(mention); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	if m := bareNumber.FindStringSubmatch(mention); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	for _, tok := range tokenize(mention) {
		if n, ok := wordOrdinals[strings.ToLower(tok)]; ok {
			return n, true
		}
	}
	return 0, false
}

// matchSymbol returns every coin ID under a symbol token in the mention.
// Collisions are preserved in trending order; callers decide how many to
// detail.
func matchSymbol(memory *session.TrendingMemory, mention string) []string {
	for _, tok := range tokenize(mention) {
		sym := strings.TrimPrefix(tok, "$")
		if sym == "" {
			continue
		}
		if ids := memory.BySymbol(sym); len(ids) > 0 {
			return ids
		}
	}
	return nil
}

// matchName does a case-insensitive substring match against remembered
// display names. Ties are broken by best (lowest) market-cap rank, then by
// list position so the outcome is stable.
func matchName(memory *session.TrendingMemory, mention string) []string {
	lower := strings.ToLower(strings.TrimSpace(mention))
	if len(lower) < 3 {
		return nil
	}

	type candidate struct {
		id   string
		rank int
		pos  int
	}
	var cands []candidate
	keys := memory.NameKeys()
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.Contains(lower, key) && !strings.Contains(key, lower) {
			continue
		}
		for _, id := range memory.ByName(key) {
			coin, _ := memory.Coin(id)
			pos, _ := memory.Position(id)
			rank := coin.MarketCapRank
			if rank <= 0 {
				rank = int(^uint(0) >> 1)
			}
			cands = append(cands, candidate{id: id, rank: rank, pos: pos})
		}
	}
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].rank != cands[j].rank {
			return cands[i].rank < cands[j].rank
		}
		return cands[i].pos < cands[j].pos
	})
	ids := make([]string, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if _, dup := seen[c.id]; dup {
			continue
		}
		seen[c.id] = struct{}{}
		ids = append(ids, c.id)
	}
	return ids
}

// tokenize splits a mention into word tokens, keeping a leading $ so
// "$BTC" survives as one token.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == '$':
			return false
		default:
			return true
		}
	})
}

// cleanQuery strips noise words so "analyze BTC please" searches for "BTC".
var noiseWords = map[string]struct{}{
	"analyze": {}, "analyse": {}, "analysis": {}, "analisa": {}, "analisis": {},
	"about": {}, "tell": {}, "me": {}, "the": {}, "what": {}, "coin": {},
	"tentang": {}, "apa": {}, "itu": {}, "please": {}, "tolong": {},
}

func cleanQuery(mention string) string {
	var kept []string
	for _, tok := range tokenize(mention) {
		if _, noise := noiseWords[strings.ToLower(tok)]; noise {
			continue
		}
		kept = append(kept, strings.TrimPrefix(tok, "$"))
	}
	if len(kept) == 0 {
		return strings.TrimSpace(mention)
	}
	return strings.Join(kept, " ")
}
