package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

// conversionPattern matches "2 ETH", "1.5 btc to idr", "100 usd eur".
var conversionPattern = regexp.MustCompile(
	`(?i)^\s*(\d+(?:[.,]\d+)?)\s*([A-Za-z0-9]{2,10})(?:\s*(?:to)?\s+([A-Za-z]{2,10}))?\s*$`)

// followUpPattern matches positional follow-ups ("number 3", "nomor 3",
// "#2", "the first one", "yang kedua").
var followUpPattern = regexp.MustCompile(
	`(?i)(?:\b(?:number|no\.?|nomor|urutan)\s*\d+\b|#\d+\b|\b(?:first|second|third|fourth|fifth|1st|2nd|3rd|[4-9]th|10th|pertama|kedua|ketiga|keempat|kelima)\b)`)

// dollarTicker matches an explicit $TICKER anywhere in the turn.
var dollarTicker = regexp.MustCompile(`(?i)(?:^|\s)\$([A-Za-z0-9]{2,10})\b`)

// bareTicker matches a lone upper-cased ticker ("SUI", "BTC").
// Deliberately case-sensitive so ordinary words do not look like coins.
var bareTicker = regexp.MustCompile(`^\s*([A-Z0-9]{2,6})\s*$`)

// analysisVerbs introduce a coin mention ("analyze BTC", "analisa sui").
var analysisVerbs = regexp.MustCompile(`(?i)^\s*(?:analyze|analyse|analisa|analisis|check|cek)\s+(.+)$`)

var trendingWords = []string{"trending", "trend", "tren", "hot coins", "top coins"}

// HeuristicClassifier is the deterministic fallback: recognized command
// prefixes and patterns, else general chat. It never fails.
type HeuristicClassifier struct{}

// NewHeuristicClassifier creates the fallback classifier.
func NewHeuristicClassifier() *HeuristicClassifier { return &HeuristicClassifier{} }

// Classify implements Classifier without any I/O.
func (h *HeuristicClassifier) Classify(_ context.Context, _ []session.Turn, text string) (Intent, error) {
	return h.classify(text), nil
}

func (h *HeuristicClassifier) classify(text string) Intent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Intent{Kind: Unclear}
	}

	if it, ok := parseCommand(trimmed); ok {
		return it
	}
	if it, ok := parseConversion(trimmed); ok {
		return it
	}

	lower := strings.ToLower(trimmed)
	for _, w := range trendingWords {
		if strings.Contains(lower, w) {
			return Intent{Kind: Trending}
		}
	}

	if followUpPattern.MatchString(trimmed) {
		return Intent{Kind: CoinAnalysis, Mention: trimmed}
	}
	if m := analysisVerbs.FindStringSubmatch(trimmed); m != nil {
		return Intent{Kind: CoinAnalysis, Mention: strings.TrimSpace(m[1])}
	}
	if m := dollarTicker.FindStringSubmatch(trimmed); m != nil {
		return Intent{Kind: CoinAnalysis, Mention: m[1]}
	}
	if m := bareTicker.FindStringSubmatch(trimmed); m != nil {
		return Intent{Kind: CoinAnalysis, Mention: m[1]}
	}

	return Intent{Kind: GeneralChat}
}

// parseCommand handles the [PROJECT]/[GAS]/[RPC] prefixes. The remainder
// may be plain words or a JSON object, matching the original clients.
func parseCommand(text string) (Intent, bool) {
	upper := strings.ToUpper(text)
	switch {
	case strings.HasPrefix(upper, "[PROJECT]"):
		return Intent{Kind: ProjectLookup, Project: strings.TrimSpace(text[len("[PROJECT]"):])}, true
	case strings.HasPrefix(upper, "[GAS]"):
		network, currency := parseNetworkArgs(strings.TrimSpace(text[len("[GAS]"):]), true)
		return Intent{Kind: GasLookup, Network: network, Currency: currency}, true
	case strings.HasPrefix(upper, "[RPC]"):
		network, _ := parseNetworkArgs(strings.TrimSpace(text[len("[RPC]"):]), false)
		return Intent{Kind: RpcLookup, Network: network}, true
	}
	return Intent{}, false
}

func parseNetworkArgs(remainder string, withCurrency bool) (network, currency string) {
	if remainder == "" {
		return "", ""
	}
	if strings.HasPrefix(remainder, "{") && strings.HasSuffix(remainder, "}") {
		var body struct {
			Network  string `json:"network"`
			Currency string `json:"currency"`
		}
		if err := json.Unmarshal([]byte(remainder), &body); err == nil {
			return body.Network, body.Currency
		}
	}
	cleaned := strings.ReplaceAll(remainder, "=", " ")
	parts := strings.Fields(cleaned)
	if len(parts) == 0 {
		return "", ""
	}
	if withCurrency && len(parts) >= 2 {
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
	return strings.Join(parts, " "), ""
}

func parseConversion(text string) (Intent, bool) {
	m := conversionPattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || amount <= 0 {
		return Intent{}, false
	}
	quote := m[3]
	if quote == "" {
		quote = "USD"
	}
	return Intent{
		Kind:   Conversion,
		Amount: amount,
		Base:   strings.ToUpper(m[2]),
		Quote:  strings.ToUpper(quote),
	}, true
}
