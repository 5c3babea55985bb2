package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, text string) Intent {
	t.Helper()
	it, err := NewHeuristicClassifier().Classify(context.Background(), nil, text)
	require.NoError(t, err)
	return it
}

func TestHeuristicTrending(t *testing.T) {
	for _, text := range []string{
		"what's trending today?",
		"show me the trend",
		"coin apa yang lagi tren?",
		"top coins right now",
	} {
		assert.Equal(t, Trending, classify(t, text).Kind, "text %q", text)
	}
}

func TestHeuristicFollowUps(t *testing.T) {
	for _, text := range []string{
		"number 3",
		"nomor 3",
		"#2",
		"the first one",
		"gimana yang kedua?",
	} {
		it := classify(t, text)
		assert.Equal(t, CoinAnalysis, it.Kind, "text %q", text)
		assert.Equal(t, text, it.Mention, "the resolver gets the raw text")
	}
}

func TestHeuristicAnalysisVerbs(t *testing.T) {
	tests := map[string]string{
		"analyze BTC":       "BTC",
		"analisa sui":       "sui",
		"check pepe please": "pepe please",
	}
	for text, mention := range tests {
		it := classify(t, text)
		assert.Equal(t, CoinAnalysis, it.Kind, "text %q", text)
		assert.Equal(t, mention, it.Mention, "text %q", text)
	}
}

func TestHeuristicTickers(t *testing.T) {
	it := classify(t, "what do you think about $doge today")
	assert.Equal(t, CoinAnalysis, it.Kind)
	assert.Equal(t, "doge", it.Mention)

	it = classify(t, "SUI")
	assert.Equal(t, CoinAnalysis, it.Kind)
	assert.Equal(t, "SUI", it.Mention)

	// Bare tickers are case-sensitive so ordinary words stay chat.
	assert.Equal(t, GeneralChat, classify(t, "sure").Kind)
	assert.Equal(t, GeneralChat, classify(t, "ok").Kind)
}

func TestHeuristicCommands(t *testing.T) {
	it := classify(t, "[PROJECT] Ethereum")
	assert.Equal(t, ProjectLookup, it.Kind)
	assert.Equal(t, "Ethereum", it.Project)

	it = classify(t, "[GAS] base usd")
	assert.Equal(t, GasLookup, it.Kind)
	assert.Equal(t, "base", it.Network)
	assert.Equal(t, "usd", it.Currency)

	it = classify(t, `[GAS] {"network":"ethereum","currency":"idr"}`)
	assert.Equal(t, GasLookup, it.Kind)
	assert.Equal(t, "ethereum", it.Network)
	assert.Equal(t, "idr", it.Currency)

	it = classify(t, "[RPC] polygon")
	assert.Equal(t, RpcLookup, it.Kind)
	assert.Equal(t, "polygon", it.Network)

	it = classify(t, "[GAS]")
	assert.Equal(t, GasLookup, it.Kind)
	assert.Empty(t, it.Network)
	assert.Empty(t, it.Currency)
}

func TestHeuristicConversion(t *testing.T) {
	it := classify(t, "2 ETH to IDR")
	require.Equal(t, Conversion, it.Kind)
	assert.Equal(t, 2.0, it.Amount)
	assert.Equal(t, "ETH", it.Base)
	assert.Equal(t, "IDR", it.Quote)

	it = classify(t, "1,5 btc usd")
	require.Equal(t, Conversion, it.Kind)
	assert.Equal(t, 1.5, it.Amount)
	assert.Equal(t, "BTC", it.Base)
	assert.Equal(t, "USD", it.Quote)

	// Missing quote defaults to USD.
	it = classify(t, "100 sol")
	require.Equal(t, Conversion, it.Kind)
	assert.Equal(t, "SOL", it.Base)
	assert.Equal(t, "USD", it.Quote)

	// Zero amounts are not a conversion.
	assert.NotEqual(t, Conversion, classify(t, "0 eth to usd").Kind)
}

func TestHeuristicFallbacks(t *testing.T) {
	assert.Equal(t, Unclear, classify(t, "   ").Kind)
	assert.Equal(t, GeneralChat, classify(t, "how are you doing today?").Kind)
	assert.Equal(t, GeneralChat, classify(t, "jelaskan apa itu blockchain").Kind)
}
