package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCryptoPanicAgainst(t *testing.T, handler http.Handler) *CryptoPanic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultCryptoPanicConfig()
	cfg.BaseURL = srv.URL
	cfg.APIToken = "test-token"
	return NewCryptoPanicWithConfig(cfg, newTestGateway(), nil)
}

func TestNewsParsesPosts(t *testing.T) {
	cp := newCryptoPanicAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "test-token", q.Get("auth_token"))
		assert.Equal(t, "true", q.Get("public"))
		assert.Equal(t, "news", q.Get("kind"))
		assert.Equal(t, "SUI", q.Get("currencies"))
		fmt.Fprint(w, `{"count": 2, "results": [
		  {"id": 101, "title": "Sui mainnet upgrade", "url": "https://example.com/1",
		   "published_at": "2025-06-01T10:00:00Z",
		   "source": {"title": "CoinDesk"}, "instruments": [{"code": "sui"}]},
		  {"id": 102, "title": "Sui TVL climbs", "url": "https://example.com/2",
		   "published_at": "2025-06-01T09:00:00Z",
		   "source": {"title": "The Block"}, "instruments": []}
		]}`)
	}))

	res, err := cp.News(context.Background(), "sui", 10)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "101", res.Items[0].ID)
	assert.Equal(t, "Sui mainnet upgrade", res.Items[0].Title)
	assert.Equal(t, "CoinDesk", res.Items[0].Source)
	assert.Equal(t, []string{"SUI"}, res.Items[0].Currencies)
	assert.NotEmpty(t, res.Raw)
}

func TestNewsAppliesLimit(t *testing.T) {
	cp := newCryptoPanicAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"count": 3, "results": [
		  {"id": 1, "title": "a"}, {"id": 2, "title": "b"}, {"id": 3, "title": "c"}
		]}`)
	}))

	res, err := cp.News(context.Background(), "btc", 2)
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

func TestBullBearCounts(t *testing.T) {
	cp := newCryptoPanicAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("filter") {
		case "bullish":
			fmt.Fprint(w, `{"count": 7, "results": []}`)
		case "bearish":
			fmt.Fprint(w, `{"count": 0, "results": [{"id": 1, "title": "x"}, {"id": 2, "title": "y"}]}`)
		default:
			t.Fatalf("unexpected filter %q", r.URL.Query().Get("filter"))
		}
	}))

	counts, err := cp.BullBearCounts(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, 7, counts.Bullish)
	assert.Equal(t, 2, counts.Bearish, "a zero count falls back to the result length")
}

func TestCryptoPanicDisabledWithoutToken(t *testing.T) {
	cp := NewCryptoPanic(newTestGateway(), "", nil)
	assert.False(t, cp.Enabled())

	res, err := cp.News(context.Background(), "btc", 5)
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	counts, err := cp.BullBearCounts(context.Background(), "btc")
	require.NoError(t, err)
	assert.Zero(t, counts.Bullish)
	assert.Zero(t, counts.Bearish)
}
