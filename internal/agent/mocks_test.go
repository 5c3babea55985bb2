package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/intent"
	"github.com/Widiskel/skel-crypto-agent/internal/llm"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
	"github.com/Widiskel/skel-crypto-agent/internal/providers"
	"github.com/Widiskel/skel-crypto-agent/internal/resolver"
	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

// fakeClassifier returns a fixed label and records what it saw.
type fakeClassifier struct {
	Label intent.Intent
	Err   error

	Calls       int
	LastText    string
	LastHistory []session.Turn
}

func (f *fakeClassifier) Classify(_ context.Context, history []session.Turn, text string) (intent.Intent, error) {
	f.Calls++
	f.LastText = text
	f.LastHistory = history
	if f.Err != nil {
		return intent.Intent{}, f.Err
	}
	return f.Label, nil
}

// fakeLLM streams canned chunks and records the messages it was given.
type fakeLLM struct {
	Chunks []string
	Err    error

	Calls        int
	LastMessages []llm.Message
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	var b strings.Builder
	err := f.CompleteStream(ctx, messages, func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	return b.String(), err
}

func (f *fakeLLM) CompleteStream(_ context.Context, messages []llm.Message, fn func(string) error) error {
	f.Calls++
	f.LastMessages = messages
	if f.Err != nil {
		return f.Err
	}
	for _, chunk := range f.Chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// fakePriceSource serves fixed quotes for the conversion flow.
type fakePriceSource struct {
	quotes []market.PriceQuote
}

func (f *fakePriceSource) Name() string { return "Binance" }

func (f *fakePriceSource) Quotes(context.Context, string, string, int) ([]market.PriceQuote, error) {
	return f.quotes, nil
}

// harness assembles an agent whose market providers all point at one
// httptest server. The gateway is fresh per harness so caches never leak
// between tests.
type harness struct {
	agent      *Agent
	store      *session.Store
	classifier *fakeClassifier
	llm        *fakeLLM
	server     *httptest.Server
}

type harnessOptions struct {
	label           intent.Intent
	classifierErr   error
	llmChunks       []string
	llmErr          error
	cryptopanicAuth string
	quotes          []market.PriceQuote
}

func newHarness(t *testing.T, handler http.Handler, opts harnessOptions) *harness {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw := gateway.New(gateway.Options{MaxRetries: 0, BackoffBase: 1}, zap.NewNop())
	store := session.NewStore(session.DefaultOptions(), zap.NewNop())

	coingecko := providers.NewCoinGeckoWithConfig(providers.CoinGeckoConfig{
		BaseURL: server.URL,
	}, gw, zap.NewNop())
	cryptopanic := providers.NewCryptoPanicWithConfig(providers.CryptoPanicConfig{
		BaseURL:  server.URL + "/posts/",
		APIToken: opts.cryptopanicAuth,
	}, gw, zap.NewNop())
	chainlist := providers.NewChainlistWithConfig(providers.ChainlistConfig{
		URL: server.URL + "/rpcs.json",
	}, gw, zap.NewNop())

	var prices *providers.PriceService
	if len(opts.quotes) > 0 {
		prices = providers.NewPriceService(
			[]providers.PriceSource{&fakePriceSource{quotes: opts.quotes}}, nil, zap.NewNop())
	}

	classifier := &fakeClassifier{Label: opts.label, Err: opts.classifierErr}
	model := &fakeLLM{Chunks: opts.llmChunks, Err: opts.llmErr}

	ag := New(Deps{
		Store:       store,
		Classifier:  classifier,
		Resolver:    resolver.New(store, coingecko, 0, zap.NewNop()),
		LLM:         model,
		CoinGecko:   coingecko,
		CryptoPanic: cryptopanic,
		Chainlist:   chainlist,
		Prices:      prices,
	}, DefaultOptions(), zap.NewNop())

	return &harness{agent: ag, store: store, classifier: classifier, llm: model, server: server}
}
