// Package agent wires the turn pipeline: classify the message, resolve
// coin references against session memory, fetch market data through the
// gateway, score sentiment, and stream the reply as ordered events.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Widiskel/skel-crypto-agent/internal/events"
	"github.com/Widiskel/skel-crypto-agent/internal/gateway"
	"github.com/Widiskel/skel-crypto-agent/internal/intent"
	"github.com/Widiskel/skel-crypto-agent/internal/llm"
	"github.com/Widiskel/skel-crypto-agent/internal/market"
	"github.com/Widiskel/skel-crypto-agent/internal/providers"
	"github.com/Widiskel/skel-crypto-agent/internal/resolver"
	"github.com/Widiskel/skel-crypto-agent/internal/sentiment"
	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

// Error codes carried on ERROR events.
const (
	CodeInternal    = 500
	CodeUpstream    = 502
	CodeRateLimited = 429
)

// historyWindow bounds how many history messages are sent to the LLM.
const historyWindow = 12

// Options tune the pipeline.
type Options struct {
	// DetailFanout bounds concurrent coin-detail fetches.
	DetailFanout int
	// NewsLimit bounds news items per analysis.
	NewsLimit int
}

// DefaultOptions returns the standard pipeline tuning.
func DefaultOptions() Options {
	return Options{DetailFanout: 3, NewsLimit: 10}
}

// Agent is the conversational pipeline for one deployment. It is safe
// for concurrent turns; per-session state lives in the session store.
type Agent struct {
	opts       Options
	store      *session.Store
	classifier intent.Classifier
	resolver   *resolver.Resolver
	llm        llm.Client

	coingecko   *providers.CoinGecko
	cryptopanic *providers.CryptoPanic
	tavily      *providers.Tavily
	cryptorank  *providers.CryptoRank
	chainlist   *providers.Chainlist
	gas         *providers.GasService
	prices      *providers.PriceService

	logger *zap.Logger
}

// Deps carries the collaborators New needs.
type Deps struct {
	Store      *session.Store
	Classifier intent.Classifier
	Resolver   *resolver.Resolver
	LLM        llm.Client

	CoinGecko   *providers.CoinGecko
	CryptoPanic *providers.CryptoPanic
	Tavily      *providers.Tavily
	CryptoRank  *providers.CryptoRank
	Chainlist   *providers.Chainlist
	Gas         *providers.GasService
	Prices      *providers.PriceService
}

// New assembles the agent.
func New(deps Deps, opts Options, logger *zap.Logger) *Agent {
	if opts.DetailFanout <= 0 {
		opts.DetailFanout = 3
	}
	if opts.NewsLimit <= 0 {
		opts.NewsLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		opts:        opts,
		store:       deps.Store,
		classifier:  deps.Classifier,
		resolver:    deps.Resolver,
		llm:         deps.LLM,
		coingecko:   deps.CoinGecko,
		cryptopanic: deps.CryptoPanic,
		tavily:      deps.Tavily,
		cryptorank:  deps.CryptoRank,
		chainlist:   deps.Chainlist,
		gas:         deps.Gas,
		prices:      deps.Prices,
		logger:      logger.Named("agent"),
	}
}

// Reset clears a session's history and trending memory.
func (a *Agent) Reset(activityID string) { a.store.Reset(activityID) }

// HandleTurn processes one user message and emits the event sequence for
// it. Every path terminates the emitter: a reply, a clarifying question,
// or a structured error.
func (a *Agent) HandleTurn(ctx context.Context, activityID, text string, sink events.Sink) error {
	emitter := events.NewEmitter(sink, "")

	text, langOverride := extractLanguage(text)
	if langOverride != "" {
		a.store.SetLanguage(activityID, langOverride)
	}
	lang := a.store.Language(activityID)

	if err := emitter.Start("Processing your request"); err != nil {
		return err
	}
	ctx = gateway.WithReporter(ctx, func(what string) {
		_ = emitter.Fetch(what)
	})

	history := a.store.History(activityID)
	a.store.AppendTurn(activityID, session.Turn{Role: session.RoleUser, Content: text, At: time.Now()})

	label, err := a.classifier.Classify(ctx, history, text)
	if err != nil {
		// The classifier owns its heuristic fallback; an error here
		// means even that failed, which leaves general chat.
		a.logger.Warn("classification failed", zap.Error(err))
		label = intent.Intent{Kind: intent.GeneralChat}
	}
	a.logger.Info("turn classified",
		zap.String("activity_id", activityID),
		zap.String("kind", string(label.Kind)),
		zap.String("lang", lang))

	var final string
	switch label.Kind {
	case intent.Trending:
		final, err = a.handleTrending(ctx, activityID, lang, emitter)
	case intent.CoinAnalysis:
		final, err = a.handleAnalysis(ctx, activityID, lang, label.Mention, emitter)
	case intent.Conversion:
		final, err = a.handleConversion(ctx, lang, label, emitter)
	case intent.ProjectLookup:
		final, err = a.handleProject(ctx, lang, label.Project, emitter)
	case intent.GasLookup:
		final, err = a.handleGas(ctx, lang, label, emitter)
	case intent.RpcLookup:
		final, err = a.handleRPC(ctx, lang, label.Network, emitter)
	case intent.Unclear:
		final, err = a.finishBlock(emitter, fill(msg(lang, "clarify_reference"),
			map[string]string{"mention": vagueMention(lang)}))
	default:
		final, err = a.handleChat(ctx, activityID, lang, text, emitter)
	}

	if err != nil {
		a.failTurn(emitter, lang, err)
		return nil
	}
	if final != "" {
		a.store.AppendTurn(activityID, session.Turn{Role: session.RoleAssistant, Content: final, At: time.Now()})
	}
	return nil
}

// failTurn maps an error onto the ERROR taxonomy and terminates the
// emitter. Nothing here panics the turn loop; workers survive failures.
func (a *Agent) failTurn(emitter *events.Emitter, lang string, err error) {
	if emitter.Terminated() {
		return
	}
	var rle *gateway.RateLimitError
	switch {
	case errors.As(err, &rle):
		retry := rle.RetryAfter
		if retry <= 0 {
			retry = time.Minute
		}
		_ = emitter.Fail(
			fill(msg(lang, "rate_limited"), map[string]string{"retry": retry.Round(time.Second).String()}),
			CodeRateLimited,
			map[string]any{"provider": rle.Provider, "retry_after_seconds": int(retry.Seconds())},
		)
	case errors.Is(err, gateway.ErrUpstream) || errors.Is(err, gateway.ErrTransient):
		_ = emitter.Fail(msg(lang, "upstream_error"), CodeUpstream, map[string]any{"cause": err.Error()})
	default:
		a.logger.Error("turn failed", zap.Error(err))
		_ = emitter.Fail(msg(lang, "llm_error"), CodeInternal, map[string]any{"cause": err.Error()})
	}
}

// finishBlock emits text as the single FINAL_RESPONSE and returns it for
// history.
func (a *Agent) finishBlock(emitter *events.Emitter, text string) (string, error) {
	if err := emitter.FinalBlock(text); err != nil {
		return "", err
	}
	return text, nil
}

// streamWithNarrative emits lead as the first FINAL_RESPONSE fragment,
// then streams an LLM narrative for the given prompt. LLM failure
// degrades to the lead alone rather than erroring the turn.
func (a *Agent) streamWithNarrative(ctx context.Context, lead string, messages []llm.Message, emitter *events.Emitter) (string, error) {
	stream, err := emitter.FinalStream()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(lead)
	if err := stream.Chunk(lead); err != nil {
		return "", err
	}

	if a.llm != nil && len(messages) > 0 {
		narrErr := a.llm.CompleteStream(ctx, messages, func(chunk string) error {
			b.WriteString(chunk)
			return stream.Chunk(chunk)
		})
		if narrErr != nil {
			a.logger.Warn("narrative generation failed", zap.Error(narrErr))
		}
	}
	if err := stream.Complete(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (a *Agent) handleTrending(ctx context.Context, activityID, lang string, emitter *events.Emitter) (string, error) {
	snapshot, err := a.coingecko.Trending(ctx)
	if err != nil {
		return "", err
	}
	a.store.SetTrendingMemory(activityID, session.NewTrendingMemory(snapshot.Coins, time.Now()))
	if err := emitter.Sources("coingecko", events.SourceTrending, snapshot.Raw); err != nil {
		return "", err
	}

	lead := msg(lang, "trending_intro") + "\n" + renderTrendingTable(snapshot.Coins) + "\n"
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: languageInstruction(lang)},
		{Role: llm.RoleSystem, Content: trendingPrompt},
		{Role: llm.RoleUser, Content: "TRENDING_DATA:\n" + summarizeCoins(snapshot.Coins)},
	}
	return a.streamWithNarrative(ctx, lead, messages, emitter)
}

func (a *Agent) handleAnalysis(ctx context.Context, activityID, lang, mention string, emitter *events.Emitter) (string, error) {
	if strings.TrimSpace(mention) == "" {
		return a.finishBlock(emitter, fill(msg(lang, "clarify_reference"),
			map[string]string{"mention": vagueMention(lang)}))
	}

	resolved, err := a.resolver.Resolve(ctx, activityID, mention)
	if errors.Is(err, resolver.ErrUnresolvable) {
		return a.finishBlock(emitter, fill(msg(lang, "clarify_reference"),
			map[string]string{"mention": htmlCode(mention)}))
	}
	if err != nil {
		return "", err
	}
	if resolved.Source == resolver.SourceSearchFallback && len(resolved.Raw) > 0 {
		if err := emitter.Sources("coingecko", events.SourceCoinList, resolved.Raw); err != nil {
			return "", err
		}
	}

	details, err := a.fetchDetails(ctx, resolved.CoinIDs, emitter)
	if err != nil {
		return "", err
	}
	if len(details) == 0 {
		return a.finishBlock(emitter, fill(msg(lang, "analysis_error"),
			map[string]string{"mention": htmlCode(mention)}))
	}

	primary := details[0]
	var counts *market.NewsCounts
	if a.cryptopanic != nil && a.cryptopanic.Enabled() {
		news, counted, newsErr := a.fetchNews(ctx, primary.Symbol)
		if newsErr != nil {
			a.logger.Warn("news fetch failed", zap.String("symbol", primary.Symbol), zap.Error(newsErr))
		} else {
			if len(news.Raw) > 0 {
				if err := emitter.Sources("cryptopanic", events.SourceNews, news.Raw); err != nil {
					return "", err
				}
			}
			counts = counted
		}
	}

	score := sentiment.Score(primary.Momentum(), counts)
	metrics := map[string]any{
		"coin":            primary.ID,
		"sentiment_score": score,
		"sentiment_label": sentiment.Label(score),
	}
	if counts != nil {
		metrics["news_bullish"] = counts.Bullish
		metrics["news_bearish"] = counts.Bearish
	}
	if err := emitter.Metrics(metrics); err != nil {
		return "", err
	}

	lead := renderAnalysisTable(details) + "\n" + renderSentimentLine(primary, counts) + "\n"
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: languageInstruction(lang)},
		{Role: llm.RoleSystem, Content: analysisPrompt},
		{Role: llm.RoleUser, Content: analysisContext(details, counts, score)},
	}
	return a.streamWithNarrative(ctx, lead, messages, emitter)
}

// fetchDetails loads coin details concurrently with bounded fanout,
// emitting PROGRESS and per-coin SOURCES in completion order.
func (a *Agent) fetchDetails(ctx context.Context, coinIDs []string, emitter *events.Emitter) ([]market.CoinDetails, error) {
	type outcome struct {
		result *providers.CoinDetailsResult
		err    error
	}
	results := make(chan outcome, len(coinIDs))

	g, fanCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.DetailFanout)
	for _, coinID := range coinIDs {
		g.Go(func() error {
			res, err := a.coingecko.CoinDetails(fanCtx, coinID)
			results <- outcome{result: res, err: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var details []market.CoinDetails
	var lastErr error
	done := 0
	total := len(coinIDs)
	for out := range results {
		done++
		if out.err != nil {
			lastErr = out.err
			continue
		}
		if err := emitter.Sources("coingecko", events.SourceCoinDetails, out.result.Raw); err != nil {
			return nil, err
		}
		if err := emitter.Progress(done, total, nil); err != nil {
			return nil, err
		}
		details = append(details, out.result.Details)
	}
	if len(details) == 0 && lastErr != nil {
		return nil, lastErr
	}
	// Restore request order; completion order depends on scheduling.
	ordered := make([]market.CoinDetails, 0, len(details))
	for _, coinID := range coinIDs {
		for _, d := range details {
			if d.ID == coinID {
				ordered = append(ordered, d)
				break
			}
		}
	}
	return ordered, nil
}

// fetchNews loads recent posts and vote counts for a symbol in parallel.
func (a *Agent) fetchNews(ctx context.Context, symbol string) (*providers.NewsResult, *market.NewsCounts, error) {
	var news *providers.NewsResult
	var counts market.NewsCounts
	g, fanCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		news, err = a.cryptopanic.News(fanCtx, symbol, a.opts.NewsLimit)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = a.cryptopanic.BullBearCounts(fanCtx, symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return news, &counts, nil
}

func (a *Agent) handleConversion(ctx context.Context, lang string, label intent.Intent, emitter *events.Emitter) (string, error) {
	quotes, err := a.prices.GetPrices(ctx, label.Base, label.Quote, 3)
	if err != nil {
		return "", err
	}
	if len(quotes) == 0 {
		return a.finishBlock(emitter, fill(msg(lang, "conversion_missing"),
			map[string]string{"base": label.Base, "quote": label.Quote}))
	}

	args := map[string]string{
		"amount": formatFloat(label.Amount, 8),
		"base":   label.Base,
		"quote":  label.Quote,
	}
	introKey := "conversion_intro"
	if len(quotes) > 1 {
		introKey = "conversion_header"
	}
	lines := []string{fill(msg(lang, introKey), args), ""}
	for _, quote := range quotes {
		lines = append(lines, renderConversionLine(lang, label.Amount, label.Base, label.Quote, quote))
	}
	return a.finishBlock(emitter, strings.Join(lines, "\n"))
}

func (a *Agent) handleProject(ctx context.Context, lang, project string, emitter *events.Emitter) (string, error) {
	if a.cryptorank == nil || !a.cryptorank.Enabled() {
		return a.finishBlock(emitter, msg(lang, "project_not_configured"))
	}
	report, err := a.cryptorank.Analyze(ctx, project)
	if err != nil {
		if errors.Is(err, gateway.ErrRateLimited) || errors.Is(err, gateway.ErrUpstream) {
			return "", err
		}
		a.logger.Warn("project analysis failed", zap.String("project", project), zap.Error(err))
		return a.finishBlock(emitter, msg(lang, "project_error"))
	}

	lead := fill(msg(lang, "project_start"), map[string]string{"project": htmlBold(report.Currency.Name)}) + "\n"
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: languageInstruction(lang)},
		{Role: llm.RoleSystem, Content: projectPrompt},
		{Role: llm.RoleUser, Content: "PROJECT_DATA:\n" + projectContext(report)},
	}
	return a.streamWithNarrative(ctx, lead, messages, emitter)
}

func (a *Agent) handleGas(ctx context.Context, lang string, label intent.Intent, emitter *events.Emitter) (string, error) {
	quote, err := a.gas.Quote(ctx, label.Network, label.Currency)
	if err != nil {
		return "", err
	}
	return a.finishBlock(emitter, renderGasResponse(quote))
}

func (a *Agent) handleRPC(ctx context.Context, lang, network string, emitter *events.Emitter) (string, error) {
	directory, err := a.chainlist.Directory(ctx)
	if err != nil {
		return "", err
	}
	query := strings.TrimSpace(network)
	if query == "" {
		query = "eth"
	}
	matches := directory.Search(query, 15)
	if len(matches) == 0 {
		return a.finishBlock(emitter, fill(msg(lang, "rpc_not_found"),
			map[string]string{"network": htmlEscape(query)}))
	}
	return a.finishBlock(emitter, renderRPCResponse(query, matches))
}

func (a *Agent) handleChat(ctx context.Context, activityID, lang, text string, emitter *events.Emitter) (string, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: languageInstruction(lang)}}
	if webContext := a.searchContext(ctx, lang, text); webContext != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: webContext})
	}
	history := a.store.History(activityID)
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}

	stream, err := emitter.FinalStream()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	chatErr := a.llm.CompleteStream(ctx, messages, func(chunk string) error {
		b.WriteString(chunk)
		return stream.Chunk(chunk)
	})
	if chatErr != nil {
		a.logger.Warn("chat generation failed", zap.Error(chatErr))
		fallback := msg(lang, "llm_error")
		if b.Len() == 0 {
			if err := stream.Chunk(fallback); err != nil {
				return "", err
			}
			b.WriteString(fallback)
		}
	}
	if err := stream.Complete(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// searchContext builds a web-search context block for general chat when
// Tavily is available. Failures only cost the context.
func (a *Agent) searchContext(ctx context.Context, lang, text string) string {
	if a.tavily == nil || !a.tavily.Enabled() {
		return ""
	}
	knowledge, err := a.tavily.Search(ctx, text)
	if err != nil {
		a.logger.Debug("web search skipped", zap.Error(err))
		return ""
	}
	header := "Web search findings:"
	if lang == "ID" {
		header = "Hasil pencarian web:"
	}
	var b strings.Builder
	b.WriteString(header + "\n")
	if knowledge.Answer != "" {
		b.WriteString(knowledge.Answer + "\n")
	}
	for i, source := range knowledge.Sources {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "- %s (%s)\n", source.Title, source.URL)
	}
	return b.String()
}

// summarizeCoins compacts coin rows for LLM context.
func summarizeCoins(coins []market.CoinSummary) string {
	var b strings.Builder
	for i, coin := range coins {
		fmt.Fprintf(&b, "%d. %s (%s) rank=%d price_usd=%s change_24h=%s\n",
			i+1, coin.Name, coin.Symbol, coin.MarketCapRank,
			formatPrice(coin.PriceUSD), formatPercent(coin.Change24h))
	}
	return b.String()
}

// analysisContext compacts the fetched details and news counts for LLM
// context.
func analysisContext(details []market.CoinDetails, counts *market.NewsCounts, score int) string {
	var b strings.Builder
	b.WriteString("ANALYSIS_DATA:\n")
	for _, d := range details {
		fmt.Fprintf(&b, "%s (%s) rank=%d price_usd=%s 24h=%s 7d=%s 30d=%s market_cap=%.0f volume=%.0f\n",
			d.Name, d.Symbol, d.MarketCapRank, formatPrice(d.PriceUSD),
			formatPercent(d.Change24h), formatPercent(d.Change7d), formatPercent(d.Change30d),
			d.MarketCapUSD, d.TotalVolumeUSD)
		if d.Description != "" {
			fmt.Fprintf(&b, "about: %s\n", d.Description)
		}
	}
	if counts != nil {
		fmt.Fprintf(&b, "news_bullish=%d news_bearish=%d\n", counts.Bullish, counts.Bearish)
	}
	fmt.Fprintf(&b, "sentiment_score=%d (%s)\n", score, sentiment.Label(score))
	return b.String()
}

// projectContext serializes the CryptoRank report for LLM context.
func projectContext(report *providers.ProjectReport) string {
	payload := map[string]any{
		"name":   report.Currency.Name,
		"symbol": report.Currency.Symbol,
		"key":    report.Currency.Key,
	}
	if len(report.Overview) > 0 {
		payload["overview"] = json.RawMessage(report.Overview)
	}
	if len(report.Metadata) > 0 {
		payload["metadata"] = json.RawMessage(report.Metadata)
	}
	if len(report.Funding) > 0 {
		payload["funding_rounds"] = json.RawMessage(report.Funding)
	}
	if len(report.Restricted) > 0 {
		payload["plan_notes"] = report.Restricted
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return report.Currency.Name + " (" + report.Currency.Symbol + ")"
	}
	return string(encoded)
}
