package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/llm"
	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

// ErrClassifier marks an LLM classification failure. The pipeline never
// sees it unless the heuristic fallback is also unavailable, which cannot
// happen in practice.
var ErrClassifier = errors.New("intent classification failed")

const classifierPrompt = `You are an expert intent classifier and entity extractor. Analyze the user's LATEST MESSAGE in the context of the conversation.
Available intents: "get_trending", "analyze_coin", "general_chat".
If the intent is "analyze_coin", extract the coin reference exactly as the user wrote it (a symbol like "SOL" from "$SOL", a name, or a positional reference like "nomor 3" or "the first one").
Respond ONLY with JSON: {"intent": "...", "entity": {"coin": "..."}} for analyze_coin, or {"intent": "...", "entity": null} otherwise. No extra text.`

// LLMClassifier asks the model to label the turn and falls back to the
// heuristic classifier on any failure or timeout. Command prefixes and
// conversions are matched locally first; they are exact grammars, so
// spending a model call on them would only add latency and ambiguity.
type LLMClassifier struct {
	client   llm.Client
	fallback *HeuristicClassifier
	timeout  time.Duration
	logger   *zap.Logger
}

// NewLLMClassifier creates the production classifier.
func NewLLMClassifier(client llm.Client, timeout time.Duration, logger *zap.Logger) *LLMClassifier {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMClassifier{
		client:   client,
		fallback: NewHeuristicClassifier(),
		timeout:  timeout,
		logger:   logger.Named("intent"),
	}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, history []session.Turn, text string) (Intent, error) {
	trimmed := strings.TrimSpace(text)
	if it, ok := parseCommand(trimmed); ok {
		return it, nil
	}
	if it, ok := parseConversion(trimmed); ok {
		return it, nil
	}

	it, err := c.classifyLLM(ctx, history, trimmed)
	if err != nil {
		c.logger.Warn("llm classification failed, using heuristics", zap.Error(err))
		return c.fallback.Classify(ctx, history, text)
	}
	return it, nil
}

type llmLabel struct {
	Intent string          `json:"intent"`
	Entity json.RawMessage `json:"entity"`
}

func (c *LLMClassifier) classifyLLM(ctx context.Context, history []session.Turn, text string) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llm.Message{{Role: llm.RoleSystem, Content: classifierPrompt}}
	// Only the last few turns matter for disambiguating follow-ups.
	start := len(history) - 6
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("LATEST MESSAGE: %q", text)})

	reply, err := c.client.Complete(ctx, messages)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrClassifier, err)
	}

	var label llmLabel
	if err := json.Unmarshal([]byte(stripFences(reply)), &label); err != nil {
		return Intent{}, fmt.Errorf("%w: bad JSON %q: %v", ErrClassifier, reply, err)
	}

	switch label.Intent {
	case "get_trending":
		return Intent{Kind: Trending}, nil
	case "analyze_coin":
		mention := extractMention(label.Entity)
		if mention == "" {
			mention = text
		}
		return Intent{Kind: CoinAnalysis, Mention: mention}, nil
	case "general_chat":
		return Intent{Kind: GeneralChat}, nil
	default:
		return Intent{}, fmt.Errorf("%w: unknown intent %q", ErrClassifier, label.Intent)
	}
}

// extractMention tolerates the entity shapes models actually emit: an
// object with "coin" or "symbol", or a bare string.
func extractMention(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Coin   string `json:"coin"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Coin != "" {
			return strings.TrimSpace(strings.TrimPrefix(obj.Coin, "$"))
		}
		if obj.Symbol != "" {
			return strings.TrimSpace(strings.TrimPrefix(obj.Symbol, "$"))
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(strings.TrimPrefix(s, "$"))
	}
	return ""
}

// stripFences removes markdown code fences models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
