package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Widiskel/skel-crypto-agent/internal/llm"
	"github.com/Widiskel/skel-crypto-agent/internal/session"
)

func cannedReply(reply string) func(context.Context, []llm.Message) (string, error) {
	return func(context.Context, []llm.Message) (string, error) {
		return reply, nil
	}
}

func TestLLMClassifierLabels(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Kind
		mention string
	}{
		{
			name:  "trending",
			reply: `{"intent": "get_trending", "entity": null}`,
			want:  Trending,
		},
		{
			name:    "analyze with coin entity",
			reply:   `{"intent": "analyze_coin", "entity": {"coin": "$SOL"}}`,
			want:    CoinAnalysis,
			mention: "SOL",
		},
		{
			name:    "analyze with bare string entity",
			reply:   `{"intent": "analyze_coin", "entity": "nomor 3"}`,
			want:    CoinAnalysis,
			mention: "nomor 3",
		},
		{
			name:  "general chat",
			reply: `{"intent": "general_chat", "entity": null}`,
			want:  GeneralChat,
		},
		{
			name:    "fenced JSON is tolerated",
			reply:   "```json\n{\"intent\": \"analyze_coin\", \"entity\": {\"symbol\": \"BTC\"}}\n```",
			want:    CoinAnalysis,
			mention: "BTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(&fakeLLM{CompleteFunc: cannedReply(tt.reply)}, time.Second, nil)
			it, err := c.Classify(context.Background(), nil, "whatever")
			require.NoError(t, err)
			assert.Equal(t, tt.want, it.Kind)
			if tt.mention != "" {
				assert.Equal(t, tt.mention, it.Mention)
			}
		})
	}
}

func TestLLMClassifierAnalyzeWithoutEntityUsesText(t *testing.T) {
	c := NewLLMClassifier(&fakeLLM{
		CompleteFunc: cannedReply(`{"intent": "analyze_coin", "entity": null}`),
	}, time.Second, nil)

	it, err := c.Classify(context.Background(), nil, "how about pepe")
	require.NoError(t, err)
	assert.Equal(t, CoinAnalysis, it.Kind)
	assert.Equal(t, "how about pepe", it.Mention)
}

func TestLLMClassifierCommandsSkipTheModel(t *testing.T) {
	fake := &fakeLLM{CompleteFunc: cannedReply(`{"intent": "general_chat", "entity": null}`)}
	c := NewLLMClassifier(fake, time.Second, nil)

	it, err := c.Classify(context.Background(), nil, "[GAS] ethereum usd")
	require.NoError(t, err)
	assert.Equal(t, GasLookup, it.Kind)

	it, err = c.Classify(context.Background(), nil, "2 eth to idr")
	require.NoError(t, err)
	assert.Equal(t, Conversion, it.Kind)

	assert.Zero(t, fake.Calls, "exact grammars never spend a model call")
}

func TestLLMClassifierFallsBackOnError(t *testing.T) {
	fake := &fakeLLM{
		CompleteFunc: func(context.Context, []llm.Message) (string, error) {
			return "", errors.New("endpoint down")
		},
	}
	c := NewLLMClassifier(fake, time.Second, nil)

	it, err := c.Classify(context.Background(), nil, "analyze BTC")
	require.NoError(t, err, "heuristic fallback keeps classification alive")
	assert.Equal(t, CoinAnalysis, it.Kind)
	assert.Equal(t, "BTC", it.Mention)
	assert.Equal(t, 1, fake.Calls)
}

func TestLLMClassifierFallsBackOnGarbage(t *testing.T) {
	c := NewLLMClassifier(&fakeLLM{CompleteFunc: cannedReply("Sure! Here's my analysis...")}, time.Second, nil)

	it, err := c.Classify(context.Background(), nil, "what's trending?")
	require.NoError(t, err)
	assert.Equal(t, Trending, it.Kind)
}

func TestLLMClassifierHistoryWindow(t *testing.T) {
	fake := &fakeLLM{CompleteFunc: cannedReply(`{"intent": "general_chat", "entity": null}`)}
	c := NewLLMClassifier(fake, time.Second, nil)

	var history []session.Turn
	for i := 0; i < 20; i++ {
		history = append(history, session.Turn{Role: session.RoleUser, Content: "turn"})
	}

	_, err := c.Classify(context.Background(), history, "hello there")
	require.NoError(t, err)
	// System prompt + at most six history turns + the latest message.
	assert.Len(t, fake.Messages, 8)
}
