package intent

import (
	"context"

	"github.com/Widiskel/skel-crypto-agent/internal/llm"
)

// fakeLLM serves canned completions and records the messages it saw.
type fakeLLM struct {
	CompleteFunc func(ctx context.Context, messages []llm.Message) (string, error)

	Calls    int
	Messages []llm.Message
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.Calls++
	f.Messages = messages
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, messages)
	}
	return "", nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, messages []llm.Message, fn func(string) error) error {
	reply, err := f.Complete(ctx, messages)
	if err != nil {
		return err
	}
	return fn(reply)
}
