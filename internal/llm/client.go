// Package llm provides the chat-completion client used for generation and
// intent classification. The backend is any OpenAI-compatible completions
// API; the default configuration targets Fireworks.
package llm

import "context"

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used in completion requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client defines the completion capability the pipeline depends on. The
// streamed form delivers ordered deltas through the callback; returning an
// error from the callback cancels consumption.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	CompleteStream(ctx context.Context, messages []Message, fn func(chunk string) error) error
}
