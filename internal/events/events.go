// Package events defines the ordered, typed event stream emitted while a
// turn is processed. The transport (SSE, tests) consumes events through the
// Sink interface; the pipeline produces them through a per-turn Emitter that
// enforces the ordering contract: START first, exactly one terminal
// FINAL_RESPONSE/ERROR, nothing after the terminal.
package events

import (
	"encoding/json"
	"time"
)

// Kind identifies an event type on the wire.
type Kind string

const (
	KindStart         Kind = "START"
	KindFetch         Kind = "FETCH"
	KindProgress      Kind = "PROGRESS"
	KindSources       Kind = "SOURCES"
	KindMetrics       Kind = "METRICS"
	KindFinalResponse Kind = "FINAL_RESPONSE"
	KindError         Kind = "ERROR"
)

// SourceType tags a SOURCES event with the kind of upstream payload it
// discloses. The set is closed.
type SourceType string

const (
	SourceTrending    SourceType = "trending"
	SourceCoinList    SourceType = "coin_list"
	SourceCoinDetails SourceType = "coin_details"
	SourceNews        SourceType = "news"
)

// Event is the envelope every emission is wrapped in. Seq is strictly
// increasing within a turn and reflects causal order.
type Event struct {
	Kind      Kind      `json:"event"`
	TurnID    string    `json:"turn_id"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"ts"`

	// Text carries START/FETCH messages and FINAL_RESPONSE fragments.
	Text string `json:"text,omitempty"`

	// Payload carries the structured body of PROGRESS/SOURCES/METRICS/ERROR.
	Payload any `json:"payload,omitempty"`

	// StreamDone marks the closing FINAL_RESPONSE fragment of a streamed
	// response. Block responses carry it on their single fragment.
	StreamDone bool `json:"stream_done,omitempty"`
}

// SourcesPayload is the SOURCES wire schema. Data is the raw upstream JSON,
// passed through untouched.
type SourcesPayload struct {
	Provider string          `json:"provider"`
	Type     SourceType      `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// ErrorPayload is the ERROR wire schema.
type ErrorPayload struct {
	Message   string         `json:"message"`
	ErrorCode int            `json:"error_code"`
	Details   map[string]any `json:"details"`
}

// ProgressPayload is the PROGRESS wire schema.
type ProgressPayload struct {
	Done  int            `json:"done"`
	Total int            `json:"total"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Sink receives events in emission order. Implementations must not reorder
// or batch; a returned error means the consumer is gone and further events
// for the turn may be discarded.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) error

// Emit implements Sink.
func (f SinkFunc) Emit(ev Event) error { return f(ev) }
