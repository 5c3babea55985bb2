package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Emitter ordering violations. These indicate pipeline bugs, not runtime
// conditions, so callers generally treat them as fatal for the turn.
var (
	ErrNotStarted      = errors.New("events: emission before START")
	ErrAlreadyStarted  = errors.New("events: START emitted twice")
	ErrTerminated      = errors.New("events: emission after terminal event")
	ErrStreamNotClosed = errors.New("events: final stream still open")
)

// Emitter produces the event sequence for a single turn. The turn pipeline
// drives it from one goroutine, but FETCH reports arrive from concurrent
// upstream fan-outs, so all state is mutex-guarded and emission order is
// lock-acquisition order. Concurrent turns get their own Emitter.
type Emitter struct {
	sink   Sink
	turnID string

	mu      sync.Mutex
	seq     int
	started bool
	// terminal is set once FINAL_RESPONSE completes or ERROR is emitted.
	terminal  bool
	streaming bool
}

// NewEmitter creates an emitter for one turn. A zero turnID gets a fresh
// UUID so events remain correlatable even when the transport supplies none.
func NewEmitter(sink Sink, turnID string) *Emitter {
	if turnID == "" {
		turnID = uuid.NewString()
	}
	return &Emitter{sink: sink, turnID: turnID}
}

// TurnID returns the correlation ID stamped on every event.
func (e *Emitter) TurnID() string { return e.turnID }

// Terminated reports whether the terminal event has been emitted.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

// emit stamps and delivers one event. Callers hold e.mu, which also
// serializes sink writes.
func (e *Emitter) emit(ev Event) error {
	ev.TurnID = e.turnID
	ev.Seq = e.seq
	ev.Timestamp = time.Now().UTC()
	e.seq++
	return e.sink.Emit(ev)
}

// Start emits the mandatory first event.
func (e *Emitter) Start(msg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	if e.terminal {
		return ErrTerminated
	}
	e.started = true
	return e.emit(Event{Kind: KindStart, Text: msg})
}

func (e *Emitter) checkMid() error {
	if !e.started {
		return ErrNotStarted
	}
	if e.terminal {
		return ErrTerminated
	}
	if e.streaming {
		return ErrStreamNotClosed
	}
	return nil
}

// Fetch reports an upstream network call that is about to be issued.
func (e *Emitter) Fetch(what string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMid(); err != nil {
		return err
	}
	return e.emit(Event{Kind: KindFetch, Text: what})
}

// Progress reports done/total counters for a multi-step operation.
func (e *Emitter) Progress(done, total int, extra map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMid(); err != nil {
		return err
	}
	return e.emit(Event{Kind: KindProgress, Payload: ProgressPayload{Done: done, Total: total, Extra: extra}})
}

// Sources discloses the raw upstream payload that informed the response.
// A SOURCES event is immutable once emitted; there is no correction event.
func (e *Emitter) Sources(provider string, typ SourceType, data json.RawMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMid(); err != nil {
		return err
	}
	return e.emit(Event{Kind: KindSources, Payload: SourcesPayload{Provider: provider, Type: typ, Data: data}})
}

// Metrics emits a free-form metrics map.
func (e *Emitter) Metrics(metrics map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMid(); err != nil {
		return err
	}
	return e.emit(Event{Kind: KindMetrics, Payload: metrics})
}

// FinalBlock emits the whole response as one FINAL_RESPONSE and seals the
// turn.
func (e *Emitter) FinalBlock(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMid(); err != nil {
		return err
	}
	e.terminal = true
	return e.emit(Event{Kind: KindFinalResponse, Text: text, StreamDone: true})
}

// Fail emits the terminal ERROR event. It is valid even before START so a
// turn that dies during setup still terminates its stream correctly, and it
// is mutually exclusive with FINAL_RESPONSE.
func (e *Emitter) Fail(message string, code int, details map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return ErrTerminated
	}
	e.started = true
	e.terminal = true
	if details == nil {
		details = map[string]any{}
	}
	return e.emit(Event{Kind: KindError, Payload: ErrorPayload{Message: message, ErrorCode: code, Details: details}})
}

// FinalStream opens the streamed form of FINAL_RESPONSE: repeated fragments
// followed by Complete. No other event kind may be emitted while the stream
// is open.
func (e *Emitter) FinalStream() (*Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMid(); err != nil {
		return nil, err
	}
	e.streaming = true
	return &Stream{emitter: e}, nil
}

// Stream emits FINAL_RESPONSE fragments for a streamed LLM reply.
// Cancellation is simply ceasing to call Chunk; Complete seals the turn.
type Stream struct {
	emitter *Emitter
	closed  bool
}

// Chunk emits one response fragment. Empty chunks are dropped.
func (s *Stream) Chunk(text string) error {
	s.emitter.mu.Lock()
	defer s.emitter.mu.Unlock()
	if s.closed {
		return ErrTerminated
	}
	if text == "" {
		return nil
	}
	return s.emitter.emit(Event{Kind: KindFinalResponse, Text: text})
}

// Complete emits the closing fragment and seals the turn.
func (s *Stream) Complete() error {
	s.emitter.mu.Lock()
	defer s.emitter.mu.Unlock()
	if s.closed {
		return ErrTerminated
	}
	s.closed = true
	s.emitter.streaming = false
	s.emitter.terminal = true
	return s.emitter.emit(Event{Kind: KindFinalResponse, StreamDone: true})
}
