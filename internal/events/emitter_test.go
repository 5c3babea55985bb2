package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterHappyPathOrdering(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, "turn-1")

	require.NoError(t, e.Start("Processing your request"))
	require.NoError(t, e.Fetch("Fetching trending coins"))
	require.NoError(t, e.Sources("coingecko", SourceTrending, json.RawMessage(`{"coins":[]}`)))
	require.NoError(t, e.Progress(1, 3, nil))
	require.NoError(t, e.Metrics(map[string]any{"sentiment_score": 63}))
	require.NoError(t, e.FinalBlock("done"))

	want := []Kind{KindStart, KindFetch, KindSources, KindProgress, KindMetrics, KindFinalResponse}
	if diff := cmp.Diff(want, rec.Kinds()); diff != "" {
		t.Fatalf("event order mismatch (-want +got):\n%s", diff)
	}

	evs := rec.Events()
	for i, ev := range evs {
		assert.Equal(t, i, ev.Seq, "seq must be strictly increasing from zero")
		assert.Equal(t, "turn-1", ev.TurnID)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.True(t, evs[len(evs)-1].StreamDone)
}

func TestEmitterRejectsEmissionBeforeStart(t *testing.T) {
	e := NewEmitter(&Recorder{}, "t")

	assert.ErrorIs(t, e.Fetch("x"), ErrNotStarted)
	assert.ErrorIs(t, e.Progress(0, 1, nil), ErrNotStarted)
	assert.ErrorIs(t, e.Sources("p", SourceNews, nil), ErrNotStarted)
	assert.ErrorIs(t, e.Metrics(nil), ErrNotStarted)
	assert.ErrorIs(t, e.FinalBlock("x"), ErrNotStarted)
}

func TestEmitterRejectsDoubleStart(t *testing.T) {
	e := NewEmitter(&Recorder{}, "t")
	require.NoError(t, e.Start("hi"))
	assert.ErrorIs(t, e.Start("again"), ErrAlreadyStarted)
}

func TestEmitterNothingAfterTerminal(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, "t")
	require.NoError(t, e.Start("hi"))
	require.NoError(t, e.FinalBlock("bye"))
	require.True(t, e.Terminated())

	assert.ErrorIs(t, e.Fetch("x"), ErrTerminated)
	assert.ErrorIs(t, e.Sources("p", SourceCoinList, nil), ErrTerminated)
	assert.ErrorIs(t, e.FinalBlock("x"), ErrTerminated)
	assert.ErrorIs(t, e.Fail("x", 500, nil), ErrTerminated)
	assert.Len(t, rec.Events(), 2, "no event may slip out after the terminal")
}

func TestEmitterFailBeforeStart(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, "t")

	require.NoError(t, e.Fail("setup exploded", 500, nil))
	require.True(t, e.Terminated())

	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, KindError, evs[0].Kind)

	payload, ok := evs[0].Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "setup exploded", payload.Message)
	assert.Equal(t, 500, payload.ErrorCode)
	assert.NotNil(t, payload.Details, "details must marshal as {} rather than null")
}

func TestEmitterErrorAndFinalAreExclusive(t *testing.T) {
	e := NewEmitter(&Recorder{}, "t")
	require.NoError(t, e.Start("hi"))
	require.NoError(t, e.Fail("boom", 502, map[string]any{"provider": "coingecko"}))
	assert.ErrorIs(t, e.FinalBlock("late"), ErrTerminated)
}

func TestEmitterStreamedFinal(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, "t")
	require.NoError(t, e.Start("hi"))

	stream, err := e.FinalStream()
	require.NoError(t, err)

	require.NoError(t, stream.Chunk("Bitcoin is "))
	require.NoError(t, stream.Chunk(""), "empty chunks are dropped, not errors")
	require.NoError(t, stream.Chunk("trending up."))

	// Stream is exclusive: nothing else may interleave with fragments.
	assert.ErrorIs(t, e.Fetch("x"), ErrStreamNotClosed)
	assert.ErrorIs(t, e.Metrics(nil), ErrStreamNotClosed)

	require.NoError(t, stream.Complete())
	require.True(t, e.Terminated())
	assert.ErrorIs(t, stream.Chunk("late"), ErrTerminated)
	assert.ErrorIs(t, stream.Complete(), ErrTerminated)

	want := []Kind{KindStart, KindFinalResponse, KindFinalResponse, KindFinalResponse}
	if diff := cmp.Diff(want, rec.Kinds()); diff != "" {
		t.Fatalf("event order mismatch (-want +got):\n%s", diff)
	}

	evs := rec.Events()
	assert.Equal(t, "Bitcoin is ", evs[1].Text)
	assert.False(t, evs[1].StreamDone)
	assert.Equal(t, "", evs[3].Text)
	assert.True(t, evs[3].StreamDone)
}

func TestEmitterConcurrentFetchReports(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, "t")
	require.NoError(t, e.Start("hi"))

	// Upstream fan-outs report FETCH and PROGRESS from their own
	// goroutines while the turn goroutine owns the emitter.
	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, e.Fetch("Fetching coin details"))
				assert.NoError(t, e.Progress(i+1, perWorker, nil))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, e.FinalBlock("done"))

	evs := rec.Events()
	require.Len(t, evs, 1+workers*perWorker*2+1)
	for i, ev := range evs {
		assert.Equal(t, i, ev.Seq, "seq must stay gapless under concurrency")
	}
	assert.Equal(t, KindFinalResponse, evs[len(evs)-1].Kind)
}

func TestEmitterGeneratesTurnID(t *testing.T) {
	e := NewEmitter(&Recorder{}, "")
	assert.NotEmpty(t, e.TurnID())
}

func TestEmitterSinkErrorPropagates(t *testing.T) {
	dead := errors.New("consumer gone")
	sink := SinkFunc(func(Event) error { return dead })
	e := NewEmitter(sink, "t")
	assert.ErrorIs(t, e.Start("hi"), dead)
}

func TestEventWireMarshalling(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, "turn-9")
	require.NoError(t, e.Start("go"))
	require.NoError(t, e.Sources("cryptopanic", SourceNews, json.RawMessage(`{"results":[]}`)))

	raw, err := json.Marshal(rec.Events()[1])
	require.NoError(t, err)

	var decoded struct {
		Event   string `json:"event"`
		TurnID  string `json:"turn_id"`
		Seq     int    `json:"seq"`
		Payload struct {
			Provider string          `json:"provider"`
			Type     string          `json:"type"`
			Data     json.RawMessage `json:"data"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "SOURCES", decoded.Event)
	assert.Equal(t, "turn-9", decoded.TurnID)
	assert.Equal(t, 1, decoded.Seq)
	assert.Equal(t, "cryptopanic", decoded.Payload.Provider)
	assert.Equal(t, "news", decoded.Payload.Type)
	assert.JSONEq(t, `{"results":[]}`, string(decoded.Payload.Data))
}
