// Package server exposes the agent over HTTP: one POST endpoint that
// streams the turn's events as server-sent events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Widiskel/skel-crypto-agent/internal/agent"
	"github.com/Widiskel/skel-crypto-agent/internal/events"
)

// Config tunes the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the standard server settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server streams agent turns over SSE.
type Server struct {
	config Config
	agent  *agent.Agent
	logger *zap.Logger
	http   *http.Server
}

// New builds the server around an assembled agent.
func New(config Config, ag *agent.Agent, logger *zap.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{config: config, agent: ag, logger: logger.Named("server")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /assist", s.handleAssist)
	mux.HandleFunc("POST /sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:        config.Addr,
		Handler:     mux,
		ReadTimeout: config.ReadTimeout,
		// No WriteTimeout: SSE responses stay open for the whole turn.
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.config.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

type assistRequest struct {
	ActivityID string `json:"activity_id"`
	Text       string `json:"text"`
}

// sseSink writes events as SSE frames. Once a write fails (client gone)
// it swallows further events so the turn can still finish its fetches
// and fill the cache.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	dead    bool
}

func (s *sseSink) Emit(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return nil
	}
	encoded, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", encoded); err != nil {
		s.dead = true
		return nil
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	var req assistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActivityID == "" || req.Text == "" {
		http.Error(w, "activity_id and text are required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Detach from the client's context: a disconnect only discards
	// emission, in-flight upstream fetches complete and warm the cache.
	turnCtx := context.WithoutCancel(r.Context())
	sink := &sseSink{w: w, flusher: flusher}
	if err := s.agent.HandleTurn(turnCtx, req.ActivityID, req.Text, sink); err != nil {
		s.logger.Error("turn aborted", zap.String("activity_id", req.ActivityID), zap.Error(err))
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	s.agent.Reset(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
