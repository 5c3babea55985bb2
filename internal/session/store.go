package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Role tags a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one history message.
type Turn struct {
	Role    Role
	Content string
	At      time.Time
}

// DefaultLanguage is used until a session states a preference.
const DefaultLanguage = "EN"

// Session is the state for one activity ID. All fields are guarded by the
// session's own mutex so concurrent turns for different sessions never
// contend; the store's mutex only guards the map itself.
type Session struct {
	mu          sync.Mutex
	turns       []Turn
	trending    *TrendingMemory
	language    string
	lastTouched time.Time
}

// Options tunes the store.
type Options struct {
	// MaxHistory is the retained message count. Oldest messages are
	// evicted first once the bound is exceeded.
	MaxHistory int
	// IdleTTL is how long an untouched session survives. Zero disables
	// idle eviction.
	IdleTTL time.Duration
	// SweepInterval is the background sweep cadence for StartSweeper.
	SweepInterval time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// DefaultOptions matches the original service: 20 exchange pairs, 30
// minute idle TTL, 5 minute sweeps.
func DefaultOptions() Options {
	return Options{
		MaxHistory:    40,
		IdleTTL:       30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Store maps activity IDs to sessions. Eviction is lazy: an expired
// session found on access is silently replaced by a fresh one, and an
// optional sweeper reclaims memory for sessions nobody touches again.
type Store struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates a session store.
func NewStore(opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 40
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		opts:     opts,
		logger:   logger.Named("session"),
		sessions: make(map[string]*Session),
	}
}

// getOrCreate returns the live session for the activity ID, replacing an
// idle-expired one with a fresh session. Access is never denied.
func (s *Store) getOrCreate(activityID string) *Session {
	now := s.opts.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[activityID]
	if ok && s.expired(sess, now) {
		s.logger.Debug("recreating idle-expired session", zap.String("activity_id", activityID))
		ok = false
	}
	if !ok {
		sess = &Session{language: DefaultLanguage, lastTouched: now}
		s.sessions[activityID] = sess
	}
	return sess
}

// expired must be called with either lock; it only reads lastTouched under
// the session lock.
func (s *Store) expired(sess *Session, now time.Time) bool {
	if s.opts.IdleTTL <= 0 {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return now.Sub(sess.lastTouched) > s.opts.IdleTTL
}

func (s *Store) withSession(activityID string, fn func(*Session)) {
	sess := s.getOrCreate(activityID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastTouched = s.opts.Now()
	fn(sess)
}

// AppendTurn appends a message and enforces the history bound: after
// insertion, the oldest messages are evicted until the count is within
// MaxHistory. FIFO, never random.
func (s *Store) AppendTurn(activityID string, turn Turn) {
	if turn.At.IsZero() {
		turn.At = s.opts.Now()
	}
	s.withSession(activityID, func(sess *Session) {
		sess.turns = append(sess.turns, turn)
		if excess := len(sess.turns) - s.opts.MaxHistory; excess > 0 {
			sess.turns = append([]Turn(nil), sess.turns[excess:]...)
		}
	})
}

// History returns a copy of the retained messages, oldest first.
func (s *Store) History(activityID string) []Turn {
	var out []Turn
	s.withSession(activityID, func(sess *Session) {
		out = make([]Turn, len(sess.turns))
		copy(out, sess.turns)
	})
	return out
}

// SetTrendingMemory atomically replaces the session's trending snapshot.
func (s *Store) SetTrendingMemory(activityID string, m *TrendingMemory) {
	s.withSession(activityID, func(sess *Session) {
		sess.trending = m
	})
}

// TrendingMemory returns the current snapshot, or nil when the session has
// not been shown a trending list yet.
func (s *Store) TrendingMemory(activityID string) *TrendingMemory {
	var m *TrendingMemory
	s.withSession(activityID, func(sess *Session) {
		m = sess.trending
	})
	return m
}

// Language returns the session's language preference.
func (s *Store) Language(activityID string) string {
	var lang string
	s.withSession(activityID, func(sess *Session) {
		lang = sess.language
	})
	return lang
}

// SetLanguage records the session's language preference.
func (s *Store) SetLanguage(activityID, lang string) {
	s.withSession(activityID, func(sess *Session) {
		sess.language = lang
	})
}

// Reset drops the session entirely.
func (s *Store) Reset(activityID string) {
	s.mu.Lock()
	delete(s.sessions, activityID)
	s.mu.Unlock()
}

// Len reports how many sessions are currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes every idle-expired session and returns how many were
// evicted.
func (s *Store) Sweep() int {
	now := s.opts.Now()
	s.mu.Lock()
	var victims []string
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			victims = append(victims, id)
		}
	}
	for _, id := range victims {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if len(victims) > 0 {
		s.logger.Info("swept idle sessions", zap.Int("evicted", len(victims)))
	}
	return len(victims)
}

// StartSweeper runs periodic sweeps until the context is cancelled.
func (s *Store) StartSweeper(ctx context.Context) {
	interval := s.opts.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
