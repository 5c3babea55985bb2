// Package gateway wraps every upstream fetch with the resilience policy
// shared by all providers: a short-TTL response cache, a per-provider
// rate-limit cooldown, and bounded retries with jittered exponential
// backoff. Rate limits are global to a provider's credential, so the cache
// and cooldown tables are process-wide and guarded here, not per session.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors for the failure taxonomy. Provider clients wrap their
// failures in ErrTransient (timeouts, 5xx) or return a *RateLimitError;
// anything else is treated as permanent and never retried.
var (
	// ErrTransient marks a failure worth retrying.
	ErrTransient = errors.New("transient upstream failure")
	// ErrRateLimited is returned when a provider cooldown is active and no
	// cached entry can cover the query.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrUpstream is returned once retries are exhausted.
	ErrUpstream = errors.New("upstream failure")
)

// RateLimitError reports an explicit 429/403 rate-limit response or an
// active cooldown. RetryAfter is a hint for the client; zero means the
// provider gave none.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Request describes one logical upstream fetch.
type Request struct {
	// Provider names the upstream; cooldowns are keyed by it.
	Provider string
	// Key is the logical query; cache entries are keyed provider+key.
	Key string
	// TTL is the cache freshness window. Zero disables caching for the
	// request (the entry is still recorded for stale service under
	// cooldown only when TTL > 0).
	TTL time.Duration
	// Describe is the human-readable FETCH event text, reported through
	// the context's Reporter immediately before every real network
	// attempt. Cache hits never report.
	Describe string
	// Do performs the actual upstream call.
	Do func(ctx context.Context) (any, error)
}

// Result is the outcome of a Fetch.
type Result struct {
	Data any
	// ServedFromCache is true for fresh cache hits and for stale entries
	// served while a cooldown is active.
	ServedFromCache bool
}

type cacheEntry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
}

func (e cacheEntry) fresh(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) < e.ttl
}

// Options tunes the gateway.
type Options struct {
	MaxRetries      int
	BackoffBase     time.Duration
	DefaultCooldown time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// DefaultOptions returns the documented policy: 2 retries, 500ms backoff
// base, 60s cooldown.
func DefaultOptions() Options {
	return Options{
		MaxRetries:      2,
		BackoffBase:     500 * time.Millisecond,
		DefaultCooldown: time.Minute,
	}
}

// Gateway owns the process-wide cache and cooldown tables.
type Gateway struct {
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	cache     map[string]cacheEntry
	cooldowns map[string]time.Time

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a gateway. A nil logger is replaced with a no-op one.
func New(opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.DefaultCooldown <= 0 {
		opts.DefaultCooldown = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		opts:      opts,
		logger:    logger.Named("gateway"),
		cache:     make(map[string]cacheEntry),
		cooldowns: make(map[string]time.Time),
		sleep:     sleepCtx,
	}
}

func cacheKey(provider, key string) string { return provider + "|" + key }

// Fetch runs the request through cache, cooldown, and retry policy.
func (g *Gateway) Fetch(ctx context.Context, req Request) (Result, error) {
	now := g.opts.Now()
	ck := cacheKey(req.Provider, req.Key)

	g.mu.Lock()
	entry, cached := g.cache[ck]
	until, cooling := g.cooldowns[req.Provider]
	if cooling && !now.Before(until) {
		delete(g.cooldowns, req.Provider)
		cooling = false
	}
	g.mu.Unlock()

	if cached && entry.fresh(now) {
		return Result{Data: entry.value, ServedFromCache: true}, nil
	}

	if cooling {
		if cached {
			g.logger.Warn("serving stale cache during cooldown",
				zap.String("provider", req.Provider), zap.String("key", req.Key))
			return Result{Data: entry.value, ServedFromCache: true}, nil
		}
		return Result{}, &RateLimitError{Provider: req.Provider, RetryAfter: until.Sub(now)}
	}

	data, err := g.call(ctx, req)
	if err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			g.startCooldown(req.Provider, rl.RetryAfter)
			if cached {
				g.logger.Warn("rate limited, serving stale cache",
					zap.String("provider", req.Provider), zap.String("key", req.Key))
				return Result{Data: entry.value, ServedFromCache: true}, nil
			}
		}
		return Result{}, err
	}

	if req.TTL > 0 {
		g.mu.Lock()
		g.cache[ck] = cacheEntry{value: data, insertedAt: g.opts.Now(), ttl: req.TTL}
		g.mu.Unlock()
	}
	return Result{Data: data}, nil
}

// call performs the upstream request with retries. Rate limits are never
// retried; transient failures get MaxRetries additional attempts.
func (g *Gateway) call(ctx context.Context, req Request) (any, error) {
	backoff := g.opts.BackoffBase
	report := ReporterFromContext(ctx)
	var lastErr error

	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if report != nil && req.Describe != "" {
			report(req.Describe)
		}
		data, err := req.Do(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		if !errors.Is(err, ErrTransient) {
			return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, req.Provider, err)
		}
		if attempt == g.opts.MaxRetries {
			break
		}

		// Full jitter: anywhere in (0, backoff].
		delay := time.Duration(rand.Int63n(int64(backoff))) + time.Millisecond
		g.logger.Warn("transient failure, retrying",
			zap.String("provider", req.Provider),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := g.sleep(ctx, delay); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("%w: %s after %d retries: %w", ErrUpstream, req.Provider, g.opts.MaxRetries, lastErr)
}

func (g *Gateway) startCooldown(provider string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = g.opts.DefaultCooldown
	}
	g.mu.Lock()
	g.cooldowns[provider] = g.opts.Now().Add(retryAfter)
	g.mu.Unlock()
	g.logger.Warn("provider entering cooldown",
		zap.String("provider", provider), zap.Duration("for", retryAfter))
}

// CoolingDown reports whether the provider's cooldown is active.
func (g *Gateway) CoolingDown(provider string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.cooldowns[provider]
	return ok && g.opts.Now().Before(until)
}

// Invalidate drops any cache entry for the logical query.
func (g *Gateway) Invalidate(provider, key string) {
	g.mu.Lock()
	delete(g.cache, cacheKey(provider, key))
	g.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
