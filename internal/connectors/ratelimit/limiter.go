// Package ratelimit provides per-source request throttling and the typed
// errors connectors report upstream failures with.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// Config holds rate limiting configuration for a service.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultLimits provides conservative defaults for each source.
var DefaultLimits = map[domain.Source]Config{
	domain.SourceWebSearch:       {RequestsPerSecond: 1.0, BurstSize: 5},  // CSE: 100 queries/day free
	domain.SourceSemanticScholar: {RequestsPerSecond: 1.0, BurstSize: 1},  // 1 rps with an API key
	domain.SourceYouTube:         {RequestsPerSecond: 5.0, BurstSize: 10}, // quota units, not requests
	domain.SourceNews:            {RequestsPerSecond: 1.0, BurstSize: 5},
}

// defaultBackoff applies when a 429 carries no Retry-After.
const defaultBackoff = 60 * time.Second

// Limiter is a token bucket with an optional pause set by 429 responses.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// ForSource creates a limiter with the source's default configuration.
func ForSource(src domain.Source) *Limiter {
	cfg, ok := DefaultLimits[src]
	if !ok {
		cfg = Config{RequestsPerSecond: 5.0, BurstSize: 10}
	}
	return New(cfg)
}

// New creates a limiter with custom configuration. A non-positive rate
// disables throttling.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any pause set by Pause.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return l.limiter.Wait(ctx)
}

// Pause stops requests for d, or the default backoff when d is zero.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		d = defaultBackoff
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if at := time.Now().Add(d); at.After(l.retryAt) {
		l.retryAt = at
	}
}

// Observe pauses the limiter when err is a RateLimitError.
func (l *Limiter) Observe(err error) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		l.Pause(rl.RetryAfter)
	}
}

// Allow checks if a request can be made immediately without blocking.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return l.limiter.Allow()
}
