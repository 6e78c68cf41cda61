package connectors

import (
	"context"
	"time"

	"github.com/custodia-labs/kgraph/internal/connectors/ratelimit"
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/retry"
)

// Call waits on limiter, runs fn and retries transient failures per
// policy. A 429 pauses the limiter before the next attempt.
func Call[T any](ctx context.Context, name string, limiter *ratelimit.Limiter, policy retry.Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("%s: attempt %d failed, retrying in %s: %v", name, attempt, delay, err)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	return retry.DoValue(ctx, policy, func(ctx context.Context) (T, error) {
		if err := limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		v, err := fn(ctx)
		limiter.Observe(err)
		return v, err
	})
}

// DaysAgo returns the UTC instant days before now, or zero for days <= 0.
func DaysAgo(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.UTC().AddDate(0, 0, -days)
}
