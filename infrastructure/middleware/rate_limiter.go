package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/jcourt/go-rally/internal/domain"
	"github.com/jcourt/go-rally/internal/ports"
)

// rateLimitedUnit enforces a token bucket rate limit on unit execution.
// In a shared deployment this keeps one chatty caller from monopolizing
// the engine, since pairwise tallying grows quadratically with the
// candidate count.
type rateLimitedUnit struct {
	next    ports.Unit
	limiter *rate.Limiter
}

// RateLimit creates middleware that enforces rate limiting using a token
// bucket. The limit parameter sets executions per second, while burst
// allows temporary spikes above the sustained rate. All units wrapped by
// the returned middleware share one bucket.
func RateLimit(limit rate.Limit, burst int) ports.Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.Unit) ports.Unit {
		return &rateLimitedUnit{next: next, limiter: limiter}
	}
}

// Execute waits for rate limit permission before forwarding. It blocks
// the calling goroutine until a token is available or the context is
// canceled.
func (r *rateLimitedUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return state, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Execute(ctx, state)
}

// Name returns the wrapped unit's identifier.
func (r *rateLimitedUnit) Name() string { return r.next.Name() }

// Validate delegates to the wrapped unit.
func (r *rateLimitedUnit) Validate() error { return r.next.Validate() }
