package resilience

import (
	"context"
	"time"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	Timeout          time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	FailureThreshold int
	ResetInterval    time.Duration
}

// Guard wraps calls to one upstream target with Retry, Breaker and Timeout.
type Guard struct {
	breaker *Breaker
	policy  RetryPolicy
	timeout time.Duration
}

// NewGuard creates the guard for the named upstream target.
func NewGuard(name string, cfg GuardConfig) *Guard {
	return &Guard{
		breaker: NewBreaker(name, cfg.FailureThreshold, cfg.ResetInterval),
		policy: RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
		},
		timeout: cfg.Timeout,
	}
}

// Breaker returns the guard's circuit breaker.
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

// CallOption adjusts a single guarded call.
type CallOption func(*RetryPolicy)

// WithRetryable restricts which failures of this call are retried.
func WithRetryable(fn func(error) bool) CallOption {
	return func(p *RetryPolicy) {
		p.Retryable = fn
	}
}

// Do runs op as Retry(Breaker(Timeout(op))). A timeout counts as a
// breaker failure; each attempt is one breaker call.
func Do[T any](ctx context.Context, g *Guard, op func(context.Context) (T, error), opts ...CallOption) (T, error) {
	policy := g.policy
	for _, opt := range opts {
		opt(&policy)
	}
	return Retry(ctx, policy, func(ctx context.Context) (T, error) {
		return Execute(ctx, g.breaker, func(ctx context.Context) (T, error) {
			return Timeout(ctx, g.timeout, op)
		})
	})
}
