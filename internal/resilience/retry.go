package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy is a bounded retry with linear backoff.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int
	// BaseDelay is multiplied by the attempt number before each retry.
	BaseDelay time.Duration
	// Retryable decides whether a failure may be retried.
	// nil retries every failure.
	Retryable func(error) bool
}

// Retry invokes op up to p.MaxRetries+1 times, waiting BaseDelay*n after
// the n-th failure. After exhaustion the last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if attempt == p.MaxRetries {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}

		delay := p.BaseDelay * time.Duration(attempt+1)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("attempt failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
