package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an operation does not finish before its deadline.
var ErrTimeout = errors.New("operation timed out")

// Timeout runs op with a deadline of d. The first resolution wins: the
// operation's own result or error if it finishes in time, ErrTimeout
// otherwise. A cancelled parent context surfaces ctx.Err().
//
// op receives a context that is cancelled when Timeout returns, on every path.
func Timeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeoutCause(ctx, d, ErrTimeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := op(opCtx)
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		// An operation that honours its context reports the deadline itself.
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && errors.Is(context.Cause(opCtx), ErrTimeout) {
			return zero, ErrTimeout
		}
		return r.val, r.err
	case <-opCtx.Done():
		if errors.Is(context.Cause(opCtx), ErrTimeout) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
