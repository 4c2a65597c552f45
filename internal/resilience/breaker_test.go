package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := NewBreaker("test", threshold, reset)
	b.now = clock.Now
	return b, clock
}

var errUpstream = errors.New("upstream down")

func failing(calls *int32) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		atomic.AddInt32(calls, 1)
		return 0, errUpstream
	}
}

func succeeding(calls *int32) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		atomic.AddInt32(calls, 1)
		return 42, nil
	}
}

func TestBreakerOpensAtThresholdAndRecovers(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(3, 30*time.Second)
	var calls int32

	for i := 0; i < 3; i++ {
		_, err := Execute(ctx, b, failing(&calls))
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.EqualValues(t, 3, calls)

	// Fourth call is short-circuited without invoking the operation.
	_, err := Execute(ctx, b, succeeding(&calls))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 3, calls)

	clock.Advance(30 * time.Second)

	got, err := Execute(ctx, b, succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.EqualValues(t, 4, calls)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().Failures)

	for i := 0; i < 5; i++ {
		_, err := Execute(ctx, b, succeeding(&calls))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 9, calls)
}

func TestBreakerStaysOpenBeforeResetInterval(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(1, time.Minute)
	var calls int32

	_, _ = Execute(ctx, b, failing(&calls))
	clock.Advance(59 * time.Second)

	_, err := Execute(ctx, b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 1, calls)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(2, time.Second)
	var calls int32

	_, _ = Execute(ctx, b, failing(&calls))
	_, _ = Execute(ctx, b, failing(&calls))
	require.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	_, err := Execute(ctx, b, failing(&calls))
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, b.State())

	_, err = Execute(ctx, b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 3, calls)
}

func TestBreakerHalfOpenAllowsSingleTrial(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(1, time.Second)
	var calls int32

	_, _ = Execute(ctx, b, failing(&calls))
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		_, err := Execute(ctx, b, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		trialDone <- err
	}()
	<-started

	_, err := Execute(ctx, b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	require.NoError(t, <-trialDone)
	assert.Equal(t, StateClosed, b.State())
}

// blockingCall starts op through b and waits until it is running. The
// returned finish function ends the call with err and waits for its result.
func blockingCall(t *testing.T, b *Breaker, err error) func() error {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, callErr := Execute(context.Background(), b, func(context.Context) (int, error) {
			close(started)
			<-release
			return 0, err
		})
		done <- callErr
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("call was not admitted")
	}
	return func() error {
		close(release)
		return <-done
	}
}

func TestBreakerStaleResultDoesNotEndTrial(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(1, time.Second)
	var calls int32

	// Admitted while closed, finishes during the half-open trial.
	finishStale := blockingCall(t, b, errUpstream)

	_, err := Execute(ctx, b, failing(&calls))
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	finishTrial := blockingCall(t, b, nil)
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, finishStale(), errUpstream)
	assert.Equal(t, StateHalfOpen, b.State())

	clock.Advance(time.Second)
	_, err = Execute(ctx, b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen, "a second trial must not run while the first is in flight")
	assert.EqualValues(t, 1, calls)

	require.NoError(t, finishTrial())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().Failures)
}

func TestBreakerStaleSuccessDoesNotCloseOpenCircuit(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(1, time.Minute)
	var calls int32

	finishStale := blockingCall(t, b, nil)

	_, _ = Execute(ctx, b, failing(&calls))
	require.Equal(t, StateOpen, b.State())

	require.NoError(t, finishStale())
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 1, b.Snapshot().Failures)
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(1, time.Second)

	_, err := Execute(ctx, b, func(context.Context) (int, error) {
		return 0, context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().Failures)
}

func TestBreakerConcurrentFailuresCountedOncePerCall(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(1000, time.Minute)
	var calls int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Execute(ctx, b, failing(&calls))
		}()
	}
	wg.Wait()

	snap := b.Snapshot()
	assert.Equal(t, 50, snap.Failures)
	assert.Equal(t, StateClosed, snap.State)
	assert.EqualValues(t, 50, calls)
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(3, time.Minute)
	var calls int32

	_, _ = Execute(ctx, b, failing(&calls))
	_, _ = Execute(ctx, b, failing(&calls))
	_, err := Execute(ctx, b, succeeding(&calls))
	require.NoError(t, err)
	_, _ = Execute(ctx, b, failing(&calls))

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 1, b.Snapshot().Failures)
}
