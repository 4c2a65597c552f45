package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned without invoking the operation while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the state of a circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Breaker tracks the health of one upstream target across calls.
// It is safe for concurrent use; counters change once per call.
type Breaker struct {
	name          string
	threshold     int
	resetInterval time.Duration

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	trialInFlight bool
	// generation advances on every state change. Results of calls admitted
	// in an earlier generation do not move the state.
	generation uint64

	now func() time.Time
}

// ticket records how a call was admitted.
type ticket struct {
	generation uint64
	trial      bool
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	Threshold     int       `json:"threshold"`
	ResetInterval string    `json:"resetInterval"`
	LastFailure   time.Time `json:"lastFailure,omitzero"`
}

// NewBreaker creates a closed breaker that opens after threshold
// consecutive failures and probes again after resetInterval.
func NewBreaker(name string, threshold int, resetInterval time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		name:          name,
		threshold:     threshold,
		resetInterval: resetInterval,
		state:         StateClosed,
		now:           time.Now,
	}
}

// Execute runs op through the breaker. It returns op's result, op's own
// error, or ErrCircuitOpen when the call was short-circuited.
func Execute[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var zero T
	t, err := b.acquire()
	if err != nil {
		return zero, err
	}
	val, err := op(ctx)
	b.release(t, err)
	return val, err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current breaker bookkeeping.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:          b.name,
		State:         b.state,
		Failures:      b.failures,
		Threshold:     b.threshold,
		ResetInterval: b.resetInterval.String(),
		LastFailure:   b.lastFailure,
	}
}

func (b *Breaker) acquire() (ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.resetInterval {
			return ticket{}, ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.trialInFlight = true
		log.Info().Str("breaker", b.name).Msg("circuit breaker half-open, probing upstream")
		return ticket{generation: b.generation, trial: true}, nil
	case StateHalfOpen:
		// One trial call at a time.
		if b.trialInFlight {
			return ticket{}, ErrCircuitOpen
		}
		b.trialInFlight = true
		return ticket{generation: b.generation, trial: true}, nil
	}
	return ticket{generation: b.generation}, nil
}

func (b *Breaker) release(t ticket, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.trial {
		b.trialInFlight = false
	}

	// The caller went away; that says nothing about upstream health.
	if errors.Is(err, context.Canceled) {
		return
	}

	if t.generation != b.generation {
		log.Debug().Str("breaker", b.name).Err(err).Msg("circuit breaker ignored result from an earlier state")
		return
	}

	if err == nil {
		if b.state != StateClosed {
			log.Info().Str("breaker", b.name).Msg("circuit breaker closed")
			b.setState(StateClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.now()
	log.Warn().Str("breaker", b.name).Int("failures", b.failures).Err(err).Msg("circuit breaker recorded failure")

	if t.trial || b.failures >= b.threshold {
		b.setState(StateOpen)
		log.Error().Str("breaker", b.name).Int("failures", b.failures).Msg("circuit breaker opened")
	}
}

func (b *Breaker) setState(state State) {
	b.state = state
	b.generation++
}
