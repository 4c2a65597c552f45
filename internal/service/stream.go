package service

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/resilience"
)

// CancellationMarker is appended to the partial reply of a cancelled generation.
const CancellationMarker = "\n\n[response cancelled]"

// errStreamClosed is returned to late deltas of an abandoned upstream attempt.
var errStreamClosed = errors.New("stream closed")

// Stream is one generation cycle exposed as a finite, cancellable sequence
// of events. The user message is already persisted when a Stream exists.
type Stream struct {
	svc     *Service
	turn    *turn
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool

	events chan domain.StreamEvent
	acks   chan bool
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	emitted bool
	buf     strings.Builder
	outcome domain.Outcome
}

// StreamCompletion validates the message, resolves the session and persists
// the user message. Errors returned here are pre-stream errors; failures
// after that are delivered as a single error event by the stream.
//
// The upstream call starts when Events is first iterated. Cancelling ctx or
// calling Cancel ends the generation; the partial reply is stored with
// CancellationMarker and no completion event is sent.
func (s *Service) StreamCompletion(ctx context.Context, message, sessionID string) (*Stream, error) {
	t, err := s.beginTurn(ctx, message, sessionID)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	return &Stream{
		svc:    s,
		turn:   t,
		ctx:    streamCtx,
		cancel: cancel,
		events: make(chan domain.StreamEvent),
		acks:   make(chan bool),
		done:   make(chan struct{}),
	}, nil
}

// SessionID returns the id of the session the generation belongs to.
func (st *Stream) SessionID() string {
	return st.turn.session.SessionID
}

// Events returns the event sequence. Only the first iteration produces
// events; later iterations yield nothing. Breaking out of the loop cancels
// the generation and waits until its partial reply is stored.
func (st *Stream) Events() iter.Seq[domain.StreamEvent] {
	return func(yield func(domain.StreamEvent) bool) {
		if !st.started.CompareAndSwap(false, true) {
			return
		}
		go st.run()
		defer func() { <-st.done }()

		for ev := range st.events {
			if ev.Type == domain.EventTypeContent {
				// Deltas that arrive after cancellation are refused, so the
				// stored partial reply matches what was yielded.
				accepted := st.ctx.Err() == nil
				st.acks <- accepted
				if !accepted {
					continue
				}
			}
			if !yield(ev) {
				st.Cancel()
				return
			}
		}
	}
}

// Cancel stops the generation. It is safe to call more than once and from
// any goroutine.
func (st *Stream) Cancel() {
	st.cancel()
	if st.started.CompareAndSwap(false, true) {
		go st.run()
	}
}

// Wait blocks until the generation has ended and its outcome is persisted.
// It returns once Events has been consumed or Cancel has been called.
func (st *Stream) Wait() domain.Outcome {
	<-st.done
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.outcome
}

func (st *Stream) run() {
	defer close(st.done)
	defer close(st.events)
	defer st.cancel()

	sessionID := st.SessionID()
	logger := log.With().Str("session_id", sessionID).Logger()

	// Cancel before the first iteration skips the upstream call entirely.
	err := st.ctx.Err()
	if err == nil {
		_, err = resilience.Do(st.ctx, st.svc.guard, st.attempt, resilience.WithRetryable(st.retryable))
	}
	text := st.close()

	if err == nil {
		if _, perr := st.svc.appendAssistantMessage(st.ctx, sessionID, text); perr != nil {
			logger.Error().Err(perr).Msg("failed to persist completed reply")
			st.finish(domain.OutcomeFailed)
			st.send(domain.ErrorEvent(domain.KindOf(perr)))
			return
		}
		logger.Info().Int("chars", len(text)).Msg("stream completed")
		st.finish(domain.OutcomeCompleted)
		st.send(domain.DoneEvent(sessionID))
		return
	}

	if st.ctx.Err() != nil {
		if _, perr := st.svc.appendAssistantMessage(st.ctx, sessionID, text+CancellationMarker); perr != nil {
			logger.Error().Err(perr).Msg("failed to persist cancelled reply")
		}
		logger.Info().Int("chars", len(text)).Msg("stream cancelled")
		st.finish(domain.OutcomeCancelled)
		return
	}

	uerr := upstreamError(err)
	logger.Error().Err(uerr).Str("kind", string(domain.KindOf(uerr))).Msg("stream failed")
	st.finish(domain.OutcomeFailed)
	st.send(domain.ErrorEvent(domain.KindOf(uerr)))
}

// attempt is one guarded upstream call. Deltas are bound to the attempt's
// context so an abandoned attempt can no longer emit.
func (st *Stream) attempt(ctx context.Context) (struct{}, error) {
	_, err := st.svc.llmClient.StreamChat(ctx, st.turn.messages, func(delta string) error {
		return st.emit(ctx, delta)
	})
	return struct{}{}, err
}

func (st *Stream) emit(ctx context.Context, delta string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return errStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case st.events <- domain.ContentEvent(delta):
	case <-ctx.Done():
		return ctx.Err()
	}
	if !<-st.acks {
		return context.Canceled
	}

	st.emitted = true
	st.buf.WriteString(delta)
	return nil
}

// retryable refuses to replay an attempt that already reached the client.
func (st *Stream) retryable(err error) bool {
	st.mu.Lock()
	emitted := st.emitted
	st.mu.Unlock()
	return !emitted && isRetryable(err)
}

// close stops accepting deltas and returns the text emitted so far.
func (st *Stream) close() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.closed = true
	return st.buf.String()
}

func (st *Stream) finish(outcome domain.Outcome) {
	st.mu.Lock()
	st.outcome = outcome
	st.mu.Unlock()
}

// send delivers a terminal event unless the consumer has gone away.
func (st *Stream) send(ev domain.StreamEvent) {
	select {
	case st.events <- ev:
	case <-st.ctx.Done():
	}
}
