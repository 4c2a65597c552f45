package service

import (
	"context"
	"errors"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/resilience"
)

func persistenceError(msg string, err error) error {
	return domain.NewError(domain.KindPersistence, msg, err)
}

// upstreamError gives a guarded upstream failure its gateway kind.
func upstreamError(err error) error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return domain.NewError(domain.KindCircuitOpen, "upstream circuit is open", err)
	case errors.Is(err, resilience.ErrTimeout):
		return domain.NewError(domain.KindUpstreamUnavailable, "upstream timed out", err)
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return domain.NewError(domain.KindUpstreamUnavailable, "upstream call failed", err)
}

// isRetryable reports whether a failed upstream attempt may be repeated.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, domain.ErrUpstreamProtocol),
		errors.Is(err, domain.ErrInvalidInput):
		return false
	}
	return true
}
