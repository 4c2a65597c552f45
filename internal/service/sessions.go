package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/repository"
	"github.com/xiaot623/gogo/gateway/internal/resilience"
)

// sessionListLimit caps ListSessions.
const sessionListLimit = 50

// GetHistory returns a session with all of its messages.
func (s *Service) GetHistory(ctx context.Context, sessionID string) (*domain.Session, error) {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	session, err := s.store.LoadSession(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	return session, nil
}

// ListSessions returns the most recently updated sessions.
func (s *Service) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	summaries, err := s.store.ListSessions(ctx, sessionListLimit)
	if err != nil {
		return nil, persistenceError("failed to list sessions", err)
	}
	return summaries, nil
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return lookupError(err)
	}
	return nil
}

// ClearSession removes every message of a session and keeps the session.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}
	if err := s.store.ClearSession(ctx, id); err != nil {
		return lookupError(err)
	}
	return nil
}

// StatusReport describes the upstream guard.
type StatusReport struct {
	Driver  string              `json:"driver"`
	Model   string              `json:"model"`
	Breaker resilience.Snapshot `json:"circuitBreaker"`
}

// Status reports the upstream configuration and breaker state.
func (s *Service) Status() StatusReport {
	return StatusReport{
		Driver:  s.config.Upstream.Driver,
		Model:   s.config.Upstream.Model,
		Breaker: s.guard.Breaker().Snapshot(),
	}
}

// Ready checks that the store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return persistenceError("store unreachable", err)
	}
	return nil
}

// parseSessionID validates an explicit session id for lookups. Unlike the
// chat path, a missing or malformed id is an error here.
func parseSessionID(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", domain.NewError(domain.KindInvalidInput, "session id required", nil)
	}
	parsed, err := uuid.Parse(sessionID)
	if err != nil {
		return "", domain.ErrSessionNotFound
	}
	return parsed.String(), nil
}

func lookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrSessionNotFound
	}
	return persistenceError("session lookup failed", err)
}
