// Package store persists chat sessions and their messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for conversation storage.
// Implementations must make AppendMessage durable before it returns.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context) (*domain.Session, error)
	LoadSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ClearSession(ctx context.Context, sessionID string) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)

	// Message operations
	AppendMessage(ctx context.Context, sessionID string, message *domain.Message) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
