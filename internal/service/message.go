package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/policy"
	"github.com/xiaot623/gogo/gateway/internal/repository"
)

// turn is a request that passed admission and whose user message is stored.
type turn struct {
	session  *domain.Session
	messages []llm.ChatMessage
}

// beginTurn validates the message, resolves the session and persists the
// user message. Nothing is written when validation or admission fails, and
// no upstream call may follow a failed append.
func (s *Service) beginTurn(ctx context.Context, message, sessionID string) (*turn, error) {
	if strings.TrimSpace(message) == "" {
		return nil, domain.ErrEmptyMessage
	}

	session, err := s.loadExistingSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	existing := 0
	if session != nil {
		existing = len(session.Messages)
	}
	if err := s.admit(ctx, message, existing); err != nil {
		return nil, err
	}

	if session == nil {
		session, err = s.store.CreateSession(ctx)
		if err != nil {
			return nil, persistenceError("failed to create session", err)
		}
		log.Debug().Str("session_id", session.SessionID).Msg("created session")
	}

	userMsg := domain.Message{
		MessageID: uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, session.SessionID, &userMsg); err != nil {
		return nil, persistenceError("failed to persist user message", err)
	}
	session.Messages = append(session.Messages, userMsg)

	return &turn{session: session, messages: llm.FromMessages(session.Messages)}, nil
}

// loadExistingSession returns the session for a well-formed, known id and nil
// for a missing, malformed or unknown one.
func (s *Service) loadExistingSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(sessionID)
	if err != nil {
		log.Warn().Str("session_id", sessionID).Msg("ignoring malformed session id")
		return nil, nil
	}

	session, err := s.store.LoadSession(ctx, parsed.String())
	if errors.Is(err, store.ErrNotFound) {
		log.Info().Str("session_id", sessionID).Msg("unknown session id, starting a new session")
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("failed to load session", err)
	}
	return session, nil
}

func (s *Service) admit(ctx context.Context, message string, sessionMessages int) error {
	if s.policyEngine == nil {
		return nil
	}
	decision, err := s.policyEngine.Evaluate(ctx, policy.Request{
		MessageLength:       utf8.RuneCountInString(message),
		SessionMessageCount: sessionMessages,
	})
	if err != nil {
		return domain.NewError(domain.KindInternal, "admission policy failed", err)
	}
	if !decision.Allowed() {
		return domain.NewError(domain.KindInvalidInput,
			fmt.Sprintf("message rejected: %s", strings.Join(decision.Reasons, ", ")), nil)
	}
	return nil
}

func (s *Service) appendAssistantMessage(ctx context.Context, sessionID, content string) (*domain.Message, error) {
	msg := &domain.Message{
		MessageID: uuid.NewString(),
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	// The reply is stored even when the caller has gone away.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.store.AppendMessage(persistCtx, sessionID, msg); err != nil {
		return nil, persistenceError("failed to persist assistant message", err)
	}
	return msg, nil
}
