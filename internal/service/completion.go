package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/resilience"
)

// CompletionResult is the outcome of a non-streaming completion.
type CompletionResult struct {
	SessionID string           `json:"sessionId"`
	Response  string           `json:"response"`
	Messages  []domain.Message `json:"messages"`
	Usage     *domain.Usage    `json:"usage,omitempty"`
}

// GetCompletion runs one guarded non-streaming upstream call and stores the
// reply. The user message is stored before the call and kept on failure.
func (s *Service) GetCompletion(ctx context.Context, message, sessionID string) (*CompletionResult, error) {
	t, err := s.beginTurn(ctx, message, sessionID)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("session_id", t.session.SessionID).Logger()

	completion, err := resilience.Do(ctx, s.guard, func(ctx context.Context) (*llm.Completion, error) {
		return s.llmClient.Chat(ctx, t.messages)
	}, resilience.WithRetryable(isRetryable))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		uerr := upstreamError(err)
		logger.Error().Err(uerr).Str("kind", string(domain.KindOf(uerr))).Msg("completion failed")
		return nil, uerr
	}

	reply, err := s.appendAssistantMessage(ctx, t.session.SessionID, completion.Text)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("model", completion.Model).Int("chars", len(completion.Text)).Msg("completion finished")

	return &CompletionResult{
		SessionID: t.session.SessionID,
		Response:  completion.Text,
		Messages:  append(t.session.Messages, *reply),
		Usage:     completion.Usage,
	}, nil
}
