// Package llm provides an abstraction for upstream completion providers.
package llm

import (
	"context"
	"errors"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// ErrMissingAPIKey is wrapped by the error returned from the first call of a
// client constructed without credentials.
var ErrMissingAPIKey = errors.New("upstream API key is not configured")

// Client defines the interface for upstream completion operations.
type Client interface {
	// StreamChat sends a streaming completion request. onDelta is called once
	// per non-empty delta, in upstream order; an error from onDelta aborts the
	// stream and is returned unchanged. The accumulated text is returned on
	// completion.
	StreamChat(ctx context.Context, messages []ChatMessage, onDelta func(delta string) error) (*Completion, error)

	// Chat sends a single non-streaming completion request.
	Chat(ctx context.Context, messages []ChatMessage) (*Completion, error)
}

// ChatMessage is one message of the conversation sent upstream.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the result of a completion request.
type Completion struct {
	Text  string
	Model string
	Usage *domain.Usage
}

// FromMessages converts stored session messages to upstream chat messages.
func FromMessages(msgs []domain.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func missingKeyError() error {
	return domain.NewError(domain.KindUpstreamUnavailable, "upstream client unavailable", ErrMissingAPIKey)
}

// Ensure drivers implement Client interface.
var (
	_ Client = (*CompatClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MockClient)(nil)
)
