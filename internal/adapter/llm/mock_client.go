package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// MockClient is a deterministic local driver used for development and tests.
type MockClient struct {
	// ChunkSize is the number of runes per streamed delta.
	ChunkSize int
	// ChunkDelay is the pause before each delta.
	ChunkDelay time.Duration
}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{ChunkSize: 10, ChunkDelay: 20 * time.Millisecond}
}

// Chat returns a mock response.
func (m *MockClient) Chat(ctx context.Context, messages []ChatMessage) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := m.generateMockResponse(messages)
	return &Completion{
		Text:  content,
		Model: "mock-gpt-4",
		Usage: m.usage(messages, content),
	}, nil
}

// StreamChat simulates a streaming response.
func (m *MockClient) StreamChat(ctx context.Context, messages []ChatMessage, onDelta func(string) error) (*Completion, error) {
	content := m.generateMockResponse(messages)

	for _, chunk := range splitIntoChunks(content, m.ChunkSize) {
		if m.ChunkDelay > 0 {
			timer := time.NewTimer(m.ChunkDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := onDelta(chunk); err != nil {
			return nil, err
		}
	}

	return &Completion{
		Text:  content,
		Model: "mock-gpt-4",
		Usage: m.usage(messages, content),
	}, nil
}

// generateMockResponse generates a mock response from the last user message.
func (m *MockClient) generateMockResponse(messages []ChatMessage) string {
	var lastUserMessage string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == string(domain.RoleUser) {
			lastUserMessage = messages[i].Content
			break
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the upstream client."
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

// usage provides a rough token count estimate.
func (m *MockClient) usage(messages []ChatMessage, content string) *domain.Usage {
	prompt := 0
	for _, msg := range messages {
		prompt += len(msg.Content) / 4
	}
	completion := len(content) / 4
	return &domain.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// splitIntoChunks splits s into chunks of at most size runes.
func splitIntoChunks(s string, size int) []string {
	if size <= 0 {
		size = 10
	}
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// truncate truncates a string to the given number of runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxLen])) + "..."
}
