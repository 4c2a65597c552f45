package domain

import (
	"time"
	"unicode/utf8"
)

const (
	// DefaultSessionTitle is used until the first user message arrives.
	DefaultSessionTitle = "New Conversation"

	titleMaxRunes = 50
)

// Session is a persisted, ordered conversation.
type Session struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message represents a single message in a session.
type Message struct {
	MessageID string    `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	SessionID    string    `json:"sessionId"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	LastMessage  string    `json:"lastMessage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TitleFromMessage derives a session title from the first user message.
func TitleFromMessage(content string) string {
	if utf8.RuneCountInString(content) <= titleMaxRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleMaxRunes]) + "..."
}

// Usage represents token usage reported by the upstream provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}
