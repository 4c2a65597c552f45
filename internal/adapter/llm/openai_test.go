package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/gateway/internal/config"
	"github.com/xiaot623/gogo/gateway/internal/domain"
)

func newTestOpenAIClient(t *testing.T, apiKey string, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIClient(config.UpstreamConfig{
		BaseURL:     server.URL,
		APIKey:      apiKey,
		Model:       "gpt-4",
		MaxTokens:   2000,
		Temperature: 0.7,
	})
}

func TestOpenAIClientStreamChat(t *testing.T) {
	client := newTestOpenAIClient(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, streamChunk("Hel"))
		fmt.Fprint(w, streamChunk("lo"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	got, err := client.StreamChat(context.Background(), []ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", got.Text)
}

func TestOpenAIClientChat(t *testing.T) {
	client := newTestOpenAIClient(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	})

	got, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, 3, got.Usage.TotalTokens)
}

func TestOpenAIClientClassifiesAPIErrors(t *testing.T) {
	client := newTestOpenAIClient(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	_, err := client.StreamChat(context.Background(), nil, func(string) error { return nil })
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestOpenAIClientMissingKeyFailsLazily(t *testing.T) {
	requests := 0
	client := newTestOpenAIClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		requests++
	})

	_, err := client.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, 0, requests)
}
