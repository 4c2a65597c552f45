package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/config"
	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/policy"
	"github.com/xiaot623/gogo/gateway/internal/repository"
	"github.com/xiaot623/gogo/gateway/tests/helpers"
)

// fakeClient is a scriptable upstream. call is 1-based.
type fakeClient struct {
	calls  atomic.Int32
	stream func(ctx context.Context, call int, onDelta func(string) error) (*llm.Completion, error)
	chat   func(ctx context.Context, call int) (*llm.Completion, error)

	mu   sync.Mutex
	seen [][]llm.ChatMessage
}

func (f *fakeClient) StreamChat(ctx context.Context, messages []llm.ChatMessage, onDelta func(string) error) (*llm.Completion, error) {
	f.record(messages)
	return f.stream(ctx, int(f.calls.Add(1)), onDelta)
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.ChatMessage) (*llm.Completion, error) {
	f.record(messages)
	return f.chat(ctx, int(f.calls.Add(1)))
}

func (f *fakeClient) record(messages []llm.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, messages)
}

func (f *fakeClient) lastMessages() []llm.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seen) == 0 {
		return nil
	}
	return f.seen[len(f.seen)-1]
}

// emitting streams chunks and then completes.
func emitting(chunks ...string) func(context.Context, int, func(string) error) (*llm.Completion, error) {
	return func(ctx context.Context, _ int, onDelta func(string) error) (*llm.Completion, error) {
		text := ""
		for _, c := range chunks {
			if err := onDelta(c); err != nil {
				return nil, err
			}
			text += c
		}
		return &llm.Completion{Text: text, Model: "gpt-4"}, nil
	}
}

var errUnavailable = domain.NewError(domain.KindUpstreamUnavailable, "upstream returned status 503", nil)

func testConfig() *config.Config {
	return &config.Config{
		SessionTTL: time.Hour,
		Upstream: config.UpstreamConfig{
			Driver: config.DriverMock,
			Model:  "gpt-4",
		},
		UpstreamTimeout:    time.Second,
		RetryMax:           2,
		RetryBaseDelay:     time.Millisecond,
		BreakerThreshold:   5,
		BreakerReset:       time.Minute,
		MaxMessageLength:   100,
		MaxSessionMessages: 50,
	}
}

func newTestService(t *testing.T, client llm.Client, mutate ...func(*config.Config)) (*Service, *store.SQLiteStore) {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	db := helpers.NewTestSQLiteStore(t)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy, policy.Limits{
		MaxMessageLength:   cfg.MaxMessageLength,
		MaxSessionMessages: cfg.MaxSessionMessages,
	})
	require.NoError(t, err)
	return New(db, client, NewGuard(cfg), cfg, engine), db
}

func collect(st *Stream) []domain.StreamEvent {
	var events []domain.StreamEvent
	for ev := range st.Events() {
		events = append(events, ev)
	}
	return events
}

func contentOf(events []domain.StreamEvent) string {
	text := ""
	for _, ev := range events {
		if ev.Type == domain.EventTypeContent {
			text += ev.Content
		}
	}
	return text
}

type failingAppendStore struct {
	store.Store
}

func (failingAppendStore) AppendMessage(context.Context, string, *domain.Message) error {
	return errors.New("disk full")
}
