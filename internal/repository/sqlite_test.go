package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestSQLiteStoreSessionAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := store.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, domain.DefaultSessionTitle, session.Title)

	require.NoError(t, store.AppendMessage(ctx, session.SessionID, &domain.Message{Role: domain.RoleUser, Content: "hello"}))
	require.NoError(t, store.AppendMessage(ctx, session.SessionID, &domain.Message{Role: domain.RoleAssistant, Content: "hi there"}))
	require.NoError(t, store.AppendMessage(ctx, session.SessionID, &domain.Message{Role: domain.RoleUser, Content: "second question"}))

	got, err := store.LoadSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "second question", got.Messages[2].Content)
	assert.Equal(t, "hello", got.Title)
	for _, m := range got.Messages {
		assert.NotEmpty(t, m.MessageID)
		assert.Equal(t, session.SessionID, m.SessionID)
		assert.False(t, m.Timestamp.IsZero())
	}
}

func TestSQLiteStoreLoadSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreAppendToMissingSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.AppendMessage(ctx, "missing", &domain.Message{Role: domain.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreAppendRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := store.CreateSession(ctx)
	require.NoError(t, err)
	require.Error(t, store.AppendMessage(ctx, session.SessionID, &domain.Message{Role: "tool", Content: "x"}))

	got, err := store.LoadSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestSQLiteStoreTitleFromFirstUserMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := store.CreateSession(ctx)
	require.NoError(t, err)

	long := strings.Repeat("a", 60)
	require.NoError(t, store.AppendMessage(ctx, session.SessionID, &domain.Message{Role: domain.RoleUser, Content: long}))
	require.NoError(t, store.AppendMessage(ctx, session.SessionID, &domain.Message{Role: domain.RoleUser, Content: "later"}))

	got, err := store.LoadSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 50)+"...", got.Title)
}

func TestSQLiteStoreListSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.now = steppingClock()

	older, err := store.CreateSession(ctx)
	require.NoError(t, err)
	newer, err := store.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, newer.SessionID, &domain.Message{Role: domain.RoleUser, Content: "first"}))
	require.NoError(t, store.AppendMessage(ctx, older.SessionID, &domain.Message{Role: domain.RoleUser, Content: "q"}))
	require.NoError(t, store.AppendMessage(ctx, older.SessionID, &domain.Message{Role: domain.RoleAssistant, Content: "a"}))

	summaries, err := store.ListSessions(ctx, 50)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, older.SessionID, summaries[0].SessionID)
	assert.Equal(t, 2, summaries[0].MessageCount)
	assert.Equal(t, "a", summaries[0].LastMessage)
	assert.Equal(t, newer.SessionID, summaries[1].SessionID)
	assert.Equal(t, "first", summaries[1].LastMessage)

	limited, err := store.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStoreClearAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := store.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, session.SessionID, &domain.Message{Role: domain.RoleUser, Content: "hello"}))

	require.NoError(t, store.ClearSession(ctx, session.SessionID))
	got, err := store.LoadSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	require.NoError(t, store.DeleteSession(ctx, session.SessionID))
	_, err = store.LoadSession(ctx, session.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteSession(ctx, session.SessionID), ErrNotFound)
	assert.ErrorIs(t, store.ClearSession(ctx, session.SessionID), ErrNotFound)
}

func TestSQLiteStoreDeleteSessionsBefore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.now = steppingClock()

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := store.CreateSession(ctx)
		require.NoError(t, err)
		require.NoError(t, store.AppendMessage(ctx, s.SessionID, &domain.Message{Role: domain.RoleUser, Content: "m"}))
		ids = append(ids, s.SessionID)
	}

	// Sessions were created at +1s, +3s and +5s.
	cutoff := time.Date(2026, 1, 1, 12, 0, 4, 0, time.UTC)

	n, err := store.DeleteSessionsBefore(ctx, cutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.DeleteSessionsBefore(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.LoadSession(ctx, ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.LoadSession(ctx, ids[1])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.LoadSession(ctx, ids[2])
	assert.NoError(t, err)
}

func TestSQLiteStorePing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
