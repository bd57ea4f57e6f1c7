package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archie-backend/internal/storage"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *UserStore, storage.ObjectStore) {
	t.Helper()
	objects := newTestObjects(t)
	users := NewUserStore(objects)
	return NewSessionStore(objects, users), users, objects
}

func TestCreateSessionRoundtrip(t *testing.T) {
	ctx := context.Background()
	sessions, _, _ := newTestSessionStore(t)

	id, err := sessions.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.True(t, IsValidSessionID(id))

	session := sessions.GetSession(ctx, id)
	require.NotNil(t, session)
	assert.Equal(t, id, session.SessionID)
	assert.Empty(t, session.OwnerEmail)
	assert.Empty(t, session.Messages)
	assert.False(t, session.CreatedAt.IsZero())
}

func TestCreateSessionLinksOwner(t *testing.T) {
	ctx := context.Background()
	sessions, users, _ := newTestSessionStore(t)

	_, err := users.CreateUser(ctx, "jo@example.com", "pw", "", "")
	require.NoError(t, err)

	id1, err := sessions.CreateSession(ctx, "jo@example.com")
	require.NoError(t, err)
	id2, err := sessions.CreateSession(ctx, "jo@example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{id1, id2}, users.SessionIDs(ctx, "jo@example.com"))
}

func TestSessionIDValidation(t *testing.T) {
	hostile := []string{
		"",
		"../evil",
		"a/b",
		"id with spaces",
		"id.json",
		strings.Repeat("a", 65),
	}
	for _, id := range hostile {
		assert.False(t, IsValidSessionID(id), "id %q should be rejected", id)
	}

	assert.True(t, IsValidSessionID("abc_DEF-123"))
	assert.True(t, IsValidSessionID(strings.Repeat("a", 64)))
}

type pathRecordingStore struct {
	storage.ObjectStore
	touched bool
}

func (s *pathRecordingStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	s.touched = true
	return s.ObjectStore.GetObject(ctx, key)
}

func TestHostileSessionIDNeverReachesStorage(t *testing.T) {
	ctx := context.Background()
	objects := &pathRecordingStore{ObjectStore: newTestObjects(t)}
	sessions := NewSessionStore(objects, NewUserStore(objects))

	assert.Nil(t, sessions.GetSession(ctx, "../../etc/passwd"))
	assert.False(t, objects.touched)

	assert.Error(t, sessions.AddMessage(ctx, "../evil", "user", "hi"))
	assert.False(t, objects.touched)
}

func TestAddMessagePreservesOrder(t *testing.T) {
	ctx := context.Background()
	sessions, _, _ := newTestSessionStore(t)

	id, err := sessions.CreateSession(ctx, "")
	require.NoError(t, err)

	require.NoError(t, sessions.AddMessage(ctx, id, "user", "hello"))
	require.NoError(t, sessions.AddMessage(ctx, id, "assistant", "hi there"))
	require.NoError(t, sessions.AddMessage(ctx, id, "user", "how are you?"))

	session := sessions.GetSession(ctx, id)
	require.NotNil(t, session)
	require.Len(t, session.Messages, 3)
	assert.Equal(t, "user", session.Messages[0].Role)
	assert.Equal(t, "hello", session.Messages[0].Content)
	assert.Equal(t, "assistant", session.Messages[1].Role)
	assert.Equal(t, "hi there", session.Messages[1].Content)
	assert.Equal(t, "how are you?", session.Messages[2].Content)
	assert.False(t, session.Messages[0].Timestamp.IsZero())
}

func TestAddMessageCreatesShellSession(t *testing.T) {
	ctx := context.Background()
	sessions, _, _ := newTestSessionStore(t)

	require.NoError(t, sessions.AddMessage(ctx, "orphan-session", "user", "hi"))

	session := sessions.GetSession(ctx, "orphan-session")
	require.NotNil(t, session)
	assert.Empty(t, session.OwnerEmail)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, "hi", session.Messages[0].Content)
}

func TestConversationHistoryWindow(t *testing.T) {
	ctx := context.Background()
	sessions, _, _ := newTestSessionStore(t)

	id, err := sessions.CreateSession(ctx, "")
	require.NoError(t, err)

	for i := range 25 {
		require.NoError(t, sessions.AddMessage(ctx, id, "user", strings.Repeat("x", i+1)))
	}

	history := sessions.GetConversationHistory(ctx, id)
	require.Len(t, history, 10)
	// the most recent 10, oldest first
	assert.Equal(t, strings.Repeat("x", 16), history[0].Content)
	assert.Equal(t, strings.Repeat("x", 25), history[9].Content)

	// the full transcript is still on disk
	session := sessions.GetSession(ctx, id)
	require.NotNil(t, session)
	assert.Len(t, session.Messages, 25)

	assert.Nil(t, sessions.GetConversationHistory(ctx, "no-such-session"))
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	sessions, users, objects := newTestSessionStore(t)

	_, err := users.CreateUser(ctx, "jo@example.com", "pw", "", "")
	require.NoError(t, err)

	id, err := sessions.CreateSession(ctx, "jo@example.com")
	require.NoError(t, err)

	assert.True(t, sessions.DeleteSession(ctx, id, "jo@example.com"))
	assert.Nil(t, sessions.GetSession(ctx, id))
	assert.Empty(t, users.SessionIDs(ctx, "jo@example.com"))

	exists, err := objects.ObjectExists(ctx, "sessions/"+id+".json")
	require.NoError(t, err)
	assert.False(t, exists)

	// already gone
	assert.False(t, sessions.DeleteSession(ctx, id, "jo@example.com"))
	assert.False(t, sessions.DeleteSession(ctx, "never-existed", ""))
	assert.False(t, sessions.DeleteSession(ctx, "../evil", ""))
}

func TestListSessionsWithPreview(t *testing.T) {
	ctx := context.Background()
	sessions, users, _ := newTestSessionStore(t)

	_, err := users.CreateUser(ctx, "jo@example.com", "pw", "", "")
	require.NoError(t, err)

	empty, err := sessions.CreateSession(ctx, "jo@example.com")
	require.NoError(t, err)

	long, err := sessions.CreateSession(ctx, "jo@example.com")
	require.NoError(t, err)
	question := strings.Repeat("q", 150)
	require.NoError(t, sessions.AddMessage(ctx, long, "assistant", "welcome!"))
	require.NoError(t, sessions.AddMessage(ctx, long, "user", question))
	require.NoError(t, sessions.AddMessage(ctx, long, "assistant", "sure"))

	previews := sessions.ListSessionsWithPreview(ctx, "jo@example.com")
	require.Len(t, previews, 2)

	byID := map[string]SessionPreview{}
	for _, p := range previews {
		byID[p.SessionID] = p
	}

	assert.Equal(t, "", byID[empty].Preview)
	assert.Equal(t, 0, byID[empty].MessageCount)

	// preview is the first user message, truncated
	assert.Equal(t, strings.Repeat("q", 100), byID[long].Preview)
	assert.Equal(t, 3, byID[long].MessageCount)

	assert.Empty(t, sessions.ListSessionsWithPreview(ctx, "stranger@example.com"))
}
