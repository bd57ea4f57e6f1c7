package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	users := NewUserStore(newTestObjects(t))

	created, err := users.CreateUser(ctx, "jo@example.com", "hunter2", "10.0.0.1", "firefox")
	require.NoError(t, err)
	assert.True(t, created)

	assert.True(t, users.Authenticate(ctx, "jo@example.com", "hunter2"))
	assert.False(t, users.Authenticate(ctx, "jo@example.com", "wrong"))
	assert.False(t, users.Authenticate(ctx, "nobody@example.com", "hunter2"))
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	users := NewUserStore(newTestObjects(t))

	created, err := users.CreateUser(ctx, "jo@example.com", "hunter2", "", "")
	require.NoError(t, err)
	require.True(t, created)

	created, err = users.CreateUser(ctx, "jo@example.com", "other", "", "")
	require.NoError(t, err)
	assert.False(t, created)

	// the original password still wins
	assert.True(t, users.Authenticate(ctx, "jo@example.com", "hunter2"))
	assert.False(t, users.Authenticate(ctx, "jo@example.com", "other"))
}

func TestUserPasswordsStoredHashed(t *testing.T) {
	ctx := context.Background()
	objects := newTestObjects(t)
	users := NewUserStore(objects)

	_, err := users.CreateUser(ctx, "jo@example.com", "hunter2", "", "")
	require.NoError(t, err)

	data, err := objects.GetObject(ctx, "users.json")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}

func TestUserSessionLinkage(t *testing.T) {
	ctx := context.Background()
	users := NewUserStore(newTestObjects(t))

	_, err := users.CreateUser(ctx, "jo@example.com", "pw", "", "")
	require.NoError(t, err)

	assert.Empty(t, users.SessionIDs(ctx, "jo@example.com"))

	require.NoError(t, users.AddSession(ctx, "jo@example.com", "s1"))
	require.NoError(t, users.AddSession(ctx, "jo@example.com", "s2"))
	require.NoError(t, users.AddSession(ctx, "jo@example.com", "s3"))
	assert.Equal(t, []string{"s1", "s2", "s3"}, users.SessionIDs(ctx, "jo@example.com"))

	require.NoError(t, users.RemoveSession(ctx, "jo@example.com", "s2"))
	assert.Equal(t, []string{"s1", "s3"}, users.SessionIDs(ctx, "jo@example.com"))

	// unknown emails are a no-op
	require.NoError(t, users.AddSession(ctx, "ghost@example.com", "s9"))
	assert.Empty(t, users.SessionIDs(ctx, "ghost@example.com"))
}
