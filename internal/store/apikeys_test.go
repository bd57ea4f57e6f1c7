package store

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateKey(t *testing.T) {
	ctx := context.Background()
	keys := NewKeyStore(newTestObjects(t))

	generated, err := keys.Generate(ctx, "ci", "jo@example.com", "build bot")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(generated.Secret, SecretPrefix))
	assert.NotEmpty(t, generated.Key.KeyID)
	assert.True(t, generated.Key.IsActive)
	assert.Nil(t, generated.Key.LastUsed)

	key := keys.Validate(ctx, generated.Secret)
	require.NotNil(t, key)
	assert.Equal(t, generated.Key.KeyID, key.KeyID)
	assert.Equal(t, int64(1), key.UsageCount)
	assert.NotNil(t, key.LastUsed)

	assert.Nil(t, keys.Validate(ctx, "archie_not-a-real-secret"))
	assert.Nil(t, keys.Validate(ctx, ""))
}

func TestValidateBumpsUsageCountConcurrently(t *testing.T) {
	ctx := context.Background()
	keys := NewKeyStore(newTestObjects(t))

	generated, err := keys.Generate(ctx, "ci", "jo@example.com", "")
	require.NoError(t, err)

	const calls = 20

	var wg sync.WaitGroup
	for range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, keys.Validate(ctx, generated.Secret))
		}()
	}
	wg.Wait()

	key := keys.Get(ctx, generated.Key.KeyID)
	require.NotNil(t, key)
	assert.Equal(t, int64(calls), key.UsageCount)
}

func TestRevokeKey(t *testing.T) {
	ctx := context.Background()
	keys := NewKeyStore(newTestObjects(t))

	generated, err := keys.Generate(ctx, "ci", "jo@example.com", "")
	require.NoError(t, err)

	// wrong owner cannot revoke
	assert.False(t, keys.Revoke(ctx, generated.Key.KeyID, "stranger@example.com"))
	require.NotNil(t, keys.Validate(ctx, generated.Secret))

	assert.False(t, keys.Revoke(ctx, "no-such-key", "jo@example.com"))

	assert.True(t, keys.Revoke(ctx, generated.Key.KeyID, "jo@example.com"))
	assert.Nil(t, keys.Validate(ctx, generated.Secret))

	key := keys.Get(ctx, generated.Key.KeyID)
	require.NotNil(t, key)
	assert.False(t, key.IsActive)
}

func TestListKeysOmitsDigest(t *testing.T) {
	ctx := context.Background()
	keys := NewKeyStore(newTestObjects(t))

	_, err := keys.Generate(ctx, "one", "jo@example.com", "")
	require.NoError(t, err)
	_, err = keys.Generate(ctx, "two", "jo@example.com", "")
	require.NoError(t, err)
	_, err = keys.Generate(ctx, "other", "stranger@example.com", "")
	require.NoError(t, err)

	listed := keys.List(ctx, "jo@example.com")
	require.Len(t, listed, 2)
	for _, key := range listed {
		assert.Empty(t, key.KeyHash)
		assert.Equal(t, "jo@example.com", key.OwnerEmail)
	}
}

func TestRawSecretNeverPersisted(t *testing.T) {
	ctx := context.Background()
	objects := newTestObjects(t)
	keys := NewKeyStore(objects)

	generated, err := keys.Generate(ctx, "ci", "jo@example.com", "")
	require.NoError(t, err)

	data, err := objects.GetObject(ctx, "api_keys.json")
	require.NoError(t, err)
	assert.NotContains(t, string(data), generated.Secret)
}
