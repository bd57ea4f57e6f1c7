package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archie-backend/internal/storage"
)

func newTestCollector(t *testing.T) (*FileCollector, storage.ObjectStore) {
	t.Helper()
	objects, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	return NewFileCollector(objects, "analytics.json"), objects
}

func loadRecords(t *testing.T, objects storage.ObjectStore) []Interaction {
	t.Helper()
	data, err := objects.GetObject(context.Background(), "analytics.json")
	require.NoError(t, err)
	var records []Interaction
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestFileCollectorAppends(t *testing.T) {
	ctx := context.Background()
	collector, objects := newTestCollector(t)

	require.NoError(t, collector.LogInteraction(ctx, Interaction{
		SessionID:             "s1",
		UserEmail:             "jo@example.com",
		Question:              "what time is it?",
		Answer:                "noon",
		GenerationTimeSeconds: 1.23456,
	}))
	require.NoError(t, collector.LogInteraction(ctx, Interaction{
		SessionID: "s2",
		Question:  "hi",
		Answer:    "hello",
	}))

	records := loadRecords(t, objects)
	require.Len(t, records, 2)

	first := records[0]
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, "jo@example.com", first.UserEmail)
	assert.Equal(t, len("what time is it?"), first.QuestionLength)
	assert.Equal(t, len("noon"), first.AnswerLength)
	assert.Equal(t, 1.23, first.GenerationTimeSeconds)

	// anonymous interactions are attributed to "guest"
	assert.Equal(t, "guest", records[1].UserEmail)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestFileCollectorRecoversFromCorruptDocument(t *testing.T) {
	ctx := context.Background()
	collector, objects := newTestCollector(t)

	require.NoError(t, objects.PutObject(ctx, "analytics.json", bytes.NewReader([]byte("not json"))))

	require.NoError(t, collector.LogInteraction(ctx, Interaction{
		SessionID: "s1",
		Question:  "q",
		Answer:    "a",
	}))

	records := loadRecords(t, objects)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID)
}
