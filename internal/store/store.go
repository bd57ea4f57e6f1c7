package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"archie-backend/internal/storage"
)

// Store provides serialized read-modify-write access to one persisted JSON
// collection, keyed by string. Loading a missing or unparsable document
// yields an empty collection: corruption degrades to data loss rather than
// taking the service down. The lock is store-scoped and in-process only;
// separate processes sharing the same backing files can still race.
type Store[T any] struct {
	mu      sync.Mutex
	objects storage.ObjectStore
	key     string
}

func NewStore[T any](objects storage.ObjectStore, key string) *Store[T] {
	return &Store[T]{objects: objects, key: key}
}

// Load returns a snapshot of the collection. Mutations to the returned map
// are not persisted; use Mutate for that.
func (s *Store[T]) Load(ctx context.Context) map[string]T {
	data, err := s.objects.GetObject(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			slog.Error("failed to read collection, treating as empty", "key", s.key, "error", err)
		}
		return map[string]T{}
	}

	var entities map[string]T
	if err := json.Unmarshal(data, &entities); err != nil {
		slog.Warn("collection document is corrupted, treating as empty", "key", s.key, "error", err)
		return map[string]T{}
	}
	if entities == nil {
		entities = map[string]T{}
	}
	return entities
}

// Mutate applies transform to the collection under the store lock and
// persists the result as a full-document overwrite. Concurrent callers in
// one process observe serialized read-modify-write cycles.
func (s *Store[T]) Mutate(ctx context.Context, transform func(entities map[string]T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entities := s.Load(ctx)
	if err := transform(entities); err != nil {
		return err
	}
	return s.save(ctx, entities)
}

func (s *Store[T]) save(ctx context.Context, entities map[string]T) error {
	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize collection %s: %w", s.key, err)
	}
	if err := s.objects.PutObject(ctx, s.key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to persist collection %s: %w", s.key, err)
	}
	return nil
}

// randomToken returns n bytes of cryptographically secure randomness in the
// URL-safe base64 alphabet without padding.
func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
