package store

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"archie-backend/internal/storage"
)

const (
	apiKeysKey = "api_keys.json"

	// SecretPrefix makes issued secrets recognizable in configs and logs
	// without revealing anything about their random suffix.
	SecretPrefix = "archie_"
)

type APIKey struct {
	KeyID       string     `json:"key_id"`
	KeyHash     string     `json:"key_hash,omitempty"`
	Name        string     `json:"name"`
	OwnerEmail  string     `json:"owner_email"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used"`
	IsActive    bool       `json:"is_active"`
	UsageCount  int64      `json:"usage_count"`
}

// GeneratedKey carries the raw secret back to the caller. The secret is
// never persisted and cannot be recovered after this value is dropped.
type GeneratedKey struct {
	Key    APIKey
	Secret string
}

// KeyStore manages API credentials in the api_keys.json collection, keyed
// by key_id. Only sha256 digests of secrets are stored.
type KeyStore struct {
	store *Store[APIKey]
}

func NewKeyStore(objects storage.ObjectStore) *KeyStore {
	return &KeyStore{store: NewStore[APIKey](objects, apiKeysKey)}
}

func hashSecret(secret string) string {
	digest := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(digest[:])
}

// Generate mints a new key id and prefixed secret, persists the digest and
// metadata, and returns the secret exactly once.
func (s *KeyStore) Generate(ctx context.Context, name, ownerEmail, description string) (*GeneratedKey, error) {
	keyID := randomToken(16)
	secret := SecretPrefix + randomToken(32)

	key := APIKey{
		KeyID:       keyID,
		KeyHash:     hashSecret(secret),
		Name:        name,
		OwnerEmail:  ownerEmail,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		LastUsed:    nil,
		IsActive:    true,
		UsageCount:  0,
	}

	err := s.store.Mutate(ctx, func(keys map[string]APIKey) error {
		keys[keyID] = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &GeneratedKey{Key: key, Secret: secret}, nil
}

// Validate looks up an active key whose digest matches the candidate
// secret, bumping last_used and usage_count under the store lock before
// returning a copy of the metadata. Returns nil if no active key matches.
// Every call scans all keys and rewrites the collection on a hit.
func (s *KeyStore) Validate(ctx context.Context, secret string) *APIKey {
	if secret == "" {
		return nil
	}

	candidate := hashSecret(secret)

	var matched *APIKey
	err := s.store.Mutate(ctx, func(keys map[string]APIKey) error {
		for id, key := range keys {
			if !key.IsActive {
				continue
			}
			if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(candidate)) != 1 {
				continue
			}

			now := time.Now().UTC()
			key.LastUsed = &now
			key.UsageCount++
			keys[id] = key

			found := key
			matched = &found
			return nil
		}
		return nil
	})
	if err != nil {
		return nil
	}
	return matched
}

// Revoke flips is_active to false. Fails if the key is unknown or the
// owner email does not match. There is no un-revoke.
func (s *KeyStore) Revoke(ctx context.Context, keyID, ownerEmail string) bool {
	revoked := false
	err := s.store.Mutate(ctx, func(keys map[string]APIKey) error {
		key, ok := keys[keyID]
		if !ok || key.OwnerEmail != ownerEmail {
			return nil
		}
		key.IsActive = false
		keys[keyID] = key
		revoked = true
		return nil
	})
	if err != nil {
		return false
	}
	return revoked
}

// List returns all of the owner's keys with the digest field cleared.
func (s *KeyStore) List(ctx context.Context, ownerEmail string) []APIKey {
	var result []APIKey
	for _, key := range s.store.Load(ctx) {
		if key.OwnerEmail != ownerEmail {
			continue
		}
		key.KeyHash = ""
		result = append(result, key)
	}
	return result
}

// Get returns the key's metadata with the digest cleared, or nil.
func (s *KeyStore) Get(ctx context.Context, keyID string) *APIKey {
	key, ok := s.store.Load(ctx)[keyID]
	if !ok {
		return nil
	}
	key.KeyHash = ""
	return &key
}
