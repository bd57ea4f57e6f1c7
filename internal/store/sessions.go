package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"archie-backend/internal/storage"
)

const (
	sessionsPrefix = "sessions"

	// historyWindow bounds how much conversation context is replayed to the
	// generation pipeline. The full transcript stays on disk.
	historyWindow = 10

	previewLength = 100
)

// Session ids are minted from 32 bytes of randomness rendered URL-safe, so
// anything with a path separator or over 64 chars is hostile input.
var validSessionID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	SessionID  string    `json:"session_id"`
	OwnerEmail string    `json:"owner_email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Messages   []Message `json:"messages"`
}

type SessionPreview struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
}

// SessionStore keeps one JSON document per conversation under sessions/,
// and the owner linkage in the user store. Session ids are validated
// against the URL-safe charset before any storage access keyed by them.
type SessionStore struct {
	objects storage.ObjectStore
	users   *UserStore
}

func NewSessionStore(objects storage.ObjectStore, users *UserStore) *SessionStore {
	return &SessionStore{objects: objects, users: users}
}

func IsValidSessionID(id string) bool {
	return validSessionID.MatchString(id)
}

func sessionKey(id string) string {
	return sessionsPrefix + "/" + id + ".json"
}

// CreateSession writes a new empty session and, for logged-in owners, links
// it into the owner's session list. The two updates are separate critical
// sections; a crash in between leaves an unlisted session file behind.
func (s *SessionStore) CreateSession(ctx context.Context, ownerEmail string) (string, error) {
	id := randomToken(32)

	session := Session{
		SessionID:  id,
		OwnerEmail: ownerEmail,
		CreatedAt:  time.Now().UTC(),
		Messages:   []Message{},
	}
	if err := s.save(ctx, &session); err != nil {
		return "", err
	}

	if ownerEmail != "" {
		if err := s.users.AddSession(ctx, ownerEmail, id); err != nil {
			return "", fmt.Errorf("failed to link session to user %s: %w", ownerEmail, err)
		}
	}

	return id, nil
}

// GetSession returns the stored record, or nil for ids that fail validation
// or records that are missing or unparsable. Invalid ids never reach the
// object store.
func (s *SessionStore) GetSession(ctx context.Context, id string) *Session {
	if !IsValidSessionID(id) {
		slog.Warn("rejecting invalid session id", "session_id", id)
		return nil
	}

	data, err := s.objects.GetObject(ctx, sessionKey(id))
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			slog.Error("failed to read session", "session_id", id, "error", err)
		}
		return nil
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Warn("session document is corrupted", "session_id", id, "error", err)
		return nil
	}
	return &session
}

func (s *SessionStore) save(ctx context.Context, session *Session) error {
	if !IsValidSessionID(session.SessionID) {
		return fmt.Errorf("invalid session id format: %q", session.SessionID)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", session.SessionID, err)
	}
	if err := s.objects.PutObject(ctx, sessionKey(session.SessionID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", session.SessionID, err)
	}
	return nil
}

// AddMessage appends a timestamped message and rewrites the whole record,
// creating a shell session if none exists. The load-append-save is not
// serialized against concurrent appends to the same session.
func (s *SessionStore) AddMessage(ctx context.Context, id, role, content string) error {
	if !IsValidSessionID(id) {
		return fmt.Errorf("invalid session id format: %q", id)
	}

	session := s.GetSession(ctx, id)
	if session == nil {
		session = &Session{
			SessionID: id,
			CreatedAt: time.Now().UTC(),
			Messages:  []Message{},
		}
	}

	session.Messages = append(session.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})

	return s.save(ctx, session)
}

// GetConversationHistory returns the session's messages in insertion order,
// bounded to the most recent historyWindow entries.
func (s *SessionStore) GetConversationHistory(ctx context.Context, id string) []Message {
	session := s.GetSession(ctx, id)
	if session == nil {
		return nil
	}
	if len(session.Messages) > historyWindow {
		return session.Messages[len(session.Messages)-historyWindow:]
	}
	return session.Messages
}

// DeleteSession removes the session file and unlinks it from the owner's
// list. Returns false if the id is invalid or the file did not exist.
func (s *SessionStore) DeleteSession(ctx context.Context, id, ownerEmail string) bool {
	if !IsValidSessionID(id) {
		slog.Warn("rejecting invalid session id", "session_id", id)
		return false
	}

	exists, err := s.objects.ObjectExists(ctx, sessionKey(id))
	if err != nil || !exists {
		return false
	}

	if ownerEmail != "" {
		if err := s.users.RemoveSession(ctx, ownerEmail, id); err != nil {
			slog.Error("failed to unlink session from user", "session_id", id, "error", err)
		}
	}

	if err := s.objects.DeleteObject(ctx, sessionKey(id)); err != nil {
		slog.Error("failed to delete session file", "session_id", id, "error", err)
		return false
	}
	return true
}

// ListSessionsWithPreview loads every session owned by the user and returns
// summaries. The preview is the first user message truncated to 100 chars.
// This is an O(n) full-load per listing.
func (s *SessionStore) ListSessionsWithPreview(ctx context.Context, ownerEmail string) []SessionPreview {
	var previews []SessionPreview
	for _, id := range s.users.SessionIDs(ctx, ownerEmail) {
		session := s.GetSession(ctx, id)
		if session == nil {
			continue
		}

		preview := ""
		for _, msg := range session.Messages {
			if msg.Role == "user" {
				preview = truncate(msg.Content, previewLength)
				break
			}
		}

		previews = append(previews, SessionPreview{
			SessionID:    session.SessionID,
			CreatedAt:    session.CreatedAt,
			Preview:      preview,
			MessageCount: len(session.Messages),
		})
	}
	return previews
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
