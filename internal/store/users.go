package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"archie-backend/internal/storage"
)

const usersKey = "users.json"

type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	IPAddress    string    `json:"ip_address"`
	DeviceInfo   string    `json:"device_info"`
	SessionIDs   []string  `json:"session_ids"`
}

// UserStore manages user accounts in the users.json collection, keyed by
// email. An email identifies at most one account.
type UserStore struct {
	store *Store[User]
}

func NewUserStore(objects storage.ObjectStore) *UserStore {
	return &UserStore{store: NewStore[User](objects, usersKey)}
}

// CreateUser registers a new account with a bcrypt hash of the password and
// an empty session list. Returns false without error if the email is taken.
func (s *UserStore) CreateUser(ctx context.Context, email, password, ipAddress, deviceInfo string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	created := false
	err = s.store.Mutate(ctx, func(users map[string]User) error {
		if _, exists := users[email]; exists {
			return nil
		}
		users[email] = User{
			Email:        email,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
			IPAddress:    ipAddress,
			DeviceInfo:   deviceInfo,
			SessionIDs:   []string{},
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Authenticate reports whether the email exists and the password matches
// its stored hash. Unknown emails and wrong passwords are indistinguishable
// to the caller.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) bool {
	user, ok := s.store.Load(ctx)[email]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// SessionIDs returns the user's session ids in creation order. Unknown
// emails yield an empty list.
func (s *UserStore) SessionIDs(ctx context.Context, email string) []string {
	user, ok := s.store.Load(ctx)[email]
	if !ok {
		return nil
	}
	return user.SessionIDs
}

func (s *UserStore) AddSession(ctx context.Context, email, sessionID string) error {
	return s.store.Mutate(ctx, func(users map[string]User) error {
		user, ok := users[email]
		if !ok {
			return nil
		}
		user.SessionIDs = append(user.SessionIDs, sessionID)
		users[email] = user
		return nil
	})
}

func (s *UserStore) RemoveSession(ctx context.Context, email, sessionID string) error {
	return s.store.Mutate(ctx, func(users map[string]User) error {
		user, ok := users[email]
		if !ok {
			return nil
		}
		kept := user.SessionIDs[:0]
		for _, id := range user.SessionIDs {
			if id != sessionID {
				kept = append(kept, id)
			}
		}
		user.SessionIDs = kept
		users[email] = user
		return nil
	})
}
