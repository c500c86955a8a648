package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// User is the identity record the provider associates with a session.
type User struct {
	ID               uuid.UUID      `json:"id"`
	Email            string         `json:"email"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
}

// MetadataString returns the string stored under key in the user metadata.
func (u User) MetadataString(key string) string {
	if u.UserMetadata == nil {
		return ""
	}
	value, _ := u.UserMetadata[key].(string)
	return strings.TrimSpace(value)
}

// FullName returns the full_name attached at sign-up, if any.
func (u User) FullName() string {
	return u.MetadataString("full_name")
}

// Session is the credential bundle issued by the provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expiry returns the access token expiry time.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// ExpiresWithin reports whether the access token expires within d of now.
func (s *Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	expiry := s.Expiry()
	if expiry.IsZero() {
		return false
	}
	return !now.Add(d).Before(expiry)
}

// Token exposes the session as an oauth2 bearer token.
func (s *Session) Token() *oauth2.Token {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    tokenType,
		RefreshToken: s.RefreshToken,
		Expiry:       s.Expiry(),
	}
}

// normalize fills ExpiresAt from ExpiresIn for servers that omit it.
func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
}

// SessionStorage persists one provider session per storage key. Load returns
// (nil, nil) when nothing is stored.
type SessionStorage interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, session *Session) error
	Remove(ctx context.Context, key string) error
}

// MemoryStorage is a process-local SessionStorage.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: make(map[string]Session)}
}

// Load returns a copy of the stored session.
func (m *MemoryStorage) Load(_ context.Context, key string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// Save stores a copy of session.
func (m *MemoryStorage) Save(_ context.Context, key string, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[key] = *session
	return nil
}

// Remove deletes the stored session.
func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	return nil
}
