package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"eventhub/internal/provider"
)

// DefaultSessionTTL bounds how long an unused browser session keeps its
// provider state. Every save slides the expiry forward.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Service issues browser tokens and persists the provider session behind each.
type Service struct {
	repo       Repository
	sessionTTL time.Duration
	now        func() time.Time
}

// NewService creates a new auth Service.
func NewService(repo Repository, sessionTTL time.Duration) *Service {
	if sessionTTL == 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{
		repo:       repo,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// NewBrowserToken generates a cryptographically secure browser token. Only
// its hash is ever persisted.
func NewBrowserToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate browser token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tokenBytes), nil
}

// ValidToken reports whether token has the shape NewBrowserToken produces.
func ValidToken(token string) bool {
	if len(token) != 43 || strings.ContainsAny(token, "+/=") {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(decoded) == 32
}

// HashToken returns the SHA-256 hash of the token as a hex string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Storage adapts the repository to the provider client's session storage.
// Storage keys are token hashes.
func (s *Service) Storage() provider.SessionStorage {
	return sessionStorage{svc: s}
}

// DeleteSession forgets the provider session behind token.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, HashToken(token))
}

// CleanupExpiredSessions removes all expired sessions.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}

type sessionStorage struct {
	svc *Service
}

func (st sessionStorage) Load(ctx context.Context, key string) (*provider.Session, error) {
	stored, err := st.svc.repo.FindSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	if st.svc.now().After(stored.ExpiresAt) {
		_ = st.svc.repo.DeleteSession(ctx, key)
		return nil, nil
	}
	session := stored.ProviderState
	return &session, nil
}

func (st sessionStorage) Save(ctx context.Context, key string, session *provider.Session) error {
	if session == nil {
		return st.Remove(ctx, key)
	}
	now := st.svc.now()
	if err := st.svc.repo.SaveSession(ctx, BrowserSession{
		TokenHash:     key,
		ProviderState: *session,
		ExpiresAt:     now.Add(st.svc.sessionTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (st sessionStorage) Remove(ctx context.Context, key string) error {
	if err := st.svc.repo.DeleteSession(ctx, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
