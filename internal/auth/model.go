package auth

import (
	"context"
	"time"

	"eventhub/internal/provider"
)

// BrowserSession binds an opaque browser cookie to the provider session the
// server holds on that browser's behalf.
type BrowserSession struct {
	TokenHash     string
	ProviderState provider.Session
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository persists browser sessions keyed by the SHA-256 hash of the
// browser token. The raw token is never stored.
type Repository interface {
	// FindSession returns (nil, nil) when no row exists for tokenHash.
	FindSession(ctx context.Context, tokenHash string) (*BrowserSession, error)
	// SaveSession creates the row or replaces its provider state and expiry.
	SaveSession(ctx context.Context, session BrowserSession) error
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
