package auth

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository keeps browser sessions in process memory. Sessions are
// lost on restart.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]BrowserSession
}

// NewInMemoryRepository constructs an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]BrowserSession)}
}

func (r *InMemoryRepository) FindSession(_ context.Context, tokenHash string) (*BrowserSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (r *InMemoryRepository) SaveSession(_ context.Context, session BrowserSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[session.TokenHash]; ok {
		session.CreatedAt = existing.CreatedAt
	}
	r.sessions[session.TokenHash] = session
	return nil
}

func (r *InMemoryRepository) DeleteSession(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, tokenHash)
	return nil
}

func (r *InMemoryRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for hash, session := range r.sessions {
		if session.ExpiresAt.Before(now) {
			delete(r.sessions, hash)
			removed++
		}
	}
	return removed, nil
}
