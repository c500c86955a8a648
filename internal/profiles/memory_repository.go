package profiles

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository stores profiles in an in-process map, ideal for local development or tests.
type InMemoryRepository struct {
	mu   sync.RWMutex
	data map[uuid.UUID]Profile
}

// NewInMemoryRepository constructs a repository seeded with optional initial profiles.
func NewInMemoryRepository(initial []Profile) *InMemoryRepository {
	data := make(map[uuid.UUID]Profile, len(initial))
	for _, p := range initial {
		data[p.ID] = p
	}
	return &InMemoryRepository{data: data}
}

// Get returns a profile by user id.
func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.data[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return profile, nil
}

// Insert stores the profile unless one already exists for the id.
func (r *InMemoryRepository) Insert(_ context.Context, profile Profile) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.data[profile.ID]; ok {
		return existing, nil
	}
	r.data[profile.ID] = profile
	return profile, nil
}

// Upsert applies the patch under a single lock.
func (r *InMemoryRepository) Upsert(_ context.Context, base Profile, patch Patch) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.data[base.ID]
	if !ok {
		current = base
	} else {
		current.UpdatedAt = base.UpdatedAt
	}
	updated := patch.Apply(current)
	r.data[base.ID] = updated
	return updated, nil
}
