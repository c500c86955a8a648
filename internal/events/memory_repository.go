package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository stores events in an in-process map, ideal for local development or tests.
type InMemoryRepository struct {
	mu            sync.RWMutex
	data          map[uuid.UUID]Event
	order         []uuid.UUID
	registrations map[uuid.UUID][]Registration
}

// NewInMemoryRepository constructs a repository seeded with optional initial events.
func NewInMemoryRepository(initial []Event) *InMemoryRepository {
	repo := &InMemoryRepository{
		data:          make(map[uuid.UUID]Event),
		order:         make([]uuid.UUID, 0, len(initial)),
		registrations: make(map[uuid.UUID][]Registration),
	}
	for _, event := range initial {
		event.Attendees = 0
		repo.data[event.ID] = event
		repo.order = append(repo.order, event.ID)
	}
	return repo
}

// Create stores a new event.
func (r *InMemoryRepository) Create(_ context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.Attendees = 0
	r.data[event.ID] = event
	r.order = append(r.order, event.ID)
	return event, nil
}

// Get returns an event by ID.
func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.data[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return r.withCount(event), nil
}

// List returns stored events matching opts.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]Event, error) {
	return r.filter(opts.Matches), nil
}

// Delete removes an event and its registrations.
func (r *InMemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	delete(r.registrations, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListByOrganizer returns events created by organizerID.
func (r *InMemoryRepository) ListByOrganizer(_ context.Context, organizerID uuid.UUID) ([]Event, error) {
	return r.filter(func(e Event) bool { return e.OrganizedBy(organizerID) }), nil
}

// ListRegistered returns events userID registered for.
func (r *InMemoryRepository) ListRegistered(_ context.Context, userID uuid.UUID) ([]Event, error) {
	r.mu.RLock()
	registered := make(map[uuid.UUID]bool)
	for eventID, regs := range r.registrations {
		for _, reg := range regs {
			if reg.UserID == userID {
				registered[eventID] = true
			}
		}
	}
	r.mu.RUnlock()

	return r.filter(func(e Event) bool { return registered[e.ID] }), nil
}

// Register adds a registration, enforcing uniqueness and capacity.
func (r *InMemoryRepository) Register(_ context.Context, reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.data[reg.EventID]
	if !ok {
		return ErrNotFound
	}
	regs := r.registrations[reg.EventID]
	for _, existing := range regs {
		if existing.UserID == reg.UserID {
			return ErrAlreadyRegistered
		}
	}
	if event.Capacity > 0 && len(regs) >= event.Capacity {
		return ErrEventFull
	}
	r.registrations[reg.EventID] = append(regs, reg)
	return nil
}

// Unregister removes userID's registration for eventID.
func (r *InMemoryRepository) Unregister(_ context.Context, eventID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[eventID]; !ok {
		return ErrNotFound
	}
	regs := r.registrations[eventID]
	for i, existing := range regs {
		if existing.UserID == userID {
			r.registrations[eventID] = append(regs[:i:i], regs[i+1:]...)
			return nil
		}
	}
	return ErrNotRegistered
}

// Registrations returns the registrations recorded for eventID.
func (r *InMemoryRepository) Registrations(_ context.Context, eventID uuid.UUID) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.data[eventID]; !ok {
		return nil, ErrNotFound
	}
	regs := r.registrations[eventID]
	out := make([]Registration, len(regs))
	copy(out, regs)
	return out, nil
}

func (r *InMemoryRepository) filter(keep func(Event) bool) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]Event, 0, len(r.order))
	for _, id := range r.order {
		event, ok := r.data[id]
		if !ok {
			continue
		}
		event = r.withCount(event)
		if keep(event) {
			events = append(events, event)
		}
	}
	return events
}

func (r *InMemoryRepository) withCount(event Event) Event {
	event.Attendees = len(r.registrations[event.ID])
	return event
}
