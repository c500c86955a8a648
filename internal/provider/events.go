package provider

import "sync"

// AuthEventKind names a change in the browser's auth state.
type AuthEventKind string

const (
	EventInitialSession   AuthEventKind = "INITIAL_SESSION"
	EventSignedIn         AuthEventKind = "SIGNED_IN"
	EventSignedOut        AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed   AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEventKind = "USER_UPDATED"
	EventPasswordRecovery AuthEventKind = "PASSWORD_RECOVERY"
)

// AuthEvent carries the new session, which is nil after sign-out.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// Listener receives auth events. It is called on the goroutine that caused
// the change and must not block.
type Listener func(AuthEvent)

// Subscription detaches a Listener.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery to the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type listeners struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]Listener
}

func (l *listeners) add(fn Listener) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]Listener)
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	return &Subscription{cancel: func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}}
}

func (l *listeners) emit(event AuthEvent) {
	l.mu.Lock()
	fns := make([]Listener, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// NewSubscription wraps cancel as a Subscription, for AuthClient substitutes.
func NewSubscription(cancel func()) *Subscription {
	if cancel == nil {
		cancel = func() {}
	}
	return &Subscription{cancel: cancel}
}
