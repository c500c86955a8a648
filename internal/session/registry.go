package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/tomb.v2"
)

const defaultInboxSize = 20

// Factory builds the Manager for the browser whose session storage key is key.
// notifier must be passed through to the Manager.
type Factory func(key string, notifier Notifier) *Manager

// Browser groups the per-browser state held by the Registry.
type Browser struct {
	Key     string
	Manager *Manager
	Inbox   *Inbox
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleTTL evicts Managers untouched for ttl. Zero disables eviction.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.idleTTL = ttl
	}
}

// WithSharedNotifier receives every browser's notifications in addition to
// its inbox.
func WithSharedNotifier(n Notifier) RegistryOption {
	return func(r *Registry) {
		r.shared = n
	}
}

// WithRegistryMetrics reports the number of live Managers.
func WithRegistryMetrics(metrics Metrics) RegistryOption {
	return func(r *Registry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithSweep runs fn on every eviction pass, e.g. to purge expired persisted
// sessions.
func WithSweep(fn func(ctx context.Context)) RegistryOption {
	return func(r *Registry) {
		r.sweep = fn
	}
}

// Registry owns every live Manager, keyed by browser session key. It is
// created at startup and closed at shutdown.
type Registry struct {
	factory Factory
	logger  *slog.Logger
	idleTTL time.Duration
	shared  Notifier
	metrics Metrics
	sweep   func(ctx context.Context)

	mu       sync.RWMutex
	browsers map[string]*Browser
	closed   bool

	t tomb.Tomb
}

// NewRegistry creates a Registry and starts its eviction loop.
func NewRegistry(factory Factory, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		factory:  factory,
		logger:   logger,
		metrics:  nopMetrics{},
		browsers: make(map[string]*Browser),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.t.Go(r.janitor)
	return r
}

// Get returns the live Browser for key without creating one.
func (r *Registry) Get(key string) (*Browser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.browsers[key]
	return b, ok
}

// Open returns the Browser for key, creating and initializing its Manager on
// first use. Concurrent callers for a new key share one Manager; only the
// creator waits for initialization.
func (r *Registry) Open(ctx context.Context, key string) (*Browser, error) {
	if b, ok := r.Get(key); ok {
		return b, nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if b, ok := r.browsers[key]; ok {
		r.mu.Unlock()
		return b, nil
	}
	inbox := NewInbox(defaultInboxSize)
	notifier := Notifier(inbox)
	if r.shared != nil {
		notifier = MultiNotifier{inbox, r.shared}
	}
	b := &Browser{Key: key, Manager: r.factory(key, notifier), Inbox: inbox}
	r.browsers[key] = b
	count := len(r.browsers)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(count)

	if _, err := b.Manager.Initialize(ctx); err != nil {
		return b, err
	}
	return b, nil
}

// Remove closes and forgets the Manager for key. The persisted provider
// session is untouched.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	b, ok := r.browsers[key]
	delete(r.browsers, key)
	count := len(r.browsers)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.metrics.SetActiveSessions(count)
	if err := b.Manager.Close(); err != nil {
		r.logger.Warn("close session manager", "error", err)
	}
}

// Len returns the number of live Managers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.browsers)
}

// EvictIdle closes Managers whose last activity is older than the idle TTL
// at now and returns how many were evicted.
func (r *Registry) EvictIdle(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Browser
	for key, b := range r.browsers {
		if b.Manager.LastActive().Before(cutoff) {
			idle = append(idle, b)
			delete(r.browsers, key)
		}
	}
	count := len(r.browsers)
	r.mu.Unlock()

	if len(idle) == 0 {
		return 0
	}
	r.metrics.SetActiveSessions(count)
	for _, b := range idle {
		if err := b.Manager.Close(); err != nil {
			r.logger.Warn("close idle session manager", "error", err)
		}
	}
	r.logger.Debug("evicted idle sessions", "count", len(idle))
	return len(idle)
}

func (r *Registry) janitor() error {
	if r.idleTTL <= 0 && r.sweep == nil {
		<-r.t.Dying()
		return nil
	}

	interval := r.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.t.Dying():
			return nil
		case now := <-ticker.C:
			r.EvictIdle(now)
			if r.sweep != nil {
				r.sweep(r.t.Context(nil))
			}
		}
	}
}

// Close stops eviction and closes every Manager.
func (r *Registry) Close() error {
	r.t.Kill(nil)
	err := r.t.Wait()

	r.mu.Lock()
	r.closed = true
	browsers := r.browsers
	r.browsers = make(map[string]*Browser)
	r.mu.Unlock()

	for _, b := range browsers {
		if cerr := b.Manager.Close(); cerr != nil {
			r.logger.Warn("close session manager", "error", cerr)
		}
	}
	r.metrics.SetActiveSessions(0)
	return err
}
