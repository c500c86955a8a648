// Package session keeps one browser's view of {session, user, profile,
// loading} consistent with the hosted auth provider. Every state write goes
// through a single goroutine that drains a serialized queue of commands and
// provider auth events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/tomb.v2"

	"eventhub/internal/auth"
	"eventhub/internal/profiles"
	"eventhub/internal/provider"
)

var (
	// ErrUnauthenticated is returned before any network call when an operation
	// needs a signed-in user.
	ErrUnauthenticated = errors.New("session: no authenticated user")
	// ErrClosed is returned once the Manager has been closed.
	ErrClosed = errors.New("session: manager closed")
	// ErrSessionMismatch is returned when the access token was issued to a
	// different user than the session claims.
	ErrSessionMismatch = errors.New("session: access token does not belong to the session user")
)

// Phase is the Manager's position in the auth state machine.
type Phase string

const (
	PhaseUnknown         Phase = "unknown"
	PhaseResolving       Phase = "resolving"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
	// PhaseTimedOut means the provider did not answer in time: the auth state
	// is unknown, not confirmed absent.
	PhaseTimedOut Phase = "timed_out"
)

// Settled reports whether the phase is terminal until the next auth change.
func (p Phase) Settled() bool {
	return p == PhaseAuthenticated || p == PhaseUnauthenticated || p == PhaseTimedOut
}

// AuthProvider is the slice of the provider auth client the Manager drives.
// *provider.AuthClient implements it.
type AuthProvider interface {
	GetSession(ctx context.Context) (*provider.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*provider.User, *provider.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error)
	OnAuthStateChange(fn provider.Listener) *provider.Subscription
}

type autoRefresher interface {
	AutoRefresh(ctx context.Context, interval time.Duration)
}

// TokenVerifier checks that an access token really belongs to its session.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (auth.Claims, error)
}

// Config tunes timing and retry behaviour.
type Config struct {
	// InitTimeout bounds the provider session lookup in Initialize.
	InitTimeout time.Duration
	// ResolveTimeout bounds one profile resolution, retries included.
	ResolveTimeout time.Duration
	// ProfileRetries is how many times a transient profile fetch error is retried.
	ProfileRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
	// RefreshInterval drives background token refresh; zero disables it.
	RefreshInterval time.Duration
	// PasswordResetURL is where recovery emails link back to.
	PasswordResetURL string
}

func (c Config) withDefaults() Config {
	if c.InitTimeout <= 0 {
		c.InitTimeout = 5 * time.Second
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = c.InitTimeout
	}
	if c.ProfileRetries < 0 {
		c.ProfileRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	return c
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{ProfileRetries: 3}.withDefaults()
}

// Snapshot is an immutable view of the Manager state. The pointed-to values
// are never mutated after publication.
type Snapshot struct {
	Phase   Phase             `json:"phase"`
	Session *provider.Session `json:"-"`
	User    *provider.User    `json:"user"`
	Profile *profiles.Profile `json:"profile"`
	Loading bool              `json:"loading"`
	Version uint64            `json:"-"`
}

// Authenticated reports whether a user is present.
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for profile timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithVerifier rejects sessions whose access token subject differs from the
// session user.
func WithVerifier(v TokenVerifier) Option {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithMetrics reports operations and profile resolutions to metrics.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// loopState is owned by the loop goroutine.
type loopState struct {
	phase     Phase
	session   *provider.Session
	user      *provider.User
	profile   *profiles.Profile
	resolving bool
}

// Manager is the session state holder for one browser.
type Manager struct {
	auth     AuthProvider
	profiles profiles.Repository
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	verifier TokenVerifier
	metrics  Metrics

	t        tomb.Tomb
	commands chan command
	wake     chan struct{}
	sub      *provider.Subscription
	closing  sync.Once

	pendingMu sync.Mutex
	pending   []provider.AuthEvent

	// loop-owned
	st         loopState
	gen        uint64
	resolveSeq uint64
	inflight   int
	dirty      bool

	mu      sync.RWMutex
	snap    Snapshot
	changed chan struct{}

	lastActive atomic.Int64
}

// NewManager subscribes to auth and starts the state loop. Call Initialize to
// resolve the stored session and Close to release the Manager.
func NewManager(authProvider AuthProvider, repo profiles.Repository, notifier Notifier, logger *slog.Logger, cfg Config, opts ...Option) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		auth:     authProvider,
		profiles: repo,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		metrics:  nopMetrics{},
		commands: make(chan command),
		wake:     make(chan struct{}, 1),
		st:       loopState{phase: PhaseUnknown},
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap = Snapshot{Phase: PhaseUnknown, Loading: true}
	m.touch()

	m.sub = authProvider.OnAuthStateChange(m.enqueue)
	m.t.Go(m.loop)
	if r, ok := authProvider.(autoRefresher); ok && m.cfg.RefreshInterval > 0 {
		m.t.Go(func() error {
			r.AutoRefresh(m.t.Context(nil), m.cfg.RefreshInterval)
			return nil
		})
	}
	return m
}

// Close detaches from the provider and stops the loop. Events and results
// arriving afterwards are discarded.
func (m *Manager) Close() error {
	m.closing.Do(func() {
		m.sub.Unsubscribe()
		m.t.Kill(nil)
	})
	return m.t.Wait()
}

// Done is closed once the Manager starts shutting down.
func (m *Manager) Done() <-chan struct{} {
	return m.t.Dying()
}

// LastActive is the last time a caller touched the Manager.
func (m *Manager) LastActive() time.Time {
	return time.Unix(0, m.lastActive.Load())
}

func (m *Manager) touch() {
	m.lastActive.Store(time.Now().UnixNano())
}

// Snapshot returns the latest published state.
func (m *Manager) Snapshot() Snapshot {
	m.touch()
	snap, _ := m.current()
	return snap
}

func (m *Manager) current() (Snapshot, <-chan struct{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap, m.changed
}

// WaitSettled blocks until the phase is settled or ctx is done.
func (m *Manager) WaitSettled(ctx context.Context) (Snapshot, error) {
	return m.waitFor(ctx, func(s Snapshot) bool { return s.Phase.Settled() })
}

func (m *Manager) waitFor(ctx context.Context, done func(Snapshot) bool) (Snapshot, error) {
	for {
		snap, changed := m.current()
		if done(snap) {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-m.t.Dying():
			return snap, ErrClosed
		}
	}
}

// Watch streams snapshots, starting with the current one, until ctx is done
// or the Manager closes. Intermediate snapshots may be skipped when the
// receiver is slow; the latest one is always delivered.
func (m *Manager) Watch(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		sent := false
		var last uint64
		for {
			snap, changed := m.current()
			if !sent || snap.Version != last {
				select {
				case out <- snap:
					sent, last = true, snap.Version
				case <-ctx.Done():
					return
				case <-m.t.Dying():
					return
				}
				continue
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			case <-m.t.Dying():
				return
			}
		}
	}()
	return out
}

// enqueue is the provider listener. It never blocks.
func (m *Manager) enqueue(event provider.AuthEvent) {
	m.pendingMu.Lock()
	m.pending = append(m.pending, event)
	m.pendingMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) loop() error {
	for {
		select {
		case <-m.t.Dying():
			return nil
		case <-m.wake:
			m.drainPending()
		case c := <-m.commands:
			// Events emitted before the command was submitted apply first.
			m.drainPending()
			c.apply()
			m.publish()
			if c.applied != nil {
				close(c.applied)
			}
		}
		m.publish()
	}
}

type command struct {
	apply   func()
	applied chan struct{}
}

func (m *Manager) drainPending() {
	m.pendingMu.Lock()
	events := m.pending
	m.pending = nil
	m.pendingMu.Unlock()

	for _, event := range events {
		m.handleEvent(event)
	}
}

func (m *Manager) submit(f func()) error {
	return m.send(command{apply: f})
}

func (m *Manager) send(c command) error {
	select {
	case <-m.t.Dying():
		return ErrClosed
	case m.commands <- c:
		return nil
	}
}

// do runs f on the loop and waits until its effect is published.
func (m *Manager) do(ctx context.Context, f func()) error {
	applied := make(chan struct{})
	if err := m.send(command{apply: f, applied: applied}); err != nil {
		return err
	}
	select {
	case <-applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.t.Dying():
		return ErrClosed
	}
}

func (m *Manager) publish() {
	if !m.dirty {
		return
	}
	m.dirty = false

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap = Snapshot{
		Phase:   m.st.phase,
		Session: m.st.session,
		User:    m.st.user,
		Profile: m.st.profile,
		Loading: !m.st.phase.Settled() || m.inflight > 0,
		Version: m.snap.Version + 1,
	}
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Manager) handleEvent(event provider.AuthEvent) {
	m.logger.Debug("auth event", "event", string(event.Kind))

	switch event.Kind {
	case provider.EventSignedOut:
		m.clear()
	case provider.EventSignedIn, provider.EventTokenRefreshed, provider.EventUserUpdated,
		provider.EventInitialSession, provider.EventPasswordRecovery:
		if event.Session != nil && event.Session.User.ID != uuid.Nil {
			m.adopt(event.Session)
		}
	}
}

// adopt installs session and starts profile resolution unless the same
// user's profile is already present or being resolved.
func (m *Manager) adopt(session *provider.Session) {
	s := *session
	user := s.User
	same := m.st.user != nil && m.st.user.ID == user.ID

	m.st.session = &s
	m.st.user = &user
	m.dirty = true

	if same && (m.st.profile != nil || m.st.resolving) {
		return
	}
	if !same {
		m.gen++
		m.st.profile = nil
	}
	m.st.phase = PhaseResolving
	m.st.resolving = true
	m.resolveSeq++
	seq := m.resolveSeq

	m.t.Go(func() error {
		ctx, cancel := context.WithTimeout(m.t.Context(nil), m.cfg.ResolveTimeout)
		defer cancel()

		profile := m.ensureProfile(ctx, user)
		_ = m.submit(func() { m.applyResolved(seq, profile) })
		return nil
	})
}

func (m *Manager) applyResolved(seq uint64, profile profiles.Profile) {
	if seq != m.resolveSeq || m.st.user == nil || m.st.user.ID != profile.ID {
		return
	}
	m.setProfile(profile)
}

// applyProfile installs a profile obtained outside the resolution path and
// supersedes any resolution in flight.
func (m *Manager) applyProfile(profile profiles.Profile) {
	if m.st.user == nil || m.st.user.ID != profile.ID {
		return
	}
	m.resolveSeq++
	m.setProfile(profile)
}

func (m *Manager) setProfile(profile profiles.Profile) {
	m.st.profile = &profile
	m.st.resolving = false
	m.st.phase = PhaseAuthenticated
	m.dirty = true
}

func (m *Manager) clear() {
	m.st = loopState{phase: PhaseUnauthenticated}
	m.gen++
	m.resolveSeq++
	m.dirty = true
}

// settleAnonymous settles an initialization that found no usable session,
// unless an auth event changed the state in the meantime.
func (m *Manager) settleAnonymous(gen uint64, phase Phase) {
	if m.gen != gen || m.st.user != nil {
		return
	}
	m.st.phase = phase
	m.dirty = true
}

// beginOp marks an imperative operation in flight. The returned func ends it,
// waits for the change to be published and returns the resulting snapshot;
// calling it again is a no-op.
func (m *Manager) beginOp() func() Snapshot {
	m.touch()
	if err := m.submit(func() {
		m.inflight++
		m.dirty = true
	}); err != nil {
		return m.Snapshot
	}

	var once sync.Once
	return func() Snapshot {
		once.Do(func() {
			_ = m.do(context.Background(), func() {
				m.inflight--
				m.dirty = true
			})
		})
		return m.Snapshot()
	}
}
