package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/auth"
	"eventhub/internal/profiles"
	"eventhub/internal/provider"
)

type authStub struct {
	mu       sync.Mutex
	listener provider.Listener

	getSession func(ctx context.Context) (*provider.Session, error)
	signUp     func(ctx context.Context, email, password string, metadata map[string]any) (*provider.User, *provider.Session, error)
	signIn     func(ctx context.Context, email, password string) (*provider.Session, error)
	signOut    func(ctx context.Context) error
	reset      func(ctx context.Context, email, redirectTo string) error
	updateUser func(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error)
}

func (a *authStub) GetSession(ctx context.Context) (*provider.Session, error) {
	if a.getSession != nil {
		return a.getSession(ctx)
	}
	return nil, nil
}

func (a *authStub) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*provider.User, *provider.Session, error) {
	if a.signUp != nil {
		return a.signUp(ctx, email, password, metadata)
	}
	return &provider.User{ID: uuid.New(), Email: email}, nil, nil
}

func (a *authStub) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	if a.signIn != nil {
		return a.signIn(ctx, email, password)
	}
	return nil, &provider.Error{Status: 400, Message: "Invalid login credentials"}
}

func (a *authStub) SignOut(ctx context.Context) error {
	var err error
	if a.signOut != nil {
		err = a.signOut(ctx)
	}
	a.emit(provider.AuthEvent{Kind: provider.EventSignedOut})
	return err
}

func (a *authStub) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	if a.reset != nil {
		return a.reset(ctx, email, redirectTo)
	}
	return nil
}

func (a *authStub) UpdateUser(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error) {
	if a.updateUser != nil {
		return a.updateUser(ctx, attrs)
	}
	return &provider.User{}, nil
}

func (a *authStub) OnAuthStateChange(fn provider.Listener) *provider.Subscription {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
	return provider.NewSubscription(func() {
		a.mu.Lock()
		a.listener = nil
		a.mu.Unlock()
	})
}

func (a *authStub) emit(event provider.AuthEvent) {
	a.mu.Lock()
	fn := a.listener
	a.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

func (a *authStub) subscribed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener != nil
}

// signInAs makes password sign-in succeed for user, emitting SIGNED_IN the
// way the provider client does.
func (a *authStub) signInAs(user provider.User) {
	a.signIn = func(ctx context.Context, email, password string) (*provider.Session, error) {
		session := newSession(user)
		a.emit(provider.AuthEvent{Kind: provider.EventSignedIn, Session: session})
		return session, nil
	}
}

type profileRepoStub struct {
	get    func(ctx context.Context, id uuid.UUID) (profiles.Profile, error)
	insert func(ctx context.Context, profile profiles.Profile) (profiles.Profile, error)
	upsert func(ctx context.Context, base profiles.Profile, patch profiles.Patch) (profiles.Profile, error)

	gets    atomic.Int32
	inserts atomic.Int32
	upserts atomic.Int32
}

func (r *profileRepoStub) Get(ctx context.Context, id uuid.UUID) (profiles.Profile, error) {
	r.gets.Add(1)
	if r.get != nil {
		return r.get(ctx, id)
	}
	return profiles.Profile{}, profiles.ErrNotFound
}

func (r *profileRepoStub) Insert(ctx context.Context, profile profiles.Profile) (profiles.Profile, error) {
	r.inserts.Add(1)
	if r.insert != nil {
		return r.insert(ctx, profile)
	}
	return profile, nil
}

func (r *profileRepoStub) Upsert(ctx context.Context, base profiles.Profile, patch profiles.Patch) (profiles.Profile, error) {
	r.upserts.Add(1)
	if r.upsert != nil {
		return r.upsert(ctx, base, patch)
	}
	return patch.Apply(base), nil
}

type verifierStub struct {
	subject uuid.UUID
}

func (v verifierStub) Verify(context.Context, string) (auth.Claims, error) {
	return auth.Claims{Subject: v.subject}, nil
}

func newUser(email, fullName string) provider.User {
	user := provider.User{ID: uuid.New(), Email: email}
	if fullName != "" {
		user.UserMetadata = map[string]any{"full_name": fullName}
	}
	return user
}

func newSession(user provider.User) *provider.Session {
	return &provider.Session{
		AccessToken:  "access-" + user.ID.String(),
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         user,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		InitTimeout:      200 * time.Millisecond,
		ResolveTimeout:   500 * time.Millisecond,
		ProfileRetries:   2,
		RetryBackoff:     time.Millisecond,
		PasswordResetURL: "https://events.example.com/reset-password",
	}
}

func newTestManager(t *testing.T, a AuthProvider, repo profiles.Repository, notifier Notifier, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(a, repo, notifier, discardLogger(), testConfig(), opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitUntil(t *testing.T, m *Manager, done func(Snapshot) bool) Snapshot {
	t.Helper()
	snap, err := m.waitFor(testContext(t), done)
	if err != nil {
		t.Fatalf("state never reached: %v (last %+v)", err, snap)
	}
	return snap
}
