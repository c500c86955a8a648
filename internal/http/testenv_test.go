package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/avatars"
	"eventhub/internal/config"
	"eventhub/internal/events"
	"eventhub/internal/exporter"
	"eventhub/internal/importer"
	"eventhub/internal/jokes"
	"eventhub/internal/profiles"
	"eventhub/internal/provider"
	"eventhub/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// accountDirectory stands in for the provider's user table, shared by every
// browser in a test.
type accountDirectory struct {
	mu       sync.Mutex
	accounts map[string]account
}

type account struct {
	password string
	user     provider.User
}

func newAccountDirectory() *accountDirectory {
	return &accountDirectory{accounts: make(map[string]account)}
}

func (d *accountDirectory) add(email, password, fullName string) provider.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	user := provider.User{ID: uuid.New(), Email: email, UserMetadata: map[string]any{"full_name": fullName}}
	d.accounts[email] = account{password: password, user: user}
	return user
}

// fakeAuth is one browser's provider auth client.
type fakeAuth struct {
	dir *accountDirectory

	mu       sync.Mutex
	current  *provider.Session
	listener provider.Listener
	signOut  error
}

func (a *fakeAuth) GetSession(context.Context) (*provider.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, nil
}

func (a *fakeAuth) SignUp(_ context.Context, email, password string, metadata map[string]any) (*provider.User, *provider.Session, error) {
	a.dir.mu.Lock()
	_, exists := a.dir.accounts[email]
	a.dir.mu.Unlock()
	if exists {
		return nil, nil, &provider.Error{Status: http.StatusUnprocessableEntity, Message: "User already registered"}
	}
	name, _ := metadata["full_name"].(string)
	user := a.dir.add(email, password, name)
	// Email confirmation pending: no session yet.
	return &user, nil, nil
}

func (a *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*provider.Session, error) {
	a.dir.mu.Lock()
	acct, ok := a.dir.accounts[email]
	a.dir.mu.Unlock()
	if !ok || acct.password != password {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	session := &provider.Session{
		AccessToken:  "access-" + acct.user.ID.String(),
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         acct.user,
	}
	a.mu.Lock()
	a.current = session
	a.mu.Unlock()
	a.emit(provider.AuthEvent{Kind: provider.EventSignedIn, Session: session})
	return session, nil
}

func (a *fakeAuth) SignOut(context.Context) error {
	a.mu.Lock()
	a.current = nil
	err := a.signOut
	a.mu.Unlock()
	a.emit(provider.AuthEvent{Kind: provider.EventSignedOut})
	return err
}

func (a *fakeAuth) ResetPasswordForEmail(context.Context, string, string) error {
	return nil
}

func (a *fakeAuth) UpdateUser(_ context.Context, attrs provider.UserAttributes) (*provider.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil, provider.ErrNoSession
	}
	user := a.current.User
	return &user, nil
}

func (a *fakeAuth) OnAuthStateChange(fn provider.Listener) *provider.Subscription {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
	return provider.NewSubscription(func() {
		a.mu.Lock()
		a.listener = nil
		a.mu.Unlock()
	})
}

func (a *fakeAuth) emit(event provider.AuthEvent) {
	a.mu.Lock()
	fn := a.listener
	a.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

type avatarStoreStub struct {
	mu      sync.Mutex
	uploads []string
}

func (s *avatarStoreStub) Upload(_ context.Context, bucket, path, _ string, body io.Reader) error {
	_, _ = io.Copy(io.Discard, body)
	s.mu.Lock()
	s.uploads = append(s.uploads, bucket+"/"+path)
	s.mu.Unlock()
	return nil
}

func (s *avatarStoreStub) PublicURL(bucket, path string) string {
	return "https://cdn.example.com/" + bucket + "/" + path
}

type metricsStub struct {
	mu            sync.Mutex
	routes        []string
	registrations []string
}

func (m *metricsStub) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	m.routes = append(m.routes, method+" "+route)
	m.mu.Unlock()
}

func (m *metricsStub) RecordRegistration(action string) {
	m.mu.Lock()
	m.registrations = append(m.registrations, action)
	m.mu.Unlock()
}

type testEnv struct {
	t        *testing.T
	cfg      config.Config
	dir      *accountDirectory
	profiles *profiles.InMemoryRepository
	events   *events.Service
	avatars  *avatarStoreStub
	metrics  *metricsStub
	registry *session.Registry
	router   http.Handler
	jokeFn   jokeInvokerFunc

	mu    sync.Mutex
	auths map[string]*fakeAuth
}

func testConfig() config.Config {
	return config.Config{
		Environment:        "development",
		AllowedOrigins:     []string{"http://localhost:5173"},
		SessionInitTimeout: time.Second,
		AuthRatePerMinute:  0,
	}
}

func newTestEnv(t *testing.T, seed ...events.Event) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		cfg:      testConfig(),
		dir:      newAccountDirectory(),
		profiles: profiles.NewInMemoryRepository(nil),
		avatars:  &avatarStoreStub{},
		metrics:  &metricsStub{},
		auths:    make(map[string]*fakeAuth),
	}
	env.events = events.NewService(events.NewInMemoryRepository(seed))

	sessionCfg := session.Config{
		InitTimeout:      time.Second,
		ResolveTimeout:   time.Second,
		RetryBackoff:     time.Millisecond,
		PasswordResetURL: "http://localhost:5173/reset-password",
	}
	env.registry = session.NewRegistry(func(key string, notifier session.Notifier) *session.Manager {
		fa := &fakeAuth{dir: env.dir}
		env.mu.Lock()
		env.auths[key] = fa
		env.mu.Unlock()
		return session.NewManager(fa, env.profiles, notifier, discardLogger(), sessionCfg)
	}, discardLogger())
	t.Cleanup(func() { _ = env.registry.Close() })

	invoker := jokeInvokerFunc(func(ctx context.Context, name string, query url.Values, out any) error {
		if env.jokeFn == nil {
			return &provider.Error{Status: http.StatusNotFound, Message: "not found"}
		}
		return env.jokeFn(ctx, name, query, out)
	})
	env.router = NewRouter(env.cfg, Dependencies{
		Sessions: env.registry,
		Events:   env.events,
		Importer: importer.NewCSVImporter(env.events),
		Exporter: exporter.NewCSVExporter(env.profiles),
		Avatars: avatars.NewService(func(string) avatars.Store {
			return env.avatars
		}),
		Jokes:   jokes.NewService(invoker),
		Metrics: env.metrics,
	}, discardLogger())
	return env
}

// browser is a cookie-carrying client of the test router.
type browser struct {
	env    *testEnv
	cookie *http.Cookie
}

func (e *testEnv) browser() *browser {
	return &browser{env: e}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.env.t.Helper()
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.env.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == browserCookieName {
			b.cookie = c
		}
	}
	return rec
}

func (b *browser) request(method, path, body string) *httptest.ResponseRecorder {
	b.env.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return b.do(req)
}

// signIn registers an account and signs this browser into it.
func (b *browser) signIn(email, fullName string) provider.User {
	b.env.t.Helper()
	user := b.env.dir.add(email, "secret123", fullName)
	rec := b.request(http.MethodPost, "/api/auth/signin", `{"email":"`+email+`","password":"secret123"}`)
	if rec.Code != http.StatusOK {
		b.env.t.Fatalf("sign in failed: %d %s", rec.Code, rec.Body.String())
	}
	return user
}

type jokeInvokerFunc func(ctx context.Context, name string, query url.Values, out any) error

func (f jokeInvokerFunc) InvokeFunction(ctx context.Context, name string, query url.Values, out any) error {
	return f(ctx, name, query, out)
}
