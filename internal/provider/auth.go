package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// expiryMargin is how close to expiry a stored session is refreshed before use.
const expiryMargin = 10 * time.Second

// AuthClient is the auth sub-interface for one browser. Its session lives in
// storage under key, the way the provider's browser library keeps it in local
// storage.
type AuthClient struct {
	client  *Client
	storage SessionStorage
	key     string

	refreshMu sync.Mutex
	listeners listeners
}

// Auth returns an AuthClient persisting its session in storage under key.
func (c *Client) Auth(storage SessionStorage, key string) *AuthClient {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &AuthClient{client: c, storage: storage, key: key}
}

// OnAuthStateChange registers fn for auth events.
func (a *AuthClient) OnAuthStateChange(fn Listener) *Subscription {
	return a.listeners.add(fn)
}

// UserAttributes are the mutable fields accepted by UpdateUser.
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// SignUp registers a new account. The returned session is nil when the
// provider requires email confirmation first.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*User, *Session, error) {
	payload := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	var raw json.RawMessage
	if err := a.client.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", body: payload}, &raw); err != nil {
		return nil, nil, err
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, nil, fmt.Errorf("provider: decode sign-up response: %w", err)
	}
	if session.AccessToken != "" {
		if err := a.adopt(ctx, &session, EventSignedIn); err != nil {
			return nil, nil, err
		}
		return &session.User, &session, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, nil, fmt.Errorf("provider: decode sign-up user: %w", err)
	}
	return &user, nil, nil
}

// SignInWithPassword exchanges credentials for a session.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("provider: sign-in response carried no session")
	}
	if err := a.adopt(ctx, &session, EventSignedIn); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignOut revokes the session remotely and always forgets it locally. The
// remote error, if any, is returned after local state has been cleared.
func (a *AuthClient) SignOut(ctx context.Context) error {
	session, err := a.storage.Load(ctx, a.key)
	if err != nil {
		return fmt.Errorf("provider: load session: %w", err)
	}

	var remoteErr error
	if session != nil {
		remoteErr = a.client.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			tokens: oauth2.StaticTokenSource(session.Token()),
		}, nil)
		// An already-invalid token still counts as signed out.
		if remoteErr != nil && (IsNotFound(remoteErr) || isUnauthorized(remoteErr)) {
			remoteErr = nil
		}
	}

	if err := a.storage.Remove(ctx, a.key); err != nil && remoteErr == nil {
		remoteErr = fmt.Errorf("provider: remove session: %w", err)
	}
	a.listeners.emit(AuthEvent{Kind: EventSignedOut})
	return remoteErr
}

// GetSession returns the stored session, refreshing it first when the access
// token is about to expire. It returns (nil, nil) when there is no session or
// the provider rejected the refresh token.
func (a *AuthClient) GetSession(ctx context.Context) (*Session, error) {
	session, err := a.storage.Load(ctx, a.key)
	if err != nil {
		return nil, fmt.Errorf("provider: load session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	if !session.ExpiresWithin(expiryMargin, a.client.now()) {
		return session, nil
	}

	refreshed, err := a.RefreshSession(ctx)
	if err != nil {
		if IsClientError(err) || errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

// GetUser fetches the user for the current session from the provider.
func (a *AuthClient) GetUser(ctx context.Context) (*User, error) {
	session, err := a.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}

	var user User
	if err := a.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		tokens: oauth2.StaticTokenSource(session.Token()),
	}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetPasswordForEmail sends a recovery email linking back to redirectTo.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  query,
		body:   map[string]string{"email": email},
	}, nil)
}

// UpdateUser changes attributes of the signed-in user.
func (a *AuthClient) UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error) {
	session, err := a.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}

	var user User
	if err := a.client.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		body:   attrs,
		tokens: oauth2.StaticTokenSource(session.Token()),
	}, &user); err != nil {
		return nil, err
	}

	session.User = user
	if err := a.storage.Save(ctx, a.key, session); err != nil {
		return nil, fmt.Errorf("provider: save session: %w", err)
	}
	a.listeners.emit(AuthEvent{Kind: EventUserUpdated, Session: session})
	return &user, nil
}

// RefreshSession trades the stored refresh token for a new session. A
// rejected refresh token removes the session and emits SIGNED_OUT.
func (a *AuthClient) RefreshSession(ctx context.Context) (*Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	current, err := a.storage.Load(ctx, a.key)
	if err != nil {
		return nil, fmt.Errorf("provider: load session: %w", err)
	}
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}
	// Another caller may have refreshed while this one waited for the lock.
	if !current.ExpiresWithin(expiryMargin, a.client.now()) && a.refreshedRecently(current) {
		return current, nil
	}

	var session Session
	err = a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": current.RefreshToken},
	}, &session)
	if err != nil {
		if IsClientError(err) {
			_ = a.storage.Remove(ctx, a.key)
			a.listeners.emit(AuthEvent{Kind: EventSignedOut})
		}
		return nil, err
	}
	if err := a.adopt(ctx, &session, EventTokenRefreshed); err != nil {
		return nil, err
	}
	return &session, nil
}

// refreshedRecently is true when the stored session was issued less than half
// its lifetime ago, i.e. a concurrent refresh already happened.
func (a *AuthClient) refreshedRecently(s *Session) bool {
	if s.ExpiresIn <= 0 {
		return false
	}
	remaining := s.Expiry().Sub(a.client.now())
	return remaining > time.Duration(s.ExpiresIn)*time.Second/2
}

// AutoRefresh refreshes the session ahead of expiry every interval until ctx
// is done.
func (a *AuthClient) AutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session, err := a.storage.Load(ctx, a.key)
			if err != nil || session == nil {
				continue
			}
			if session.ExpiresWithin(3*interval, a.client.now()) {
				_, _ = a.RefreshSession(ctx)
			}
		}
	}
}

// TokenSource yields the current access token, or the anon key when no user
// is signed in, for authenticating record and storage calls.
func (a *AuthClient) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		session, err := a.GetSession(ctx)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return a.client.anonTokens().Token()
		}
		return session.Token(), nil
	})
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func (a *AuthClient) adopt(ctx context.Context, session *Session, kind AuthEventKind) error {
	session.normalize(a.client.now())
	if err := a.storage.Save(ctx, a.key, session); err != nil {
		return fmt.Errorf("provider: save session: %w", err)
	}
	a.listeners.emit(AuthEvent{Kind: kind, Session: session})
	return nil
}

func isUnauthorized(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && (perr.Status == http.StatusUnauthorized || perr.Status == http.StatusForbidden)
}
