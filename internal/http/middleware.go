package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"eventhub/internal/auth"
	"eventhub/internal/session"
)

const (
	browserCookieName = "eventhub_session"
	browserCookieTTL  = auth.DefaultSessionTTL
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer for
// flushing server-sent events.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

func newSlogMiddleware(logger *slog.Logger, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", duration.String())
			if recorder != nil {
				recorder.RecordHTTPRequest(r.Method, routePattern(r), rec.status, duration)
			}
		})
	}
}

// routePattern keeps metric labels bounded by using the matched chi pattern
// instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const browserContextKey contextKey = "browser"

// BrowserFromContext returns the browser session attached by the session
// middleware, or nil.
func BrowserFromContext(ctx context.Context) *session.Browser {
	b, _ := ctx.Value(browserContextKey).(*session.Browser)
	return b
}

// newBrowserSessionMiddleware resolves the opaque browser cookie to its
// session Manager, issuing a fresh cookie when none (or a malformed one) is
// presented. Only the cookie's hash is used as the registry key.
func newBrowserSessionMiddleware(registry *session.Registry, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if cookie, err := r.Cookie(browserCookieName); err == nil && auth.ValidToken(cookie.Value) {
				token = cookie.Value
			}
			if token == "" {
				fresh, err := auth.NewBrowserToken()
				if err != nil {
					logger.Error("generate browser token", "error", err)
					writeError(w, http.StatusInternalServerError, "unexpected error")
					return
				}
				token = fresh
			}
			// Refreshing the cookie on every visit slides its expiry along
			// with the persisted session.
			http.SetCookie(w, browserCookie(token, secure))

			browser, err := registry.Open(r.Context(), auth.HashToken(token))
			if browser == nil {
				if errors.Is(err, session.ErrClosed) {
					writeError(w, http.StatusServiceUnavailable, "server is shutting down")
					return
				}
				logger.Error("open browser session", "error", err)
				writeError(w, http.StatusInternalServerError, "unexpected error")
				return
			}
			if err != nil && r.Context().Err() == nil {
				logger.Warn("initialize browser session", "error", err)
			}

			ctx := context.WithValue(r.Context(), browserContextKey, browser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func browserCookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     browserCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(browserCookieTTL.Seconds()),
		Expires:  time.Now().Add(browserCookieTTL),
	}
}

// newRequireAuthMiddleware waits, at most settleTimeout, for the browser's
// session to settle and then admits only signed-in users.
func newRequireAuthMiddleware(settleTimeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			browser := BrowserFromContext(r.Context())
			if browser == nil {
				unauthorized(w)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
			snap, err := browser.Manager.WaitSettled(ctx)
			cancel()
			if err != nil && r.Context().Err() != nil {
				return
			}
			if snap.User == nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
