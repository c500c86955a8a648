package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"eventhub/internal/session"
)

const (
	streamPingInterval = 15 * time.Second
	streamRetryMillis  = 2000
	minPasswordLength  = 6
)

// SessionHandler exposes the browser's Session Manager: its state, the auth
// operations and the notification inbox.
type SessionHandler struct {
	logger *slog.Logger
}

// NewSessionHandler returns a SessionHandler.
func NewSessionHandler(logger *slog.Logger) *SessionHandler {
	return &SessionHandler{logger: logger}
}

type credentialsPayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	FullName        string `json:"fullName,omitempty"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

type authResponse struct {
	session.Snapshot
	ConfirmationRequired bool `json:"confirmationRequired,omitempty"`
}

// Status reports the current snapshot. The manager has already been opened
// (and initialized) by the session middleware.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	browser := BrowserFromContext(r.Context())
	writeJSON(w, http.StatusOK, browser.Manager.Snapshot())
}

// Stream pushes a snapshot as a server-sent event whenever it changes.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	browser := BrowserFromContext(r.Context())
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", streamRetryMillis); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("session stream not flushable", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates := browser.Manager.Watch(ctx)
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "session", snap); err != nil {
				return
			}
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// SignUp creates an account. When the provider withholds a session until the
// email is confirmed, the response flags confirmationRequired.
func (h *SessionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	email, ok := validEmail(payload.Email)
	if !ok || payload.Password == "" || strings.TrimSpace(payload.FullName) == "" {
		writeError(w, http.StatusBadRequest, "Please fill in all fields")
		return
	}
	if payload.ConfirmPassword != "" && payload.ConfirmPassword != payload.Password {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if len(payload.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
		return
	}

	browser := BrowserFromContext(r.Context())
	snap, err := browser.Manager.SignUp(r.Context(), email, payload.Password, strings.TrimSpace(payload.FullName))
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Snapshot: snap, ConfirmationRequired: snap.User == nil})
}

// SignIn authenticates with email and password.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	email, ok := validEmail(payload.Email)
	if !ok || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "Please fill in all fields")
		return
	}

	browser := BrowserFromContext(r.Context())
	snap, err := browser.Manager.SignIn(r.Context(), email, payload.Password)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Snapshot: snap})
}

// SignOut always succeeds locally; a failed provider logout is only logged.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	browser := BrowserFromContext(r.Context())
	snap, err := browser.Manager.SignOut(r.Context())
	if err != nil {
		h.logger.Warn("provider sign out failed", "error", err)
	}
	writeJSON(w, http.StatusOK, snap)
}

// ResetPassword sends a recovery email.
func (h *SessionHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	email, ok := validEmail(payload.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "Please enter a valid email address")
		return
	}

	browser := BrowserFromContext(r.Context())
	if err := browser.Manager.ResetPassword(r.Context(), email); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UpdatePassword sets a new password for the signed-in user.
func (h *SessionHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword,omitempty"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	if len(payload.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
		return
	}
	if payload.ConfirmPassword != "" && payload.ConfirmPassword != payload.Password {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	browser := BrowserFromContext(r.Context())
	if err := browser.Manager.UpdatePassword(r.Context(), payload.Password); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Notifications drains the browser's pending toasts.
func (h *SessionHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	browser := BrowserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"notifications": browser.Inbox.Drain()})
}

func validEmail(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", false
	}
	return value, true
}
