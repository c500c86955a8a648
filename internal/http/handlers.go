package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"eventhub/internal/avatars"
	"eventhub/internal/events"
	"eventhub/internal/jokes"
	"eventhub/internal/profiles"
	"eventhub/internal/provider"
	"eventhub/internal/session"
)

const maxJSONBodyBytes int64 = 1 << 20

var errPayloadTooLarge = errors.New("payload too large")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	// Generic message so JSON parser details are not echoed back.
	writeError(w, http.StatusBadRequest, "invalid request body")
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps domain and provider errors onto HTTP responses.
// Unexpected errors are logged and reported without detail.
func handleServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var (
		profileErr *profiles.ValidationError
		eventErr   *events.ValidationError
		avatarErr  *avatars.ValidationError
		perr       *provider.Error
	)

	switch {
	case errors.As(err, &profileErr):
		writeError(w, http.StatusBadRequest, profileErr.Message)
	case errors.As(err, &eventErr):
		writeError(w, http.StatusBadRequest, eventErr.Message)
	case errors.As(err, &avatarErr):
		writeError(w, http.StatusBadRequest, avatarErr.Message)
	case errors.Is(err, jokes.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrUnauthenticated), errors.Is(err, provider.ErrNoSession):
		unauthorized(w)
	case errors.Is(err, session.ErrSessionMismatch):
		writeError(w, http.StatusUnauthorized, session.Message(err))
	case errors.Is(err, events.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, events.ErrNotFound), errors.Is(err, profiles.ErrNotFound), errors.Is(err, jokes.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, events.ErrNotRegistered):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, events.ErrAlreadyRegistered), errors.Is(err, events.ErrEventFull):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "session is closing, please retry")
	case errors.As(err, &perr) && perr.Status >= 400 && perr.Status < 500:
		status := http.StatusBadRequest
		if perr.Status == http.StatusUnauthorized || perr.Status == http.StatusForbidden {
			status = http.StatusUnauthorized
		}
		writeError(w, status, session.Message(err))
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}
