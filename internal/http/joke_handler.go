package http

import (
	"net/http"

	"log/slog"

	"eventhub/internal/jokes"
)

// JokeHandler proxies the random-joke edge function.
type JokeHandler struct {
	service *jokes.Service
	logger  *slog.Logger
}

// NewJokeHandler creates a handler.
func NewJokeHandler(service *jokes.Service, logger *slog.Logger) *JokeHandler {
	return &JokeHandler{service: service, logger: logger}
}

// Random returns a joke, optionally from ?category=.
func (h *JokeHandler) Random(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusNotImplemented, "jokes are not available")
		return
	}

	result, err := h.service.Random(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		if r.Context().Err() == nil {
			h.logger.Warn("fetch joke", "error", err)
		}
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
