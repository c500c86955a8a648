package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"eventhub/internal/events"
	"eventhub/internal/exporter"
	"eventhub/internal/importer"
	"eventhub/internal/session"
)

const (
	maxListLimit          = 50
	maxSearchQueryLength  = 200
	maxCSVUploadBytes     = 5 << 20
	registrationRegister  = "register"
	registrationCancelled = "unregister"
)

// EventHandler exposes browsing, creation, registration and the dashboard.
type EventHandler struct {
	service  *events.Service
	importer *importer.CSVImporter
	exporter *exporter.CSVExporter
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewEventHandler creates a handler.
func NewEventHandler(service *events.Service, importer *importer.CSVImporter, exporter *exporter.CSVExporter, metrics Metrics, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		service:  service,
		importer: importer,
		exporter: exporter,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns events matching the query-string filters.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseEventListOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

func parseEventListOptions(values url.Values) (events.ListOptions, error) {
	opts := events.ListOptions{}

	if rawQuery := strings.TrimSpace(values.Get("query")); rawQuery != "" {
		if len(rawQuery) > maxSearchQueryLength {
			return events.ListOptions{}, fmt.Errorf("query too long (max %d characters)", maxSearchQueryLength)
		}
		opts.Query = rawQuery
	}

	// "all" is what the browse page sends for an unset filter.
	if raw := strings.TrimSpace(values.Get("category")); raw != "" && !strings.EqualFold(raw, "all") {
		category, ok := events.ParseCategory(raw)
		if !ok {
			return events.ListOptions{}, fmt.Errorf("invalid category filter")
		}
		opts.Category = category
	}

	if raw := strings.TrimSpace(values.Get("format")); raw != "" && !strings.EqualFold(raw, "all") {
		format, ok := events.ParseFormat(raw)
		if !ok {
			return events.ListOptions{}, fmt.Errorf("invalid format filter")
		}
		opts.Format = format
	}

	if raw := strings.TrimSpace(values.Get("price")); raw != "" && !strings.EqualFold(raw, "all") {
		price, ok := events.ParsePriceFilter(raw)
		if !ok {
			return events.ListOptions{}, fmt.Errorf("invalid price filter")
		}
		opts.Price = price
	}

	if rawLimit := strings.TrimSpace(values.Get("limit")); rawLimit != "" {
		value, err := strconv.Atoi(rawLimit)
		if err != nil || value <= 0 || value > maxListLimit {
			return events.ListOptions{}, fmt.Errorf("invalid limit filter")
		}
		opts.Limit = &value
	}

	return opts, nil
}

// Get returns one event. Signed-in callers also learn whether they are
// registered.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	event, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	resp := map[string]any{"event": event, "spotsLeft": event.SpotsLeft()}
	if snap, ok := settledSnapshot(r); ok && snap.User != nil {
		registered, err := h.service.IsRegistered(r.Context(), id, snap.User.ID)
		if err != nil {
			handleServiceError(w, err, h.logger)
			return
		}
		resp["registered"] = registered
		resp["isOrganizer"] = event.OrganizedBy(snap.User.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create stores a new event organized by the caller.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload events.CreateEventInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	event, err := h.service.Create(r.Context(), organizerFrom(r), payload)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// Import bulk-creates events from the multipart CSV "file".
func (h *EventHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusNotImplemented, "CSV import is not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCSVUploadBytes)
	if err := r.ParseMultipartForm(maxCSVUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("CSV upload is too large (max %d bytes)", maxErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid CSV upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "CSV file is required")
		return
	}
	defer func() { _ = file.Close() }()

	summary, err := h.importer.Import(r.Context(), file, organizerFrom(r))
	if err != nil {
		if errors.Is(err, importer.ErrInvalidCSV) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("csv import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "bulk import failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Delete removes an event the caller organizes.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Register signs the caller up for an event.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	event, err := h.service.Register(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	h.recordRegistration(registrationRegister)
	writeJSON(w, http.StatusCreated, map[string]any{"event": event, "registered": true, "spotsLeft": event.SpotsLeft()})
}

// Unregister cancels the caller's registration.
func (h *EventHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	event, err := h.service.Unregister(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	h.recordRegistration(registrationCancelled)
	writeJSON(w, http.StatusOK, map[string]any{"event": event, "registered": false, "spotsLeft": event.SpotsLeft()})
}

func (h *EventHandler) recordRegistration(action string) {
	if h.metrics != nil {
		h.metrics.RecordRegistration(action)
	}
}

// ExportAttendees streams the attendee list as CSV. Organizer only.
func (h *EventHandler) ExportAttendees(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusNotImplemented, "CSV export is not available")
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	event, regs, err := h.service.Attendees(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exporter.Filename(event)))
	w.WriteHeader(http.StatusOK)
	if err := h.exporter.Export(r.Context(), w, event, regs); err != nil {
		// Headers are gone; all that is left is to log.
		h.logger.Error("export attendees", "event_id", id, "error", err)
	}
}

// Dashboard returns the caller's organized and registered events.
func (h *EventHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(r.Context(), userID, h.now().UTC())
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// settledSnapshot returns the browser's snapshot when its auth state is known.
func settledSnapshot(r *http.Request) (session.Snapshot, bool) {
	browser := BrowserFromContext(r.Context())
	if browser == nil {
		return session.Snapshot{}, false
	}
	snap := browser.Manager.Snapshot()
	return snap, snap.Phase.Settled()
}

// currentUserID answers 401 itself when the user signed out after
// requireAuth admitted the request.
func currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	snap := BrowserFromContext(r.Context()).Manager.Snapshot()
	if snap.User == nil {
		unauthorized(w)
		return uuid.Nil, false
	}
	return snap.User.ID, true
}

// organizerFrom names the organizer after the profile, falling back to the
// sign-up metadata and then the email.
func organizerFrom(r *http.Request) events.Organizer {
	snap := BrowserFromContext(r.Context()).Manager.Snapshot()
	if snap.User == nil {
		return events.Organizer{}
	}
	name := ""
	if snap.Profile != nil {
		name = snap.Profile.FullName
	}
	if name == "" {
		name = snap.User.FullName()
	}
	if name == "" {
		name = snap.User.Email
	}
	return events.Organizer{ID: snap.User.ID, Name: name}
}
