package http

import (
	"errors"
	"net/http"

	"log/slog"

	"eventhub/internal/avatars"
	"eventhub/internal/profiles"
)

// multipart framing on top of the image itself
const maxAvatarUploadBytes = avatars.MaxBytes + 512<<10

// ProfileHandler serves the signed-in user's profile. Every route is behind
// requireAuth.
type ProfileHandler struct {
	avatars *avatars.Service
	logger  *slog.Logger
}

// NewProfileHandler creates a handler.
func NewProfileHandler(avatarSvc *avatars.Service, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{avatars: avatarSvc, logger: logger}
}

// Get returns the user and the resolved profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := BrowserFromContext(r.Context()).Manager.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"user": snap.User, "profile": snap.Profile})
}

// Update applies a partial update to the display name and bio.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FullName *string `json:"full_name"`
		Bio      *string `json:"bio"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	patch := profiles.Patch{FullName: payload.FullName, Bio: payload.Bio}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	profile, err := BrowserFromContext(r.Context()).Manager.UpdateProfile(r.Context(), patch)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Refresh re-reads the profile from the store.
func (h *ProfileHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	profile, err := BrowserFromContext(r.Context()).Manager.RefreshProfile(r.Context())
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if profile == nil {
		unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UploadAvatar stores the multipart "file" image and points the profile at it.
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusNotImplemented, "avatar upload is not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarUploadBytes)
	if err := r.ParseMultipartForm(maxAvatarUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Avatar image must be less than 2MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid avatar upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer func() { _ = file.Close() }()

	browser := BrowserFromContext(r.Context())
	snap := browser.Manager.Snapshot()
	if snap.User == nil {
		unauthorized(w)
		return
	}

	url, err := h.avatars.Upload(r.Context(), browser.Key, snap.User.ID, avatars.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	profile, err := browser.Manager.UpdateProfile(r.Context(), profiles.Patch{AvatarURL: &url})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
