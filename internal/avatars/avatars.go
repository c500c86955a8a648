// Package avatars stores profile pictures in the provider's object storage.
package avatars

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Bucket is the public storage bucket holding avatar objects.
	Bucket = "avatars"
	// MaxBytes is the largest accepted avatar upload.
	MaxBytes = 2 * 1024 * 1024
)

// ErrValidation is returned when an upload is rejected before reaching storage.
var ErrValidation = errors.New("validation error")

// ValidationError carries the user-facing reason an upload was rejected.
type ValidationError struct {
	Title   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Store is the object-storage surface avatars need.
type Store interface {
	Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) error
	PublicURL(bucket, path string) string
}

// StoreOpener returns the store authenticated as the browser identified by key.
type StoreOpener func(browserKey string) Store

// File describes an uploaded avatar.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service validates avatar uploads and writes them to storage.
type Service struct {
	open StoreOpener
	now  func() time.Time
}

// NewService wires a Service to the given store opener.
func NewService(open StoreOpener) *Service {
	return &Service{open: open, now: time.Now}
}

// Upload validates file and stores it under avatars/<userID>-<unixMillis>.<ext>,
// returning the object's public URL.
func (s *Service) Upload(ctx context.Context, browserKey string, userID uuid.UUID, file File) (string, error) {
	if file.Body == nil {
		return "", &ValidationError{Title: "No file selected", Message: "Choose an image to upload"}
	}
	if file.Size > MaxBytes {
		return "", tooLarge()
	}

	data, err := io.ReadAll(io.LimitReader(file.Body, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("avatars: read upload: %w", err)
	}
	if len(data) > MaxBytes {
		return "", tooLarge()
	}
	if len(data) == 0 {
		return "", &ValidationError{Title: "Empty file", Message: "Avatar image is empty"}
	}

	contentType := detectType(file.ContentType, data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", &ValidationError{Title: "Unsupported file", Message: "Avatar must be a JPEG, PNG, GIF or WebP image"}
	}
	if named := extension(file.Name); named != "" {
		ext = named
	}

	objectPath := fmt.Sprintf("avatars/%s-%d.%s", userID, s.now().UnixMilli(), ext)
	store := s.open(browserKey)
	if err := store.Upload(ctx, Bucket, objectPath, contentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("avatars: upload %s: %w", objectPath, err)
	}
	return store.PublicURL(Bucket, objectPath), nil
}

func tooLarge() error {
	return &ValidationError{Title: "File too large", Message: "Avatar image must be less than 2MB"}
}

// detectType sniffs the payload. The declared type is only used when the
// payload carries no recognizable signature.
func detectType(declared string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	return strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
}

func extension(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp":
		return ext
	default:
		return ""
	}
}
