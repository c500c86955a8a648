package profiles

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/platform/sanitize"
)

// ErrNotFound is returned when no profile row exists for a user id.
var ErrNotFound = errors.New("profile not found")

// ErrValidation is returned when a profile patch is rejected.
var ErrValidation = errors.New("validation error")

// ValidationError wraps a validation message so callers can distinguish
// client errors from internal failures.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DefaultFullName is used when neither provider metadata nor the email yields a name.
const DefaultFullName = "User"

const (
	maxFullNameLength = 200
	maxBioLength      = 2000
)

// Profile holds the display attributes kept for each user. ID always equals
// the owning user's id.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch is a partial profile update; nil fields are left untouched.
type Patch struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.FullName == nil && p.AvatarURL == nil && p.Bio == nil && p.Email == nil
}

// Validate trims and bounds the patch fields.
func (p Patch) Validate() (Patch, error) {
	out := p
	if p.FullName != nil {
		name := sanitize.Text(*p.FullName)
		if name == "" {
			return Patch{}, &ValidationError{Message: "full name cannot be empty"}
		}
		if len(name) > maxFullNameLength {
			return Patch{}, &ValidationError{Message: "full name is too long"}
		}
		out.FullName = &name
	}
	if p.Bio != nil {
		bio := sanitize.Text(*p.Bio)
		if len(bio) > maxBioLength {
			return Patch{}, &ValidationError{Message: "bio is too long"}
		}
		out.Bio = &bio
	}
	if p.AvatarURL != nil {
		avatar := strings.TrimSpace(*p.AvatarURL)
		out.AvatarURL = &avatar
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		out.Email = &email
	}
	return out, nil
}

// Apply returns a copy of profile with the patch applied.
func (p Patch) Apply(profile Profile) Profile {
	if p.FullName != nil {
		profile.FullName = *p.FullName
	}
	if p.AvatarURL != nil {
		profile.AvatarURL = *p.AvatarURL
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.Email != nil {
		profile.Email = *p.Email
	}
	return profile
}

// DefaultFor synthesizes the bootstrap profile for a user that has none: the
// metadata full name, else the local part of the email, else DefaultFullName.
func DefaultFor(id uuid.UUID, email, metadataName string, now time.Time) Profile {
	return Profile{
		ID:        id,
		FullName:  DisplayName(email, metadataName),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DisplayName picks the bootstrap full name. An email without "@" counts as
// its own local part.
func DisplayName(email, metadataName string) string {
	if name := strings.TrimSpace(metadataName); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(strings.TrimSpace(email), "@"); local != "" {
		return local
	}
	return DefaultFullName
}

// Repository persists profiles keyed by user id.
type Repository interface {
	// Get returns ErrNotFound when no row exists; any other error is transient.
	Get(ctx context.Context, id uuid.UUID) (Profile, error)
	// Insert creates the row if absent and returns the stored row. An existing
	// row is returned unchanged.
	Insert(ctx context.Context, profile Profile) (Profile, error)
	// Upsert applies the patch to the row for id in a single write, creating the
	// row from base when it does not exist yet.
	Upsert(ctx context.Context, base Profile, patch Patch) (Profile, error)
}
