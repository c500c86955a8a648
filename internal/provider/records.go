package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"eventhub/internal/profiles"
)

const profilesPath = "/rest/v1/profiles"

// ProfileTable reads and writes the profiles table through the record API,
// authenticated as the browser's current user. It implements profiles.Repository.
type ProfileTable struct {
	client *Client
	tokens func(ctx context.Context) oauth2.TokenSource
}

// Profiles returns the profiles table handle for the user signed in on auth.
// A nil auth authenticates with the anon key only.
func (c *Client) Profiles(auth *AuthClient) *ProfileTable {
	tokens := func(context.Context) oauth2.TokenSource { return c.anonTokens() }
	if auth != nil {
		tokens = auth.TokenSource
	}
	return &ProfileTable{client: c, tokens: tokens}
}

type profileRecord struct {
	ID        uuid.UUID  `json:"id"`
	FullName  *string    `json:"full_name,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	Bio       *string    `json:"bio,omitempty"`
	Email     *string    `json:"email,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (r profileRecord) toProfile() profiles.Profile {
	p := profiles.Profile{ID: r.ID}
	if r.FullName != nil {
		p.FullName = *r.FullName
	}
	if r.AvatarURL != nil {
		p.AvatarURL = *r.AvatarURL
	}
	if r.Bio != nil {
		p.Bio = *r.Bio
	}
	if r.Email != nil {
		p.Email = *r.Email
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	}
	return p
}

func recordFromProfile(p profiles.Profile) profileRecord {
	return profileRecord{
		ID:        p.ID,
		FullName:  &p.FullName,
		AvatarURL: &p.AvatarURL,
		Bio:       &p.Bio,
		Email:     &p.Email,
		CreatedAt: &p.CreatedAt,
		UpdatedAt: &p.UpdatedAt,
	}
}

func byID(id uuid.UUID) url.Values {
	return url.Values{"id": {"eq." + id.String()}}
}

// Get selects the profile row for id. A missing row is profiles.ErrNotFound;
// every other failure is returned as is.
func (t *ProfileTable) Get(ctx context.Context, id uuid.UUID) (profiles.Profile, error) {
	query := byID(id)
	query.Set("select", "*")

	var rows []profileRecord
	if err := t.client.do(ctx, request{
		method: http.MethodGet,
		path:   profilesPath,
		query:  query,
		tokens: t.tokens(ctx),
	}, &rows); err != nil {
		return profiles.Profile{}, err
	}
	if len(rows) == 0 {
		return profiles.Profile{}, profiles.ErrNotFound
	}
	return rows[0].toProfile(), nil
}

// Insert creates the row, ignoring a conflicting existing row, and returns
// whatever row is stored afterwards.
func (t *ProfileTable) Insert(ctx context.Context, profile profiles.Profile) (profiles.Profile, error) {
	var rows []profileRecord
	if err := t.client.do(ctx, request{
		method: http.MethodPost,
		path:   profilesPath,
		query:  url.Values{"on_conflict": {"id"}},
		header: http.Header{"Prefer": {"return=representation,resolution=ignore-duplicates"}},
		body:   []profileRecord{recordFromProfile(profile)},
		tokens: t.tokens(ctx),
	}, &rows); err != nil {
		return profiles.Profile{}, err
	}
	if len(rows) == 0 {
		return t.Get(ctx, profile.ID)
	}
	return rows[0].toProfile(), nil
}

// Update patches the existing row for id. It returns profiles.ErrNotFound when
// no row matched.
func (t *ProfileTable) Update(ctx context.Context, id uuid.UUID, patch profiles.Patch, updatedAt time.Time) (profiles.Profile, error) {
	record := patchRecord(id, patch, updatedAt)
	record.ID = uuid.Nil

	var rows []profileRecord
	if err := t.client.do(ctx, request{
		method: http.MethodPatch,
		path:   profilesPath,
		query:  byID(id),
		header: http.Header{"Prefer": {"return=representation"}},
		body:   patchBody(record),
		tokens: t.tokens(ctx),
	}, &rows); err != nil {
		return profiles.Profile{}, err
	}
	if len(rows) == 0 {
		return profiles.Profile{}, profiles.ErrNotFound
	}
	return rows[0].toProfile(), nil
}

// Upsert writes the patch in a single insert-or-merge request keyed on id.
// Only the patched columns plus id and updated_at are sent, so existing
// values survive; a new row takes the table defaults for the rest.
func (t *ProfileTable) Upsert(ctx context.Context, base profiles.Profile, patch profiles.Patch) (profiles.Profile, error) {
	record := patchRecord(base.ID, patch, base.UpdatedAt)

	var rows []profileRecord
	if err := t.client.do(ctx, request{
		method: http.MethodPost,
		path:   profilesPath,
		query:  url.Values{"on_conflict": {"id"}},
		header: http.Header{"Prefer": {"return=representation,resolution=merge-duplicates,missing=default"}},
		body:   []map[string]any{patchBody(record)},
		tokens: t.tokens(ctx),
	}, &rows); err != nil {
		return profiles.Profile{}, err
	}
	if len(rows) == 0 {
		return profiles.Profile{}, fmt.Errorf("provider: upsert returned no rows: %w", profiles.ErrNotFound)
	}
	return rows[0].toProfile(), nil
}

func patchRecord(id uuid.UUID, patch profiles.Patch, updatedAt time.Time) profileRecord {
	return profileRecord{
		ID:        id,
		FullName:  patch.FullName,
		AvatarURL: patch.AvatarURL,
		Bio:       patch.Bio,
		Email:     patch.Email,
		UpdatedAt: &updatedAt,
	}
}

// patchBody renders a record without absent columns.
func patchBody(r profileRecord) map[string]any {
	body := map[string]any{}
	if r.ID != uuid.Nil {
		body["id"] = r.ID
	}
	if r.FullName != nil {
		body["full_name"] = *r.FullName
	}
	if r.AvatarURL != nil {
		body["avatar_url"] = *r.AvatarURL
	}
	if r.Bio != nil {
		body["bio"] = *r.Bio
	}
	if r.Email != nil {
		body["email"] = *r.Email
	}
	if r.UpdatedAt != nil {
		body["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return body
}
