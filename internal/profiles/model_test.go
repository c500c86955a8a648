package profiles

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDisplayName(t *testing.T) {
	cases := []struct {
		name     string
		email    string
		metadata string
		want     string
	}{
		{name: "metadata wins", email: "ann@x.com", metadata: "Ann Example", want: "Ann Example"},
		{name: "email local part", email: "ann@x.com", metadata: "  ", want: "ann"},
		{name: "placeholder", email: "", metadata: "", want: DefaultFullName},
		{name: "email without at sign", email: "not-an-email", metadata: "", want: "not-an-email"},
		{name: "empty local part", email: "@x.com", metadata: "", want: DefaultFullName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DisplayName(tc.email, tc.metadata); got != tc.want {
				t.Fatalf("DisplayName(%q, %q) = %q, want %q", tc.email, tc.metadata, got, tc.want)
			}
		})
	}
}

func TestDefaultForKeepsUserID(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	profile := DefaultFor(id, "ann@x.com", "", now)

	if profile.ID != id {
		t.Fatalf("expected id %s, got %s", id, profile.ID)
	}
	if profile.FullName != "ann" || profile.Email != "ann@x.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if !profile.CreatedAt.Equal(now) || !profile.UpdatedAt.Equal(now) {
		t.Fatalf("expected timestamps to equal %s, got %+v", now, profile)
	}
}

func TestPatchValidate(t *testing.T) {
	empty := "   "
	if _, err := (Patch{FullName: &empty}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}

	name := "  <b>Ann</b> "
	bio := "Hi <script>x()</script>there"
	patch, err := (Patch{FullName: &name, Bio: &bio}).Validate()
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if *patch.FullName != "Ann" {
		t.Fatalf("expected sanitized name, got %q", *patch.FullName)
	}
	if *patch.Bio != "Hi there" {
		t.Fatalf("expected sanitized bio, got %q", *patch.Bio)
	}
}

func TestPatchApplyLeavesNilFields(t *testing.T) {
	bio := "New bio"
	base := Profile{ID: uuid.New(), FullName: "Ann", AvatarURL: "a.png", Bio: "old"}

	updated := Patch{Bio: &bio}.Apply(base)

	if updated.FullName != "Ann" || updated.AvatarURL != "a.png" || updated.Bio != "New bio" {
		t.Fatalf("unexpected patched profile %+v", updated)
	}
	if (Patch{}).IsEmpty() != true || (Patch{Bio: &bio}).IsEmpty() {
		t.Fatal("IsEmpty reported the wrong value")
	}
}
