package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/events"
	"eventhub/internal/profiles"
)

type profileStub struct {
	profiles map[uuid.UUID]profiles.Profile
}

func (s profileStub) Get(_ context.Context, id uuid.UUID) (profiles.Profile, error) {
	profile, ok := s.profiles[id]
	if !ok {
		return profiles.Profile{}, profiles.ErrNotFound
	}
	return profile, nil
}

func TestCSVExporter_ExportEmpty(t *testing.T) {
	exporter := NewCSVExporter(nil)
	var buf bytes.Buffer

	if err := exporter.Export(context.Background(), &buf, events.Event{Title: "Summit"}, nil); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	if len(records) != 1 || len(records[0]) != len(csvColumns) {
		t.Fatalf("expected only the header row, got %v", records)
	}
}

func TestCSVExporter_ExportResolvesProfiles(t *testing.T) {
	known := uuid.New()
	unknown := uuid.New()
	lookup := profileStub{profiles: map[uuid.UUID]profiles.Profile{
		known: {ID: known, FullName: "=HYPERLINK(\"x\")", Email: "ada@example.com"},
	}}
	exporter := NewCSVExporter(lookup)
	registeredAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	err := exporter.Export(context.Background(), &buf, events.Event{Title: "Design Workshop"}, []events.Registration{
		{UserID: known, CreatedAt: registeredAt},
		{UserID: unknown, CreatedAt: registeredAt.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(records))
	}

	first := records[1]
	if first[1] != "'=HYPERLINK(\"x\")" {
		t.Fatalf("expected formula to be escaped, got %q", first[1])
	}
	if first[2] != "ada@example.com" || first[3] != known.String() {
		t.Fatalf("unexpected first row %v", first)
	}
	if first[4] != "2026-02-01T09:30:00Z" {
		t.Fatalf("unexpected registeredAt %q", first[4])
	}

	second := records[2]
	if second[1] != "" || second[2] != "" || second[3] != unknown.String() {
		t.Fatalf("expected unresolved attendee to keep only id, got %v", second)
	}
}

func TestFilename(t *testing.T) {
	cases := map[string]string{
		"Tech Conference 2026": "tech-conference-2026-attendees.csv",
		"  Q&A -- Live!  ":     "q-a-live-attendees.csv",
		"???":                  "event-attendees.csv",
	}
	for title, want := range cases {
		if got := Filename(events.Event{Title: title}); got != want {
			t.Fatalf("Filename(%q) = %q, want %q", title, got, want)
		}
	}
}
