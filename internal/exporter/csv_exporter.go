package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/events"
	"eventhub/internal/profiles"
)

// csvColumns defines the column order of the attendee export.
var csvColumns = []string{
	"event",
	"name",
	"email",
	"userId",
	"registeredAt",
}

// ProfileLookup resolves attendee names and emails.
type ProfileLookup interface {
	Get(ctx context.Context, id uuid.UUID) (profiles.Profile, error)
}

// CSVExporter exports event attendee lists to CSV format.
type CSVExporter struct {
	profiles ProfileLookup
}

// NewCSVExporter creates a new CSV exporter. A nil lookup exports user ids only.
func NewCSVExporter(lookup ProfileLookup) *CSVExporter {
	return &CSVExporter{profiles: lookup}
}

// Export writes one row per registration. Attendees whose profile cannot be
// read are still listed with empty name and email.
func (e *CSVExporter) Export(ctx context.Context, w io.Writer, event events.Event, regs []events.Registration) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(e.registrationToRow(ctx, event, reg)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (e *CSVExporter) registrationToRow(ctx context.Context, event events.Event, reg events.Registration) []string {
	row := make([]string, len(csvColumns))

	row[0] = escapeFormula(event.Title)
	if e.profiles != nil {
		if profile, err := e.profiles.Get(ctx, reg.UserID); err == nil {
			row[1] = escapeFormula(profile.FullName)
			row[2] = escapeFormula(profile.Email)
		}
	}
	row[3] = reg.UserID.String()
	row[4] = formatTime(reg.CreatedAt)

	return row
}

// Filename returns a download name derived from the event title.
func Filename(event events.Event) string {
	var b strings.Builder
	for _, r := range strings.ToLower(event.Title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "event"
	}
	return name + "-attendees.csv"
}

// escapeFormula keeps spreadsheet applications from evaluating user-supplied
// cells as formulas.
func escapeFormula(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + value
	}
	return value
}

// formatTime formats a time to RFC3339 string.
func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
