package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"eventhub/internal/events"
)

// EventStore is the subset of the events service the importer needs.
type EventStore interface {
	Create(ctx context.Context, organizer events.Organizer, input events.CreateEventInput) (events.Event, error)
	List(ctx context.Context, opts events.ListOptions) ([]events.Event, error)
}

type Summary struct {
	TotalRows         int             `json:"totalRows"`
	Imported          int             `json:"imported"`
	SkippedDuplicates []SkippedRecord `json:"skippedDuplicates"`
	Failed            []FailedRecord  `json:"failed"`
	TruncatedRecords  bool            `json:"truncatedRecords,omitempty"`
}

type SkippedRecord struct {
	Row    int    `json:"row"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

type FailedRecord struct {
	Row   int    `json:"row"`
	Title string `json:"title,omitempty"`
	Error string `json:"error"`
}

var ErrInvalidCSV = errors.New("invalid csv upload")

// MaxImportRows limits the number of data rows processed per CSV import.
const MaxImportRows = 500

// MaxFailedRecords caps the number of failed/skipped records stored in the
// summary.
const MaxFailedRecords = 100

var requiredColumns = []string{
	"title",
	"location",
	"startsat",
}

type CSVImporter struct {
	events EventStore
}

func NewCSVImporter(store EventStore) *CSVImporter {
	return &CSVImporter{events: store}
}

// Import creates one event per data row on behalf of organizer. Rows that
// repeat an existing title and start time are skipped.
func (i *CSVImporter) Import(ctx context.Context, reader io.Reader, organizer events.Organizer) (Summary, error) {
	if i.events == nil {
		return Summary{}, fmt.Errorf("%w: event store is not configured", ErrInvalidCSV)
	}

	existing, err := i.events.List(ctx, events.ListOptions{})
	if err != nil {
		return Summary{}, err
	}
	tracker := newDuplicateTracker(existing)

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Summary{}, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
		}
		return Summary{}, fmt.Errorf("%w: failed to read header", ErrInvalidCSV)
	}

	columns, err := normalizeHeader(header)
	if err != nil {
		return Summary{}, err
	}

	type parsedRow struct {
		number int
		values map[string]string
	}

	var rows []parsedRow
	rowNumber := 1
	for {
		record, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Summary{}, fmt.Errorf("%w: failed to read row %d", ErrInvalidCSV, rowNumber+1)
		}
		rowNumber++
		values := mapRecord(columns, record)
		if isRowEmpty(values) {
			continue
		}
		if len(rows) == MaxImportRows {
			return Summary{}, fmt.Errorf("%w: CSV exceeds maximum of %d rows", ErrInvalidCSV, MaxImportRows)
		}
		rows = append(rows, parsedRow{number: rowNumber, values: values})
	}

	summary := Summary{TotalRows: len(rows)}
	fail := func(row int, title string, err error) {
		if len(summary.Failed) < MaxFailedRecords {
			summary.Failed = append(summary.Failed, FailedRecord{Row: row, Title: title, Error: err.Error()})
		} else {
			summary.TruncatedRecords = true
		}
	}

	for _, row := range rows {
		input, rowErr := buildInput(row.values)
		if rowErr != nil {
			fail(row.number, strings.TrimSpace(row.values["title"]), rowErr)
			continue
		}

		if tracker.Seen(input.Title, input.StartsAt) {
			if len(summary.SkippedDuplicates) < MaxFailedRecords {
				summary.SkippedDuplicates = append(summary.SkippedDuplicates, SkippedRecord{
					Row:    row.number,
					Title:  input.Title,
					Reason: "duplicate title and start time",
				})
			} else {
				summary.TruncatedRecords = true
			}
			continue
		}

		created, err := i.events.Create(ctx, organizer, input)
		if err != nil {
			fail(row.number, input.Title, err)
			continue
		}

		tracker.Add(created.Title, created.StartsAt)
		summary.Imported++
	}

	return summary, nil
}

func buildInput(values map[string]string) (events.CreateEventInput, error) {
	startsAt, err := parseTime(values["startsat"], "startsAt")
	if err != nil {
		return events.CreateEventInput{}, err
	}
	if startsAt == nil {
		return events.CreateEventInput{}, fmt.Errorf("startsAt is required")
	}
	endsAt, err := parseTime(values["endsat"], "endsAt")
	if err != nil {
		return events.CreateEventInput{}, err
	}
	price, err := parsePrice(values["price"])
	if err != nil {
		return events.CreateEventInput{}, err
	}
	capacity, err := parseCapacity(values["capacity"])
	if err != nil {
		return events.CreateEventInput{}, err
	}

	return events.CreateEventInput{
		Title:       values["title"],
		Description: values["description"],
		Category:    values["category"],
		Format:      values["format"],
		Location:    values["location"],
		Address:     values["address"],
		StartsAt:    *startsAt,
		EndsAt:      endsAt,
		PriceCents:  price,
		Capacity:    capacity,
		ImageURL:    values["imageurl"],
	}, nil
}

func normalizeHeader(header []string) (map[int]string, error) {
	columns := make(map[int]string, len(header))
	seen := map[string]bool{}
	for idx, raw := range header {
		cleaned := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		if cleaned == "" {
			continue
		}
		columns[idx] = cleaned
		seen[cleaned] = true
	}

	missing := make([]string, 0)
	for _, column := range requiredColumns {
		if !seen[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidCSV, strings.Join(missing, ", "))
	}
	return columns, nil
}

func mapRecord(columns map[int]string, record []string) map[string]string {
	values := make(map[string]string, len(columns))
	for idx, column := range columns {
		if idx >= len(record) {
			values[column] = ""
			continue
		}
		values[column] = strings.TrimSpace(record[idx])
	}
	return values
}

func isRowEmpty(values map[string]string) bool {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

// parsePrice accepts "Free", "$50", "50" and "49.99" and returns cents.
func parsePrice(value string) (int, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || strings.EqualFold(cleaned, "free") {
		return 0, nil
	}
	cleaned = strings.ReplaceAll(strings.TrimPrefix(cleaned, "$"), ",", "")
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("price must be a number or Free")
	}
	if parsed < 0 {
		return 0, fmt.Errorf("price cannot be negative")
	}
	return int(math.Round(parsed * 100)), nil
}

func parseCapacity(value string) (int, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("capacity must be a whole number")
	}
	if parsed < 0 {
		return 0, fmt.Errorf("capacity must be zero or greater")
	}
	return parsed, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts RFC3339 and a few spreadsheet-friendly layouts; values
// without a zone are read as UTC.
func parseTime(value string, field string) (*time.Time, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, cleaned); err == nil {
			parsed = parsed.UTC()
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("%s must be an RFC3339 timestamp or YYYY-MM-DD", field)
}

type duplicateTracker struct {
	known map[string]bool
}

func newDuplicateTracker(existing []events.Event) *duplicateTracker {
	tracker := &duplicateTracker{known: map[string]bool{}}
	for _, event := range existing {
		tracker.Add(event.Title, event.StartsAt)
	}
	return tracker
}

func duplicateKey(title string, startsAt time.Time) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + startsAt.UTC().Format(time.RFC3339)
}

func (t *duplicateTracker) Seen(title string, startsAt time.Time) bool {
	return t.known[duplicateKey(title, startsAt)]
}

func (t *duplicateTracker) Add(title string, startsAt time.Time) {
	t.known[duplicateKey(title, startsAt)] = true
}
