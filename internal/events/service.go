package events

import (
	"cmp"
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"eventhub/internal/platform/sanitize"

	"github.com/google/uuid"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
	maxImageURLLength    = 4096
)

// Service orchestrates validation and persistence for events.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a Service with the provided repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns events matching opts ordered by start time.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Event, error) {
	events, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(events, compareByStart)

	if opts.Limit != nil && *opts.Limit >= 0 && len(events) > *opts.Limit {
		events = events[:*opts.Limit]
	}
	return events, nil
}

// Get retrieves an event by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and persists a new event organized by organizer.
func (s *Service) Create(ctx context.Context, organizer Organizer, input CreateEventInput) (Event, error) {
	event, err := s.build(organizer, input)
	if err != nil {
		return Event{}, err
	}
	return s.repo.Create(ctx, event)
}

func (s *Service) build(organizer Organizer, input CreateEventInput) (Event, error) {
	title := sanitize.Text(input.Title)
	location := sanitize.Text(input.Location)
	if title == "" || input.StartsAt.IsZero() || location == "" {
		return Event{}, validationErr("Please fill in all required fields")
	}
	if len(title) > maxTitleLength {
		return Event{}, validationErr("title must be at most 200 characters")
	}

	description := sanitize.Text(input.Description)
	if len(description) > maxDescriptionLength {
		return Event{}, validationErr("description must be at most 5000 characters")
	}

	category := CategoryTechnology
	if strings.TrimSpace(input.Category) != "" {
		parsed, ok := ParseCategory(input.Category)
		if !ok {
			return Event{}, validationErr("unknown category " + input.Category)
		}
		category = parsed
	}

	format := FormatInPerson
	if strings.EqualFold(location, "online") {
		format = FormatVirtual
	}
	if strings.TrimSpace(input.Format) != "" {
		parsed, ok := ParseFormat(input.Format)
		if !ok {
			return Event{}, validationErr("unknown format " + input.Format)
		}
		format = parsed
	}

	startsAt := input.StartsAt.UTC()
	var endsAt *time.Time
	if input.EndsAt != nil {
		end := input.EndsAt.UTC()
		if !end.After(startsAt) {
			return Event{}, validationErr("end time must be after the start time")
		}
		endsAt = &end
	}

	if input.PriceCents < 0 {
		return Event{}, validationErr("price cannot be negative")
	}
	if input.Capacity < 0 {
		return Event{}, validationErr("capacity cannot be negative")
	}

	imageURL, err := sanitizeImageURL(input.ImageURL)
	if err != nil {
		return Event{}, err
	}

	var organizerID *uuid.UUID
	if organizer.ID != uuid.Nil {
		id := organizer.ID
		organizerID = &id
	}

	now := s.now().UTC()
	return Event{
		ID:            uuid.New(),
		Title:         title,
		Description:   description,
		Category:      category,
		Format:        format,
		Location:      location,
		Address:       sanitize.Text(input.Address),
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		PriceCents:    input.PriceCents,
		Capacity:      input.Capacity,
		ImageURL:      imageURL,
		OrganizerID:   organizerID,
		OrganizerName: sanitize.Text(organizer.Name),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Delete removes an event. Only its organizer may delete it.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	event, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !event.OrganizedBy(userID) {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// Register signs userID up for the event. Events that already started no
// longer accept registrations.
func (s *Service) Register(ctx context.Context, eventID, userID uuid.UUID) (Event, error) {
	event, err := s.repo.Get(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	now := s.now().UTC()
	if !event.StartsAt.After(now) {
		return Event{}, validationErr("registration is closed for this event")
	}

	if err := s.repo.Register(ctx, Registration{EventID: eventID, UserID: userID, CreatedAt: now}); err != nil {
		return Event{}, err
	}
	return s.repo.Get(ctx, eventID)
}

// Unregister cancels userID's registration for the event.
func (s *Service) Unregister(ctx context.Context, eventID, userID uuid.UUID) (Event, error) {
	if err := s.repo.Unregister(ctx, eventID, userID); err != nil {
		return Event{}, err
	}
	return s.repo.Get(ctx, eventID)
}

// IsRegistered reports whether userID holds a registration for the event.
func (s *Service) IsRegistered(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	regs, err := s.repo.Registrations(ctx, eventID)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(regs, func(reg Registration) bool {
		return reg.UserID == userID
	}), nil
}

// Attendees lists registrations for an event the requester organizes,
// oldest first.
func (s *Service) Attendees(ctx context.Context, requesterID, eventID uuid.UUID) (Event, []Registration, error) {
	event, err := s.repo.Get(ctx, eventID)
	if err != nil {
		return Event{}, nil, err
	}
	if !event.OrganizedBy(requesterID) {
		return Event{}, nil, ErrForbidden
	}

	regs, err := s.repo.Registrations(ctx, eventID)
	if err != nil {
		return Event{}, nil, err
	}
	slices.SortFunc(regs, func(a, b Registration) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return event, regs, nil
}

// Dashboard splits the events userID organizes and attends into upcoming and
// past relative to now.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID, now time.Time) (Dashboard, error) {
	organized, err := s.repo.ListByOrganizer(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	registered, err := s.repo.ListRegistered(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}

	dash := Dashboard{
		Organized:  split(organized, now),
		Registered: split(registered, now),
	}
	dash.Stats.TotalEvents = len(organized)
	dash.Stats.UpcomingEvents = len(dash.Organized.Upcoming)
	for _, event := range organized {
		dash.Stats.TotalAttendees += event.Attendees
	}
	if len(organized) > 0 {
		dash.Stats.AverageAttendance = dash.Stats.TotalAttendees / len(organized)
	}
	return dash, nil
}

// split puts events that have not ended into Upcoming, soonest first, and the
// rest into Past, most recent first.
func split(events []Event, now time.Time) DashboardSection {
	section := DashboardSection{Upcoming: []Event{}, Past: []Event{}}
	for _, event := range events {
		end := event.StartsAt
		if event.EndsAt != nil {
			end = *event.EndsAt
		}
		if end.After(now) {
			section.Upcoming = append(section.Upcoming, event)
		} else {
			section.Past = append(section.Past, event)
		}
	}
	slices.SortFunc(section.Upcoming, compareByStart)
	slices.SortFunc(section.Past, func(a, b Event) int { return compareByStart(b, a) })
	return section
}

func validationErr(msg string) error {
	return &ValidationError{Message: msg}
}

func compareByStart(a, b Event) int {
	if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Title, b.Title)
}

func sanitizeImageURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	if len(trimmed) > maxImageURLLength {
		return "", validationErr("imageUrl must be 4096 characters or fewer")
	}
	if strings.HasPrefix(trimmed, "/") && !strings.HasPrefix(trimmed, "//") {
		return trimmed, nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", validationErr("imageUrl must be an http(s) URL")
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return parsed.String(), nil
	default:
		return "", validationErr("imageUrl must be an http(s) URL")
	}
}
