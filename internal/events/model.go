package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an event cannot be located.
	ErrNotFound = errors.New("event not found")
	// ErrValidation is returned when input validation fails.
	ErrValidation = errors.New("validation error")
	// ErrForbidden is returned when a user acts on an event they do not organize.
	ErrForbidden = errors.New("only the organizer can do that")
	// ErrAlreadyRegistered is returned when a user registers twice.
	ErrAlreadyRegistered = errors.New("already registered for this event")
	// ErrNotRegistered is returned when cancelling a registration that does not exist.
	ErrNotRegistered = errors.New("not registered for this event")
	// ErrEventFull is returned when an event has no spots left.
	ErrEventFull = errors.New("event is full")
)

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

// Category is the topic an event is listed under.
type Category string

const (
	CategoryTechnology Category = "Technology"
	CategoryDesign     Category = "Design"
	CategoryNetworking Category = "Networking"
	CategoryMarketing  Category = "Marketing"
	CategoryBusiness   Category = "Business"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryTechnology,
	CategoryDesign,
	CategoryNetworking,
	CategoryMarketing,
	CategoryBusiness,
}

// ParseCategory matches value case-insensitively against the known categories.
func ParseCategory(value string) (Category, bool) {
	value = strings.TrimSpace(value)
	for _, c := range Categories {
		if strings.EqualFold(value, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Format distinguishes events attended on site from online ones.
type Format string

const (
	FormatInPerson Format = "in-person"
	FormatVirtual  Format = "virtual"
)

// ParseFormat accepts the API values as well as the labels shown in the UI.
func ParseFormat(value string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "in-person", "in_person", "inperson", "in person":
		return FormatInPerson, true
	case "virtual", "online":
		return FormatVirtual, true
	default:
		return "", false
	}
}

// PriceFilter narrows listings to free or paid events.
type PriceFilter string

const (
	PriceFree PriceFilter = "free"
	PricePaid PriceFilter = "paid"
)

// ParsePriceFilter recognizes "free" and "paid".
func ParsePriceFilter(value string) (PriceFilter, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "free":
		return PriceFree, true
	case "paid":
		return PricePaid, true
	default:
		return "", false
	}
}

// Event is a listing users can browse and register for.
type Event struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Description   string     `db:"description" json:"description"`
	Category      Category   `db:"category" json:"category"`
	Format        Format     `db:"format" json:"format"`
	Location      string     `db:"location" json:"location"`
	Address       string     `db:"address" json:"address"`
	StartsAt      time.Time  `db:"starts_at" json:"startsAt"`
	EndsAt        *time.Time `db:"ends_at" json:"endsAt,omitempty"`
	PriceCents    int        `db:"price_cents" json:"priceCents"`
	Capacity      int        `db:"capacity" json:"capacity"`
	ImageURL      string     `db:"image_url" json:"imageUrl"`
	OrganizerID   *uuid.UUID `db:"organizer_id" json:"organizerId,omitempty"`
	OrganizerName string     `db:"organizer_name" json:"organizerName"`
	Attendees     int        `db:"attendee_count" json:"attendees"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsFree reports whether the event costs nothing to attend.
func (e Event) IsFree() bool {
	return e.PriceCents == 0
}

// SpotsLeft returns the remaining capacity, or -1 when capacity is unlimited.
func (e Event) SpotsLeft() int {
	if e.Capacity == 0 {
		return -1
	}
	return max(e.Capacity-e.Attendees, 0)
}

// OrganizedBy reports whether userID created the event.
func (e Event) OrganizedBy(userID uuid.UUID) bool {
	return e.OrganizerID != nil && *e.OrganizerID == userID
}

// Registration records that a user signed up for an event.
type Registration struct {
	EventID   uuid.UUID `db:"event_id" json:"eventId"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Organizer identifies the user creating an event.
type Organizer struct {
	ID   uuid.UUID
	Name string
}

// CreateEventInput captures the data needed to create a new Event.
type CreateEventInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Format      string     `json:"format"`
	Location    string     `json:"location"`
	Address     string     `json:"address"`
	StartsAt    time.Time  `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	PriceCents  int        `json:"priceCents"`
	Capacity    int        `json:"capacity"`
	ImageURL    string     `json:"imageUrl"`
}

// ListOptions filters event listings.
type ListOptions struct {
	Query    string
	Category Category
	Format   Format
	Price    PriceFilter
	Limit    *int
}

// Matches reports whether event passes every filter in opts. The query is
// matched case-insensitively against title, description and location.
func (opts ListOptions) Matches(event Event) bool {
	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		if !strings.Contains(strings.ToLower(event.Title), q) &&
			!strings.Contains(strings.ToLower(event.Description), q) &&
			!strings.Contains(strings.ToLower(event.Location), q) {
			return false
		}
	}
	if opts.Category != "" && event.Category != opts.Category {
		return false
	}
	if opts.Format != "" && event.Format != opts.Format {
		return false
	}
	switch opts.Price {
	case PriceFree:
		return event.IsFree()
	case PricePaid:
		return !event.IsFree()
	}
	return true
}

// DashboardSection splits events around the current time.
type DashboardSection struct {
	Upcoming []Event `json:"upcoming"`
	Past     []Event `json:"past"`
}

// DashboardStats summarizes the events a user organizes.
type DashboardStats struct {
	TotalEvents       int `json:"totalEvents"`
	TotalAttendees    int `json:"totalAttendees"`
	UpcomingEvents    int `json:"upcomingEvents"`
	AverageAttendance int `json:"averageAttendance"`
}

// Dashboard is a user's view of the events they organize and attend.
type Dashboard struct {
	Organized  DashboardSection `json:"organized"`
	Registered DashboardSection `json:"registered"`
	Stats      DashboardStats   `json:"stats"`
}

// Repository describes persistence operations for events and registrations.
type Repository interface {
	Create(ctx context.Context, event Event) (Event, error)
	Get(ctx context.Context, id uuid.UUID) (Event, error)
	List(ctx context.Context, opts ListOptions) ([]Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]Event, error)
	ListRegistered(ctx context.Context, userID uuid.UUID) ([]Event, error)
	// Register adds reg unless the user is already registered or the event
	// has reached its capacity. Both checks and the insert are atomic.
	Register(ctx context.Context, reg Registration) error
	Unregister(ctx context.Context, eventID, userID uuid.UUID) error
	Registrations(ctx context.Context, eventID uuid.UUID) ([]Registration, error)
}
