package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	testNow       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testOrganizer = Organizer{ID: uuid.MustParse("0b6a3c59-6f0e-4a9e-8f25-2c2f6f2b7d01"), Name: "Ada Organizer"}
)

func newTestService(repo Repository) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return testNow }
	return svc
}

func validInput(title string, startsIn time.Duration) CreateEventInput {
	return CreateEventInput{
		Title:    title,
		Location: "San Francisco, CA",
		StartsAt: testNow.Add(startsIn),
	}
}

func TestServiceCreateRequiresTitleDateAndLocation(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))

	cases := []CreateEventInput{
		{Location: "Online", StartsAt: testNow},
		{Title: "Meetup", StartsAt: testNow},
		{Title: "Meetup", Location: "Online"},
	}
	for _, input := range cases {
		_, err := svc.Create(context.Background(), testOrganizer, input)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestServiceCreateNormalizesInput(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))

	event, err := svc.Create(context.Background(), testOrganizer, CreateEventInput{
		Title:       "  <b>Design</b> Workshop ",
		Description: "Hands-on <script>alert(1)</script>session",
		Category:    "design",
		Location:    "Online",
		StartsAt:    testNow.Add(48 * time.Hour),
		PriceCents:  5000,
		Capacity:    40,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if event.Title != "Design Workshop" {
		t.Fatalf("unexpected title %q", event.Title)
	}
	if event.Description != "Hands-on session" {
		t.Fatalf("unexpected description %q", event.Description)
	}
	if event.Category != CategoryDesign {
		t.Fatalf("expected Design category, got %q", event.Category)
	}
	if event.Format != FormatVirtual {
		t.Fatalf("expected online location to default to virtual, got %q", event.Format)
	}
	if !event.OrganizedBy(testOrganizer.ID) || event.OrganizerName != testOrganizer.Name {
		t.Fatalf("expected organizer to be recorded, got %+v", event)
	}
	if !event.CreatedAt.Equal(testNow) {
		t.Fatalf("expected created at %s, got %s", testNow, event.CreatedAt)
	}
}

func TestServiceCreateRejectsBadValues(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	before := testNow.Add(time.Hour)

	cases := map[string]CreateEventInput{
		"unknown category": {Title: "A", Location: "B", StartsAt: testNow, Category: "Cooking"},
		"unknown format":   {Title: "A", Location: "B", StartsAt: testNow, Format: "hybrid"},
		"end before start": {Title: "A", Location: "B", StartsAt: testNow.Add(2 * time.Hour), EndsAt: &before},
		"negative price":   {Title: "A", Location: "B", StartsAt: testNow, PriceCents: -1},
		"negative cap":     {Title: "A", Location: "B", StartsAt: testNow, Capacity: -5},
		"image scheme":     {Title: "A", Location: "B", StartsAt: testNow, ImageURL: "javascript:alert(1)"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), testOrganizer, input); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestServiceListFiltersAndSorts(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	ctx := context.Background()

	mustCreate := func(input CreateEventInput) Event {
		t.Helper()
		event, err := svc.Create(ctx, testOrganizer, input)
		if err != nil {
			t.Fatalf("create %q: %v", input.Title, err)
		}
		return event
	}

	conf := mustCreate(CreateEventInput{Title: "Tech Conference", Location: "San Francisco, CA", StartsAt: testNow.Add(72 * time.Hour), Category: "Technology"})
	webinar := mustCreate(CreateEventInput{Title: "Web3 Webinar", Location: "Online", StartsAt: testNow.Add(24 * time.Hour), Category: "Technology"})
	mustCreate(CreateEventInput{Title: "Marketing Masterclass", Location: "Online", StartsAt: testNow.Add(48 * time.Hour), Category: "Marketing", PriceCents: 7500})

	all, err := svc.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != webinar.ID {
		t.Fatalf("expected three events sorted by start, got %+v", all)
	}

	tech, _ := svc.List(ctx, ListOptions{Category: CategoryTechnology, Price: PriceFree})
	if len(tech) != 2 {
		t.Fatalf("expected two free technology events, got %d", len(tech))
	}

	inPerson, _ := svc.List(ctx, ListOptions{Format: FormatInPerson})
	if len(inPerson) != 1 || inPerson[0].ID != conf.ID {
		t.Fatalf("expected only the conference in person, got %+v", inPerson)
	}

	search, _ := svc.List(ctx, ListOptions{Query: "FRANCISCO"})
	if len(search) != 1 || search[0].ID != conf.ID {
		t.Fatalf("expected case-insensitive location search, got %+v", search)
	}

	limit := 1
	limited, _ := svc.List(ctx, ListOptions{Limit: &limit})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestServiceRegisterEnforcesCapacity(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	ctx := context.Background()

	input := validInput("Startup Mixer", 24*time.Hour)
	input.Capacity = 1
	event, err := svc.Create(ctx, testOrganizer, input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first := uuid.New()
	updated, err := svc.Register(ctx, event.ID, first)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if updated.Attendees != 1 || updated.SpotsLeft() != 0 {
		t.Fatalf("expected one attendee and no spots, got %+v", updated)
	}
	if ok, err := svc.IsRegistered(ctx, event.ID, first); err != nil || !ok {
		t.Fatalf("expected first user to be registered, got %v, %v", ok, err)
	}

	if _, err := svc.Register(ctx, event.ID, first); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if _, err := svc.Register(ctx, event.ID, uuid.New()); !errors.Is(err, ErrEventFull) {
		t.Fatalf("expected ErrEventFull, got %v", err)
	}

	if _, err := svc.Unregister(ctx, event.ID, first); err != nil {
		t.Fatalf("unregister failed: %v", err)
	}
	if _, err := svc.Unregister(ctx, event.ID, first); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := svc.Register(ctx, event.ID, uuid.New()); err != nil {
		t.Fatalf("expected freed spot to be available: %v", err)
	}
}

func TestServiceRegisterRejectsStartedEvents(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	ctx := context.Background()

	event, err := svc.Create(ctx, testOrganizer, validInput("Yesterday", -24*time.Hour))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Register(ctx, event.ID, uuid.New()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Register(ctx, uuid.New(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceAttendeesRequiresOrganizer(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	ctx := context.Background()

	event, _ := svc.Create(ctx, testOrganizer, validInput("Summit", 24*time.Hour))
	attendee := uuid.New()
	if _, err := svc.Register(ctx, event.ID, attendee); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, _, err := svc.Attendees(ctx, attendee, event.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	_, regs, err := svc.Attendees(ctx, testOrganizer.ID, event.ID)
	if err != nil {
		t.Fatalf("attendees failed: %v", err)
	}
	if len(regs) != 1 || regs[0].UserID != attendee {
		t.Fatalf("unexpected registrations %+v", regs)
	}

	if err := svc.Delete(ctx, attendee, event.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}
	if err := svc.Delete(ctx, testOrganizer.ID, event.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, event.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted event to be gone, got %v", err)
	}
}

func TestServiceDashboardSplitsUpcomingAndPast(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)
	ctx := context.Background()

	upcoming, _ := svc.Create(ctx, testOrganizer, validInput("Upcoming", 24*time.Hour))
	past, _ := svc.Create(ctx, testOrganizer, validInput("Past", -48*time.Hour))
	other, _ := svc.Create(ctx, Organizer{ID: uuid.New(), Name: "Someone"}, validInput("Elsewhere", 72*time.Hour))

	for i := 0; i < 3; i++ {
		if err := repo.Register(ctx, Registration{EventID: upcoming.ID, UserID: uuid.New(), CreatedAt: testNow}); err != nil {
			t.Fatalf("seed registration: %v", err)
		}
	}
	if err := repo.Register(ctx, Registration{EventID: past.ID, UserID: uuid.New(), CreatedAt: testNow}); err != nil {
		t.Fatalf("seed registration: %v", err)
	}
	if _, err := svc.Register(ctx, other.ID, testOrganizer.ID); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	dash, err := svc.Dashboard(ctx, testOrganizer.ID, testNow)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}

	if len(dash.Organized.Upcoming) != 1 || dash.Organized.Upcoming[0].ID != upcoming.ID {
		t.Fatalf("unexpected upcoming %+v", dash.Organized.Upcoming)
	}
	if len(dash.Organized.Past) != 1 || dash.Organized.Past[0].ID != past.ID {
		t.Fatalf("unexpected past %+v", dash.Organized.Past)
	}
	if len(dash.Registered.Upcoming) != 1 || dash.Registered.Upcoming[0].ID != other.ID {
		t.Fatalf("unexpected registered %+v", dash.Registered.Upcoming)
	}
	want := DashboardStats{TotalEvents: 2, TotalAttendees: 4, UpcomingEvents: 1, AverageAttendance: 2}
	if dash.Stats != want {
		t.Fatalf("expected stats %+v, got %+v", want, dash.Stats)
	}
}
