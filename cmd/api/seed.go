package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/events"
)

// seedLocalEvents returns demo events for local development, scheduled
// relative to now so the browse page always has upcoming entries.
func seedLocalEvents() []events.Event {
	now := time.Now().UTC()
	day := 24 * time.Hour

	// Helper to build an end time a few hours after the start
	until := func(start time.Time, hours int) *time.Time {
		end := start.Add(time.Duration(hours) * time.Hour)
		return &end
	}
	at := func(days, hour int) time.Time {
		d := now.Truncate(day).Add(time.Duration(days) * day)
		return d.Add(time.Duration(hour) * time.Hour)
	}

	techStart := at(21, 16)
	designStart := at(9, 14)
	mixerStart := at(14, 23)
	marketingStart := at(5, 17)
	summitStart := at(30, 15)
	webinarStart := at(3, 18)

	return []events.Event{
		{
			ID:            uuid.New(),
			Title:         "Tech Conference",
			Description:   "Join us for the biggest tech conference of the year featuring industry leaders and innovative workshops.",
			Category:      events.CategoryTechnology,
			Format:        events.FormatInPerson,
			Location:      "San Francisco, CA",
			Address:       "747 Howard St, San Francisco, CA 94103",
			StartsAt:      techStart,
			EndsAt:        until(techStart, 8),
			Capacity:      500,
			ImageURL:      "https://images.unsplash.com/photo-1540575467063-178a50c2df87",
			OrganizerName: "TechEvents Inc.",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            uuid.New(),
			Title:         "Design Workshop",
			Description:   "Learn the latest design trends and techniques from expert designers in this hands-on workshop.",
			Category:      events.CategoryDesign,
			Format:        events.FormatInPerson,
			Location:      "New York, NY",
			StartsAt:      designStart,
			EndsAt:        until(designStart, 3),
			PriceCents:    5000,
			Capacity:      40,
			ImageURL:      "https://images.unsplash.com/photo-1558403194-611308249627",
			OrganizerName: "Design Collective",
			CreatedAt:     now.Add(1 * time.Minute),
			UpdatedAt:     now.Add(1 * time.Minute),
		},
		{
			ID:            uuid.New(),
			Title:         "Startup Networking Mixer",
			Description:   "Connect with fellow entrepreneurs and investors in a relaxed setting. Great opportunities for collaboration!",
			Category:      events.CategoryNetworking,
			Format:        events.FormatInPerson,
			Location:      "Austin, TX",
			StartsAt:      mixerStart,
			EndsAt:        until(mixerStart, 3),
			PriceCents:    2500,
			Capacity:      120,
			ImageURL:      "https://images.unsplash.com/photo-1511578314322-379afb476865",
			OrganizerName: "Austin Founders",
			CreatedAt:     now.Add(2 * time.Minute),
			UpdatedAt:     now.Add(2 * time.Minute),
		},
		{
			ID:            uuid.New(),
			Title:         "Digital Marketing Masterclass",
			Description:   "Master the latest digital marketing strategies and tools to grow your business online.",
			Category:      events.CategoryMarketing,
			Format:        events.FormatVirtual,
			Location:      "Online",
			StartsAt:      marketingStart,
			EndsAt:        until(marketingStart, 2),
			PriceCents:    7500,
			ImageURL:      "https://images.unsplash.com/photo-1460925895917-afdab827c52f",
			OrganizerName: "Growth Academy",
			CreatedAt:     now.Add(3 * time.Minute),
			UpdatedAt:     now.Add(3 * time.Minute),
		},
		{
			ID:            uuid.New(),
			Title:         "Product Management Summit",
			Description:   "A full-day summit dedicated to product management best practices, featuring speakers from top tech companies.",
			Category:      events.CategoryBusiness,
			Format:        events.FormatInPerson,
			Location:      "Chicago, IL",
			StartsAt:      summitStart,
			EndsAt:        until(summitStart, 9),
			PriceCents:    12000,
			Capacity:      300,
			ImageURL:      "https://images.unsplash.com/photo-1515187029135-18ee286d815b",
			OrganizerName: "PM Guild",
			CreatedAt:     now.Add(4 * time.Minute),
			UpdatedAt:     now.Add(4 * time.Minute),
		},
		{
			ID:            uuid.New(),
			Title:         "Web3 and Blockchain Webinar",
			Description:   "Explore the future of Web3 and blockchain technology with industry experts.",
			Category:      events.CategoryTechnology,
			Format:        events.FormatVirtual,
			Location:      "Online",
			StartsAt:      webinarStart,
			EndsAt:        until(webinarStart, 1),
			ImageURL:      "https://images.unsplash.com/photo-1639762681485-074b7f938ba0",
			OrganizerName: "Chain Talks",
			CreatedAt:     now.Add(5 * time.Minute),
			UpdatedAt:     now.Add(5 * time.Minute),
		},
	}
}

// seedPostgresEvents inserts the demo events into an empty database.
func seedPostgresEvents(ctx context.Context, repo events.Repository, logger *slog.Logger) error {
	limit := 1
	existing, err := repo.List(ctx, events.ListOptions{Limit: &limit})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	demo := seedLocalEvents()
	for _, event := range demo {
		if _, err := repo.Create(ctx, event); err != nil {
			return err
		}
	}
	logger.Info("seeded demo events", "count", len(demo))
	return nil
}
