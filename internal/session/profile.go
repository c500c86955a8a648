package session

import (
	"context"
	"errors"
	"time"

	"eventhub/internal/profiles"
	"eventhub/internal/provider"
)

// Profile resolution outcomes reported to Metrics.
const (
	ResolvedFound        = "found"
	ResolvedBootstrapped = "bootstrapped"
	ResolvedFallback     = "fallback"
)

// ensureProfile returns the stored profile for user, creating the default row
// when none exists. Transient fetch errors are retried with exponential
// backoff and then degrade to an in-memory default that is not written. It
// never fails.
func (m *Manager) ensureProfile(ctx context.Context, user provider.User) profiles.Profile {
	fallback := profiles.DefaultFor(user.ID, user.Email, user.FullName(), m.now().UTC())

	var err error
	for attempt := 0; attempt <= m.cfg.ProfileRetries; attempt++ {
		if attempt > 0 && !sleep(ctx, m.cfg.RetryBackoff<<(attempt-1)) {
			break
		}

		var profile profiles.Profile
		profile, err = within(ctx, func(ctx context.Context) (profiles.Profile, error) {
			return m.profiles.Get(ctx, user.ID)
		})
		if err == nil {
			m.metrics.ObserveProfileResolution(ResolvedFound)
			return profile
		}
		if errors.Is(err, profiles.ErrNotFound) {
			return m.bootstrapProfile(ctx, fallback)
		}
		if ctx.Err() != nil {
			break
		}
		m.logger.Debug("profile fetch failed", "user_id", user.ID, "attempt", attempt+1, "error", err)
	}

	m.logger.Warn("using fallback profile", "user_id", user.ID, "error", err)
	m.metrics.ObserveProfileResolution(ResolvedFallback)
	return fallback
}

func (m *Manager) bootstrapProfile(ctx context.Context, profile profiles.Profile) profiles.Profile {
	inserted, err := within(ctx, func(ctx context.Context) (profiles.Profile, error) {
		return m.profiles.Insert(ctx, profile)
	})
	if err != nil {
		m.logger.Warn("profile bootstrap failed", "user_id", profile.ID, "error", err)
		m.metrics.ObserveProfileResolution(ResolvedFallback)
		return profile
	}
	m.logger.Info("profile created", "user_id", profile.ID)
	m.metrics.ObserveProfileResolution(ResolvedBootstrapped)
	return inserted
}

// within runs f but stops waiting once ctx is done, so a collaborator that
// ignores cancellation cannot stall the caller.
func within[T any](ctx context.Context, f func(context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	results := make(chan result, 1)
	go func() {
		value, err := f(ctx)
		results <- result{value: value, err: err}
	}()

	select {
	case r := <-results:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
