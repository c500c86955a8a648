package session

import (
	"context"
	"errors"
	"fmt"

	"eventhub/internal/auth"
	"eventhub/internal/profiles"
	"eventhub/internal/provider"
)

// Initialize resolves the stored provider session within InitTimeout and
// waits for the state to settle. A provider that does not answer in time
// yields PhaseTimedOut. The lookup runs detached from ctx: a caller that
// gives up early gets ctx.Err() while the Manager still settles.
func (m *Manager) Initialize(ctx context.Context) (Snapshot, error) {
	m.touch()

	resolved := make(chan error, 1)
	go func() {
		resolved <- m.initialize(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-resolved:
		if err != nil {
			return m.Snapshot(), err
		}
		return m.WaitSettled(ctx)
	case <-ctx.Done():
		return m.Snapshot(), ctx.Err()
	}
}

// initialize performs the lookup and applies its outcome. ctx must not be
// cancelled by callers; every wait is bounded by InitTimeout or the Manager
// closing.
func (m *Manager) initialize(ctx context.Context) error {
	var gen uint64
	if err := m.do(ctx, func() {
		gen = m.gen
		if m.st.user == nil {
			m.st.phase = PhaseResolving
			m.dirty = true
		}
	}); err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, m.cfg.InitTimeout)
	defer cancel()

	session, err := within(initCtx, m.auth.GetSession)
	if err == nil && session != nil {
		if verr := m.checkSession(initCtx, session); verr != nil {
			m.logger.Warn("discarding stored session", "error", verr)
			signOutCtx, cancelSignOut := context.WithTimeout(ctx, m.cfg.InitTimeout)
			_ = m.auth.SignOut(signOutCtx)
			cancelSignOut()
			session = nil
		}
	}

	var apply func()
	switch {
	case errors.Is(initCtx.Err(), context.DeadlineExceeded) && (err != nil || session == nil):
		m.logger.Warn("session initialization timed out", "timeout", m.cfg.InitTimeout)
		apply = func() { m.settleAnonymous(gen, PhaseTimedOut) }
	case err != nil:
		m.logger.Warn("session lookup failed", "error", err)
		apply = func() { m.settleAnonymous(gen, PhaseUnauthenticated) }
	case session == nil:
		apply = func() { m.settleAnonymous(gen, PhaseUnauthenticated) }
	default:
		apply = func() {
			if m.gen == gen {
				m.adopt(session)
			}
		}
	}

	return m.do(ctx, apply)
}

func (m *Manager) checkSession(ctx context.Context, session *provider.Session) error {
	if m.verifier == nil {
		return nil
	}
	claims, err := m.verifier.Verify(ctx, session.AccessToken)
	if err != nil {
		return err
	}
	if claims.Subject != session.User.ID {
		return ErrSessionMismatch
	}
	return nil
}

// SignUp registers an account with fullName as metadata. No profile row is
// created here. While the provider waits for email confirmation no session
// is returned and the user stays nil.
func (m *Manager) SignUp(ctx context.Context, email, password, fullName string) (snap Snapshot, err error) {
	end := m.beginOp()
	defer func() { snap = end() }()

	_, session, err := m.auth.SignUp(ctx, email, password, map[string]any{"full_name": fullName})
	if err != nil {
		m.fail(ctx, "sign_up", "Error creating account", err)
		return m.Snapshot(), fmt.Errorf("sign up: %w", err)
	}

	if session != nil {
		if err := m.do(ctx, func() { m.adopt(session) }); err != nil {
			return m.Snapshot(), err
		}
	}
	m.succeed(ctx, "sign_up", "Account created", "Please check your email to confirm your account.")
	return m.Snapshot(), nil
}

// SignIn authenticates with a password, adopts the returned session directly
// and waits until the user's profile is resolved.
func (m *Manager) SignIn(ctx context.Context, email, password string) (snap Snapshot, err error) {
	end := m.beginOp()
	defer func() { snap = end() }()

	session, err := m.auth.SignInWithPassword(ctx, email, password)
	if err == nil {
		if err = m.checkSession(ctx, session); err != nil {
			_ = m.auth.SignOut(ctx)
			_ = m.do(ctx, m.clear)
		}
	}
	if err != nil {
		m.fail(ctx, "sign_in", "Error signing in", err)
		return m.Snapshot(), fmt.Errorf("sign in: %w", err)
	}

	if err := m.do(ctx, func() { m.adopt(session) }); err != nil {
		return m.Snapshot(), err
	}
	userID := session.User.ID
	if _, err := m.waitFor(ctx, func(s Snapshot) bool {
		if s.User == nil || s.User.ID != userID {
			return true
		}
		return s.Profile != nil
	}); err != nil {
		return m.Snapshot(), err
	}

	m.succeed(ctx, "sign_in", "Welcome back!", "You have successfully signed in.")
	return m.Snapshot(), nil
}

// SignOut signs out at the provider and clears local state whatever the
// provider answered. A provider failure is notified and returned after the
// state has been cleared.
func (m *Manager) SignOut(ctx context.Context) (snap Snapshot, err error) {
	end := m.beginOp()
	defer func() { snap = end() }()

	remoteErr := m.auth.SignOut(ctx)
	if err := m.do(context.WithoutCancel(ctx), m.clear); err != nil {
		return m.Snapshot(), err
	}

	if remoteErr != nil {
		m.fail(ctx, "sign_out", "Error signing out", remoteErr)
		return m.Snapshot(), fmt.Errorf("sign out: %w", remoteErr)
	}
	m.succeed(ctx, "sign_out", "Signed out", "You have been signed out successfully.")
	return m.Snapshot(), nil
}

// ResetPassword sends a recovery email linking to PasswordResetURL.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	end := m.beginOp()
	defer end()

	if err := m.auth.ResetPasswordForEmail(ctx, email, m.cfg.PasswordResetURL); err != nil {
		m.fail(ctx, "reset_password", "Error resetting password", err)
		return fmt.Errorf("reset password: %w", err)
	}
	m.succeed(ctx, "reset_password", "Password reset email sent", "Check your email for a link to reset your password.")
	return nil
}

// UpdatePassword changes the signed-in user's password.
func (m *Manager) UpdatePassword(ctx context.Context, password string) error {
	if !m.Snapshot().Authenticated() {
		m.fail(ctx, "update_password", "Error updating password", ErrUnauthenticated)
		return ErrUnauthenticated
	}

	end := m.beginOp()
	defer end()

	if _, err := m.auth.UpdateUser(ctx, provider.UserAttributes{Password: password}); err != nil {
		m.fail(ctx, "update_password", "Error updating password", err)
		return fmt.Errorf("update password: %w", err)
	}
	m.succeed(ctx, "update_password", "Password updated", "Your password has been updated successfully.")
	return nil
}

// UpdateProfile writes patch for the signed-in user with one upsert and
// adopts the stored row.
func (m *Manager) UpdateProfile(ctx context.Context, patch profiles.Patch) (profiles.Profile, error) {
	snap := m.Snapshot()
	if snap.User == nil {
		m.fail(ctx, "update_profile", "Error updating profile", ErrUnauthenticated)
		return profiles.Profile{}, ErrUnauthenticated
	}

	end := m.beginOp()
	defer end()

	valid, err := patch.Validate()
	if err != nil {
		m.fail(ctx, "update_profile", "Error updating profile", err)
		return profiles.Profile{}, err
	}

	user := *snap.User
	now := m.now().UTC()
	base := profiles.DefaultFor(user.ID, user.Email, user.FullName(), now)
	if snap.Profile != nil {
		base = *snap.Profile
	}
	base.ID = user.ID
	base.UpdatedAt = now

	row, err := m.profiles.Upsert(ctx, base, valid)
	if errors.Is(err, profiles.ErrNotFound) {
		row, err = m.profiles.Get(ctx, user.ID)
	}
	if err != nil {
		m.fail(ctx, "update_profile", "Error updating profile", err)
		return profiles.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	if err := m.do(ctx, func() { m.applyProfile(row) }); err != nil {
		return row, err
	}
	m.succeed(ctx, "update_profile", "Profile updated", "Your profile has been updated successfully.")
	return row, nil
}

// RefreshProfile re-resolves the signed-in user's profile and replaces the
// local copy. It returns (nil, nil) when nobody is signed in.
func (m *Manager) RefreshProfile(ctx context.Context) (*profiles.Profile, error) {
	snap := m.Snapshot()
	if snap.User == nil {
		return nil, nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, m.cfg.ResolveTimeout)
	defer cancel()

	profile := m.ensureProfile(resolveCtx, *snap.User)
	if err := m.do(ctx, func() { m.applyProfile(profile) }); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (m *Manager) succeed(ctx context.Context, op, title, description string) {
	m.metrics.ObserveOperation(op, nil)
	m.notifier.Notify(ctx, Notification{
		Title:       title,
		Description: description,
		Variant:     VariantDefault,
		CreatedAt:   m.now(),
	})
}

func (m *Manager) fail(ctx context.Context, op, title string, err error) {
	m.metrics.ObserveOperation(op, err)
	m.logger.Warn("session operation failed", "op", op, "error", err)
	m.notifier.Notify(ctx, Notification{
		Title:       title,
		Description: Message(err),
		Variant:     VariantDestructive,
		CreatedAt:   m.now(),
	})
}

// Message is the user-facing text for err.
func Message(err error) string {
	var verr *profiles.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrUnauthenticated):
		return "You must be signed in to do that."
	case errors.Is(err, ErrSessionMismatch), errors.Is(err, auth.ErrInvalidToken):
		return "Your session could not be verified. Please sign in again."
	default:
		return provider.UserMessage(err)
	}
}
