package ssosdk

import (
	"context"
	"sync"
	"time"
)

// Decision is the user's answer to an expiry warning.
type Decision int

const (
	StaySignedIn Decision = iota
	SignOut
)

// LogoutReason says why a session ended.
type LogoutReason string

const (
	// ReasonInvalid: the backend reported the session invalid and silent
	// refresh could not recover it.
	ReasonInvalid LogoutReason = "session_invalid"
	// ReasonExpired: a warning's countdown ran out.
	ReasonExpired LogoutReason = "expired"
	// ReasonSignedOut: the user chose to sign out.
	ReasonSignedOut LogoutReason = "signed_out"
)

// Warning is an expiry countdown to show the user.
type Warning struct {
	ExpiresInSeconds int
	Deadline         time.Time
}

// Notifier renders the expiry UI. Calls arrive from the monitor goroutine
// and timers, so implementations must not block.
type Notifier interface {
	ExpiryWarning(w Warning)
	WarningCleared()
	LoggedOut(reason LogoutReason)
}

// NopNotifier ignores everything.
type NopNotifier struct{}

func (NopNotifier) ExpiryWarning(Warning)  {}
func (NopNotifier) WarningCleared()        {}
func (NopNotifier) LoggedOut(LogoutReason) {}

// coordinator turns validity snapshots into renewals, warnings and logouts.
type coordinator struct {
	m         *Manager
	threshold time.Duration

	mu        sync.Mutex
	countdown *time.Timer
}

func (c *coordinator) handle(ctx context.Context, snap Snapshot) {
	m := c.m
	if m.isLoggedOut() {
		return
	}

	if !snap.Valid {
		res := m.SilentRefresh(ctx)
		if res.Outcome == OutcomeFailed {
			_ = m.forceLogout(ctx, ReasonInvalid)
		}
		// Not attempted: a refresh is running or just ran; the next
		// check decides again.
		return
	}

	if snap.ExpiresInSeconds != nil && time.Duration(*snap.ExpiresInSeconds)*time.Second <= c.threshold {
		if m.refresh.warning() {
			// This window already warned; the countdown owns it now.
			return
		}

		res := m.SilentRefresh(ctx)
		if res.Outcome != OutcomeFailed {
			return
		}

		if m.refresh.markWarning() {
			w := Warning{
				ExpiresInSeconds: *snap.ExpiresInSeconds,
				Deadline:         snap.CheckedAt.Add(time.Duration(*snap.ExpiresInSeconds) * time.Second),
			}
			c.arm(w)
			m.log.Info("session expiry warning", "expires_in", w.ExpiresInSeconds)
			m.notifier.ExpiryWarning(w)
		}
		return
	}

	// Comfortably valid again, e.g. extended elsewhere.
	c.clearWarning()
}

// clearWarning retracts a shown warning, so a later window can warn again.
func (c *coordinator) clearWarning() {
	if c.m.refresh.clearWarning() {
		c.disarm()
		c.m.notifier.WarningCleared()
	}
}

// arm starts the countdown to w's deadline. Reaching it logs out.
func (c *coordinator) arm(w Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdown != nil {
		c.countdown.Stop()
	}
	wait := max(w.Deadline.Sub(c.m.cfg.Now()), 0)
	c.countdown = time.AfterFunc(wait, func() {
		_ = c.m.forceLogout(context.Background(), ReasonExpired)
	})
}

func (c *coordinator) disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}

// Decide applies the user's answer to the expiry warning. Staying signed in
// is a silent refresh under the usual guard; its error says why it did not
// extend the session.
func (m *Manager) Decide(ctx context.Context, d Decision) error {
	if d == SignOut {
		return m.forceLogout(ctx, ReasonSignedOut)
	}
	return m.SilentRefresh(ctx).Err
}
