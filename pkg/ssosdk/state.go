package ssosdk

import (
	"sync"
	"time"
)

// RefreshStatus is a copy of the refresh attempt state.
type RefreshStatus struct {
	InProgress   bool
	LastAttempt  time.Time
	WarningShown bool
}

// refreshState is the single shared guard of silent refresh. Every entry
// point checks and sets it under one lock.
type refreshState struct {
	mu            sync.Mutex
	inProgress    bool
	lastAttempt   time.Time
	lastSucceeded bool
	warningShown  bool
}

// tryBegin marks a refresh in progress. It fails with ErrRefreshInFlight or
// ErrCooldown without side effects.
func (s *refreshState) tryBegin(now time.Time, cooldown time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress {
		return ErrRefreshInFlight
	}
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < cooldown {
		return ErrCooldown
	}

	s.inProgress = true
	s.lastAttempt = now
	return nil
}

// end releases the guard and records how the run went. The cooldown runs
// from completion.
func (s *refreshState) end(now time.Time, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	s.lastAttempt = now
	s.lastSucceeded = succeeded
}

// succeeded reports whether the last completed refresh renewed the session.
func (s *refreshState) succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSucceeded
}

// markWarning records that a warning is showing. It reports false when one
// already was, so a window warns once.
func (s *refreshState) markWarning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warningShown {
		return false
	}
	s.warningShown = true
	return true
}

// clearWarning reports whether a warning was showing.
func (s *refreshState) clearWarning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.warningShown
	s.warningShown = false
	return was
}

func (s *refreshState) warning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warningShown
}

// reset forgets everything, after a definitive logout. A refresh still
// running keeps the guard until its own end.
func (s *refreshState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAttempt = time.Time{}
	s.lastSucceeded = false
	s.warningShown = false
}

func (s *refreshState) status() RefreshStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RefreshStatus{InProgress: s.inProgress, LastAttempt: s.lastAttempt, WarningShown: s.warningShown}
}

// sessionGuard serialises session writes against logout. Every logout
// starts a new epoch; an exchange begun in an earlier epoch is dropped.
type sessionGuard struct {
	mu    sync.Mutex
	epoch uint64
}

func (g *sessionGuard) current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// commit runs fn if epoch is still the current one, else ErrSessionEnded.
func (g *sessionGuard) commit(epoch uint64, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return ErrSessionEnded
	}
	return fn()
}

// end runs fn as the first step of a new epoch.
func (g *sessionGuard) end(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	fn()
}
