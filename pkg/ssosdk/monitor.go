package ssosdk

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is the latest validity check result.
type Snapshot struct {
	Valid            bool
	ExpiresInSeconds *int
	CheckedAt        time.Time
	// Err is the last check's transport or server error. Valid is then
	// left as it was.
	Err error
}

// monitor runs the session validity checks: a ticker plus debounced
// visibility events. It is started and halted with the session.
type monitor struct {
	check    func(ctx context.Context) (ValidityResponse, error)
	react    func(ctx context.Context, snap Snapshot)
	interval time.Duration
	minGap   time.Duration
	now      func() time.Time
	log      *slog.Logger

	checkMu sync.Mutex // serialises checks

	mu        sync.Mutex
	snap      Snapshot
	lastCheck time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	visible   chan struct{}
}

func (m *monitor) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// seed replaces the snapshot, after a session is established.
func (m *monitor) seed(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.lastCheck = snap.CheckedAt
}

func (m *monitor) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCh != nil
}

// start launches the loop unless it is already running.
func (m *monitor) start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	if m.visible == nil {
		m.visible = make(chan struct{}, 1)
	}
	go m.loop(ctx, m.stopCh, m.doneCh)
}

// halt stops the loop without waiting, so it may be called from a reaction
// running on the loop itself.
func (m *monitor) halt() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh == nil {
		done := make(chan struct{})
		close(done)
		return done
	}

	close(m.stopCh)
	done := m.doneCh
	m.stopCh, m.doneCh = nil, nil
	return done
}

// visibilityRegained schedules a check if the loop is running.
func (m *monitor) visibilityRegained() {
	m.mu.Lock()
	ch := m.visible
	running := m.stopCh != nil
	m.mu.Unlock()
	if !running {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (m *monitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCheck(ctx)
		case <-m.visible:
			if m.sinceLastCheck() < m.minGap {
				m.log.Debug("visibility check debounced")
				continue
			}
			m.runCheck(ctx)
		}
	}
}

func (m *monitor) sinceLastCheck() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastCheck.IsZero() {
		return m.minGap
	}
	return m.now().Sub(m.lastCheck)
}

// runCheck performs one check. A failed check keeps the previous validity
// and does not reach the coordinator.
func (m *monitor) runCheck(ctx context.Context) Snapshot {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	resp, err := m.check(ctx)
	now := m.now()

	m.mu.Lock()
	m.lastCheck = now
	if err != nil {
		m.snap.Err = err
		snap := m.snap
		m.mu.Unlock()
		m.log.Warn("session validity check failed, keeping previous state", "valid", snap.Valid, "err", err)
		return snap
	}
	m.snap = Snapshot{Valid: resp.Valid, ExpiresInSeconds: resp.ExpiresIn, CheckedAt: now}
	snap := m.snap
	m.mu.Unlock()

	m.log.Debug("session validity checked", "valid", snap.Valid, "expires_in", derefOr(snap.ExpiresInSeconds, -1))
	m.react(ctx, snap)
	return snap
}

func derefOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
