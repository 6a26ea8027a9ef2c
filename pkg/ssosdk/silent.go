package ssosdk

import (
	"context"
	"fmt"
)

// RefreshOutcome is how a silent refresh ended.
type RefreshOutcome int

const (
	// OutcomeNotAttempted means the guard refused; nothing touched the network.
	OutcomeNotAttempted RefreshOutcome = iota
	OutcomeRefreshed
	OutcomeFailed
)

func (o RefreshOutcome) String() string {
	switch o {
	case OutcomeNotAttempted:
		return "not_attempted"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RefreshResult is the single result of a SilentRefresh call.
type RefreshResult struct {
	Outcome RefreshOutcome
	Session *Session
	Err     error
}

// SilentRefresh renews the session through a hidden context with a
// non-interactive prompt. At most one runs at a time, and none starts
// within the cooldown of the previous one's completion.
func (m *Manager) SilentRefresh(ctx context.Context) RefreshResult {
	if err := m.refresh.tryBegin(m.cfg.Now(), m.cfg.RefreshCooldown); err != nil {
		m.log.Debug("silent refresh skipped", "reason", err)
		return RefreshResult{Outcome: OutcomeNotAttempted, Err: err}
	}
	sess, err := m.runSilent(ctx)
	m.refresh.end(m.cfg.Now(), err == nil)
	if err != nil {
		m.log.Info("silent refresh failed", "err", err, "interaction_required", IsSilentAuthError(err))
		return RefreshResult{Outcome: OutcomeFailed, Err: err}
	}

	m.log.Info("silent refresh succeeded")
	return RefreshResult{Outcome: OutcomeRefreshed, Session: sess}
}

func (m *Manager) runSilent(ctx context.Context) (*Session, error) {
	epoch := m.guard.current()

	// Randomness comes first: without it nothing may reach the network.
	at, err := m.attempts.begin(ctx, KindSilent, m.cfg.SilentRedirectURI)
	if err != nil {
		return nil, err
	}

	pc, err := m.backend.Discover(ctx, DiscoverySilent)
	if err != nil {
		_ = m.attempts.abandon(ctx, KindSilent)
		return nil, fmt.Errorf("silent discovery: %w", err)
	}

	u, err := authURL(pc, at, m.cfg.IDPHintParam, authOptions{Prompt: m.cfg.SilentPrompt})
	if err != nil {
		_ = m.attempts.abandon(ctx, KindSilent)
		return nil, err
	}

	// Subscribe before loading so a fast relay cannot be missed.
	sub := m.bus.Subscribe(MessageSilentCallback)
	frame, err := m.host.OpenHidden(ctx, u)
	if err != nil {
		sub.Close()
		_ = m.attempts.abandon(ctx, KindSilent)
		return nil, fmt.Errorf("failed to open hidden context: %w", err)
	}
	defer func() {
		if err := frame.Close(); err != nil {
			m.log.Debug("failed to discard hidden context", "err", err)
		}
	}()

	msg, err := awaitCallback(ctx, sub, m.cfg.SilentTimeout, ErrSilentTimeout)
	if err != nil {
		_ = m.attempts.abandon(ctx, KindSilent)
		return nil, err
	}

	return m.redeem(ctx, KindSilent, msg, epoch)
}
