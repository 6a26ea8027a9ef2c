package ssosdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"github.com/hashicorp/go-multierror"
)

// Deps are the collaborators of a Manager. Storage defaults to memory and
// Notifier to NopNotifier.
type Deps struct {
	Backend  Backend
	Host     Host
	Storage  Storage
	Notifier Notifier
	Logger   *slog.Logger
}

// Manager owns the SSO session lifecycle: login, callback, validity
// monitoring, silent refresh, expiry coordination and readiness.
type Manager struct {
	cfg      Config
	backend  Backend
	host     Host
	notifier Notifier
	log      *slog.Logger

	bus       *Bus
	attempts  attempts
	sessions  sessions
	exchanger *exchanger
	refresh   refreshState
	readiness *Readiness
	monitor   *monitor
	coord     *coordinator
	bridge    *CallbackBridge

	// guard orders session writes against logout.
	guard sessionGuard

	// interactive guards the single popup attempt.
	interactive atomic.Bool

	mu        sync.Mutex
	runCtx    context.Context
	cancel    context.CancelFunc
	started   bool
	loggedOut bool
}

// LoginResult describes a finished or handed-off interactive login.
type LoginResult struct {
	Flow Flow
	// Session is set when a popup login completed.
	Session *Session
	// Redirected is true when the top-level context was navigated to the
	// provider; CompleteRedirect finishes the login.
	Redirected bool
}

// NewManager creates a Manager. Backend and Host are required.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Backend == nil {
		return nil, errors.New("ssosdk: backend is required")
	}
	if deps.Host == nil {
		return nil, errors.New("ssosdk: host is required")
	}
	if deps.Storage == nil {
		deps.Storage = NewMemoryStorage()
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	origin := deps.Host.Origin()
	cfg = cfg.withDefaults(origin)
	log := deps.Logger.With("component", "sso")

	m := &Manager{
		cfg:       cfg,
		backend:   deps.Backend,
		host:      deps.Host,
		notifier:  deps.Notifier,
		log:       log,
		bus:       NewBus(origin),
		attempts:  attempts{store: deps.Storage, entropy: cfg.Entropy},
		sessions:  sessions{store: deps.Storage},
		readiness: NewReadiness(),
		loggedOut: true,
	}
	m.exchanger = &exchanger{
		backend:     m.backend,
		sessions:    m.sessions,
		attempts:    m.attempts,
		guard:       &m.guard,
		established: m.sessionEstablished,
		now:         cfg.Now,
		log:         log,
	}
	m.coord = &coordinator{m: m, threshold: cfg.WarningThreshold}
	m.monitor = &monitor{
		check:    m.checkValidity,
		react:    m.coord.handle,
		interval: cfg.CheckInterval,
		minGap:   cfg.VisibilityMinGap,
		now:      cfg.Now,
		log:      log.With("part", "monitor"),
	}
	m.bridge = &CallbackBridge{bus: m.bus, complete: m.CompleteRedirect, log: log.With("part", "callback")}

	return m, nil
}

// Callback is the bridge a Host runs on its redirect targets.
func (m *Manager) Callback() *CallbackBridge { return m.bridge }

// Readiness is the warm flag and ensure function for other features.
func (m *Manager) Readiness() *Readiness { return m.readiness }

// Bus is the message channel between callback contexts and the manager.
func (m *Manager) Bus() *Bus { return m.bus }

// Start restores a persisted SSO session and, if there is one, starts
// monitoring it. The monitor lives until ctx ends or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.mu.Unlock()

	sess, err := m.sessions.load(ctx, m.cfg.Now())
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.loggedOut = false
	m.mu.Unlock()

	// Provider cookies may not have survived the restart.
	m.readiness.SetWarmed(false)
	m.readiness.Register(m.warmUp)
	// Never checked, so the first visibility event is not debounced.
	m.monitor.seed(Snapshot{Valid: true, ExpiresInSeconds: sess.ExpiresInSeconds})
	m.startMonitor()
	m.monitor.visibilityRegained()

	m.log.Info("sso session restored", "token_fp", cryptox.ShortFingerprint(sess.AccessToken))
	return nil
}

// Close stops the monitor and any warning countdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	<-m.monitor.halt()
	m.coord.disarm()
	return nil
}

func (m *Manager) startMonitor() {
	m.mu.Lock()
	ctx, started := m.runCtx, m.started
	m.mu.Unlock()
	if started {
		m.monitor.start(ctx)
	}
}

// Login runs an interactive login. A blocked popup falls back to a redirect
// with a fresh attempt.
func (m *Manager) Login(ctx context.Context, caps Capabilities) (LoginResult, error) {
	flow := SelectFlow(caps)
	m.log.Info("login started", "flow", flow.String())

	if flow == FlowPopup {
		sess, err := m.popupAttempt(ctx, KindLogin, "")
		if !errors.Is(err, ErrPopupBlocked) {
			return LoginResult{Flow: FlowPopup, Session: sess}, err
		}
		m.log.Info("popup blocked, falling back to redirect")
	}

	if err := m.redirectAttempt(ctx); err != nil {
		return LoginResult{Flow: FlowRedirect}, err
	}
	return LoginResult{Flow: FlowRedirect, Redirected: true}, nil
}

func (m *Manager) popupAttempt(ctx context.Context, kind AttemptKind, hint string) (*Session, error) {
	if !m.interactive.CompareAndSwap(false, true) {
		return nil, ErrAttemptInProgress
	}
	defer m.interactive.Store(false)

	epoch := m.guard.current()
	at, err := m.attempts.begin(ctx, kind, m.cfg.RedirectURI)
	if err != nil {
		return nil, err
	}

	pc, err := m.backend.Discover(ctx, DiscoveryLogin)
	if err != nil {
		_ = m.attempts.abandon(ctx, kind)
		return nil, err
	}
	log := m.log.With("attempt_id", at.ID.String(), "kind", string(kind), "state_fp", cryptox.ShortFingerprint(at.State))

	u, err := authURL(pc, at, m.cfg.IDPHintParam, authOptions{IDPHint: hint})
	if err != nil {
		_ = m.attempts.abandon(ctx, kind)
		return nil, err
	}

	sub := m.bus.Subscribe(MessageCallback)
	win, err := m.host.OpenPopup(ctx, u)
	if err != nil {
		sub.Close()
		_ = m.attempts.abandon(ctx, kind)
		return nil, err
	}
	defer func() { _ = win.Close() }()
	log.Debug("popup opened")

	msg, err := awaitCallback(ctx, sub, m.cfg.PopupTimeout, ErrPopupTimeout)
	if err != nil {
		_ = m.attempts.abandon(ctx, kind)
		return nil, err
	}

	sess, err := m.redeem(ctx, kind, msg, epoch)
	if err != nil {
		m.sessions.recordError(ctx, err)
		return nil, err
	}

	log.Info("popup login completed")
	return sess, nil
}

func (m *Manager) redirectAttempt(ctx context.Context) error {
	at, err := m.attempts.begin(ctx, KindLogin, m.cfg.RedirectURI)
	if err != nil {
		return err
	}

	pc, err := m.backend.Discover(ctx, DiscoveryLogin)
	if err != nil {
		_ = m.attempts.abandon(ctx, KindLogin)
		return err
	}

	u, err := authURL(pc, at, m.cfg.IDPHintParam, authOptions{})
	if err != nil {
		_ = m.attempts.abandon(ctx, KindLogin)
		return err
	}

	m.log.Debug("navigating to provider", "attempt_id", at.ID.String())
	if err := m.host.NavigateTop(ctx, u); err != nil {
		_ = m.attempts.abandon(ctx, KindLogin)
		return fmt.Errorf("failed to navigate: %w", err)
	}
	return nil
}

// CompleteRedirect finishes a redirect login in the top-level context. A
// provider error is recorded for display and nothing is exchanged.
func (m *Manager) CompleteRedirect(ctx context.Context, p CallbackParams) (*Session, error) {
	sess, err := m.redeem(ctx, KindLogin, p.message(MessageCallback, m.host.Origin()), m.guard.current())
	if err != nil {
		m.sessions.recordError(ctx, err)
		return nil, err
	}

	m.log.Info("redirect login completed")
	return sess, nil
}

// redeem correlates msg with the pending attempt of kind and exchanges its
// code. Errors and mismatches consume the attempt without an exchange. The
// session is only established if no logout happened since epoch.
func (m *Manager) redeem(ctx context.Context, kind AttemptKind, msg CallbackMessage, epoch uint64) (*Session, error) {
	if err := msg.Err(); err != nil {
		_ = m.attempts.abandon(ctx, kind)
		return nil, err
	}

	at, err := m.attempts.consume(ctx, kind, msg.State)
	if err != nil {
		if errors.Is(err, ErrStateMismatch) {
			m.log.Warn("callback state mismatch, rejecting", "kind", string(kind), "state_fp", cryptox.ShortFingerprint(msg.State))
		}
		return nil, err
	}
	if msg.Code == "" {
		return nil, ErrMissingCode
	}

	return m.exchanger.exchange(ctx, msg.Code, at, epoch)
}

// sessionEstablished runs after every successful exchange, under the guard.
func (m *Manager) sessionEstablished(sess *Session) {
	m.mu.Lock()
	m.loggedOut = false
	m.mu.Unlock()

	m.coord.clearWarning()
	m.readiness.SetWarmed(true)
	m.readiness.Register(m.warmUp)
	m.monitor.seed(Snapshot{Valid: true, ExpiresInSeconds: sess.ExpiresInSeconds, CheckedAt: m.cfg.Now()})
	m.startMonitor()
}

// warmUp is the ensure function while a session exists: silent refresh,
// then a popup re-auth carrying the remembered identity-provider hint.
func (m *Manager) warmUp(ctx context.Context) bool {
	res := m.SilentRefresh(ctx)
	if res.Outcome == OutcomeRefreshed {
		return true
	}
	if errors.Is(res.Err, ErrRefreshInFlight) {
		return false
	}
	if errors.Is(res.Err, ErrCooldown) && m.refresh.succeeded() {
		// Renewed moments ago; the provider session is warm.
		m.readiness.SetWarmed(true)
		return true
	}

	hint := m.sessions.idpHint(ctx)
	m.log.Info("escalating to popup re-auth", "idp_hint", hint)
	if _, err := m.popupAttempt(ctx, KindReauth, hint); err != nil {
		m.log.Info("popup re-auth failed", "err", err)
		return false
	}
	return true
}

// EnsureReady makes the provider session usable before identity-protected
// content opens. False means the content will have to prompt itself.
func (m *Manager) EnsureReady(ctx context.Context) bool {
	return m.readiness.Ensure(ctx)
}

// VisibilityRegained is called when the application becomes visible again.
func (m *Manager) VisibilityRegained() {
	m.readiness.SetWarmed(false)
	m.monitor.visibilityRegained()
}

// Logout ends the session. It is safe to call without one.
func (m *Manager) Logout(ctx context.Context) error {
	return m.forceLogout(ctx, ReasonSignedOut)
}

// forceLogout clears the session and notifies at most once per session.
// Results of attempts begun before it are discarded.
func (m *Manager) forceLogout(ctx context.Context, reason LogoutReason) error {
	var (
		active bool
		errs   *multierror.Error
	)
	// A new epoch: exchanges still in flight cannot re-establish the session.
	m.guard.end(func() {
		m.mu.Lock()
		active = !m.loggedOut
		m.loggedOut = true
		m.mu.Unlock()

		m.monitor.halt()
		m.coord.disarm()

		errs = multierror.Append(errs, m.sessions.clear(ctx))
		errs = multierror.Append(errs, m.attempts.clear(ctx))

		m.refresh.reset()
		m.readiness.SetWarmed(false)
		m.readiness.Register(nil)
		m.monitor.seed(Snapshot{})
	})

	if active {
		m.log.Info("sso session ended", "reason", string(reason))
		m.notifier.LoggedOut(reason)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (m *Manager) isLoggedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedOut
}

func (m *Manager) checkValidity(ctx context.Context) (ValidityResponse, error) {
	sess, err := m.sessions.load(ctx, m.cfg.Now())
	if errors.Is(err, ErrNoSession) {
		return ValidityResponse{Valid: false}, nil
	}
	if err != nil {
		return ValidityResponse{}, err
	}
	return m.backend.CheckValidity(ctx, sess.AccessToken)
}

// CheckNow runs one validity check outside the schedule and returns the
// resulting snapshot.
func (m *Manager) CheckNow(ctx context.Context) Snapshot {
	return m.monitor.runCheck(ctx)
}

// Session returns the persisted session or ErrNoSession.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	return m.sessions.load(ctx, m.cfg.Now())
}

// Snapshot returns the latest validity snapshot.
func (m *Manager) Snapshot() Snapshot { return m.monitor.snapshot() }

// RefreshStatus returns a copy of the refresh attempt state.
func (m *Manager) RefreshStatus() RefreshStatus { return m.refresh.status() }

// LastError returns the last login failure recorded for display.
func (m *Manager) LastError(ctx context.Context) (string, error) {
	return m.sessions.lastError(ctx)
}
