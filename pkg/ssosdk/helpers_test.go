package ssosdk_test

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://app.test"

var testProvider = ssosdk.ProviderConfig{
	AuthURL:  "https://idp.test/auth",
	ClientID: "app",
	Scope:    "openid",
}

type fakeBackend struct {
	mu sync.Mutex

	config      ssosdk.ProviderConfig
	discoverErr error
	discovers   int

	exchangeResp ssosdk.ExchangeResponse
	exchangeErr  error
	exchanges    []ssosdk.ExchangeRequest
	// When exchangeGate is set, Exchange signals exchangeEntered and waits
	// for the gate to close before answering.
	exchangeEntered chan struct{}
	exchangeGate    chan struct{}

	validity    ssosdk.ValidityResponse
	validityErr error
	checks      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		config:       testProvider,
		exchangeResp: ssosdk.ExchangeResponse{Token: "T1", User: json.RawMessage(`{"id":1}`)},
		validity:     ssosdk.ValidityResponse{Valid: true},
	}
}

func (b *fakeBackend) Discover(ctx context.Context, _ ssosdk.DiscoveryVariant) (ssosdk.ProviderConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discovers++
	return b.config, b.discoverErr
}

func (b *fakeBackend) Exchange(ctx context.Context, req ssosdk.ExchangeRequest) (ssosdk.ExchangeResponse, error) {
	b.mu.Lock()
	b.exchanges = append(b.exchanges, req)
	resp, err := b.exchangeResp, b.exchangeErr
	entered, gate := b.exchangeEntered, b.exchangeGate
	b.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if err != nil {
		return ssosdk.ExchangeResponse{}, err
	}
	return resp, nil
}

func (b *fakeBackend) CheckValidity(ctx context.Context, token string) (ssosdk.ValidityResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checks++
	return b.validity, b.validityErr
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) exchangeCalls() []ssosdk.ExchangeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ssosdk.ExchangeRequest(nil), b.exchanges...)
}

func (b *fakeBackend) discoverCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discovers
}

// providerFunc plays the identity provider: given the authorization URL it
// returns the callback parameters, or false to never answer.
type providerFunc func(u *url.URL) (ssosdk.CallbackParams, bool)

// approve answers with code and the request's own state.
func approve(code string) providerFunc {
	return func(u *url.URL) (ssosdk.CallbackParams, bool) {
		return ssosdk.CallbackParams{Code: code, State: u.Query().Get("state")}, true
	}
}

func deny(code string) providerFunc {
	return func(u *url.URL) (ssosdk.CallbackParams, bool) {
		return ssosdk.CallbackParams{Error: code, State: u.Query().Get("state")}, true
	}
}

func silence() providerFunc {
	return func(*url.URL) (ssosdk.CallbackParams, bool) { return ssosdk.CallbackParams{}, false }
}

type fakeWindow struct {
	mu         sync.Mutex
	url        *url.URL
	closed     bool
	selfClosed bool
}

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWindow) state() (closed, selfClosed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed, w.selfClosed
}

// fakeHost simulates popup and hidden frame round trips by calling the
// manager's callback bridge from a goroutine, like a real browser would.
type fakeHost struct {
	mu sync.Mutex

	origin       string
	bridge       *ssosdk.CallbackBridge
	popupBlocked bool
	popupAnswer  providerFunc
	hiddenAnswer providerFunc

	popups    []*fakeWindow
	hiddens   []*fakeWindow
	navigated []*url.URL
}

func newFakeHost() *fakeHost {
	return &fakeHost{origin: testOrigin, popupAnswer: approve("abc"), hiddenAnswer: silence()}
}

func (h *fakeHost) Origin() string { return h.origin }

func (h *fakeHost) OpenPopup(ctx context.Context, raw string) (ssosdk.Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.popupBlocked {
		return nil, ssosdk.ErrPopupBlocked
	}
	w := h.open(raw, ssosdk.HostedPopup, h.popupAnswer)
	h.popups = append(h.popups, w)
	return w, nil
}

func (h *fakeHost) OpenHidden(ctx context.Context, raw string) (ssosdk.Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := h.open(raw, ssosdk.HostedFrame, h.hiddenAnswer)
	h.hiddens = append(h.hiddens, w)
	return w, nil
}

func (h *fakeHost) NavigateTop(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.navigated = append(h.navigated, u)
	return nil
}

func (h *fakeHost) open(raw string, hosting ssosdk.Hosting, answer providerFunc) *fakeWindow {
	u, _ := url.Parse(raw)
	w := &fakeWindow{url: u}
	bridge := h.bridge

	go func() {
		params, ok := answer(u)
		if !ok {
			return
		}
		res := bridge.Handle(context.Background(), ssosdk.CallbackRequest{
			Hosting: hosting,
			Origin:  h.origin,
			Params:  params,
		})
		if res.CloseWindow {
			w.mu.Lock()
			w.selfClosed = true
			w.closed = true
			w.mu.Unlock()
		}
	}()
	return w
}

func (h *fakeHost) set(fn func(h *fakeHost)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

func (h *fakeHost) counts() (popups, hiddens int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.popups), len(h.hiddens)
}

func (h *fakeHost) lastPopup() *fakeWindow {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.popups[len(h.popups)-1]
}

func (h *fakeHost) lastHidden() *fakeWindow {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hiddens[len(h.hiddens)-1]
}

type recordingNotifier struct {
	mu       sync.Mutex
	warnings []ssosdk.Warning
	cleared  int
	logouts  []ssosdk.LogoutReason
}

func (n *recordingNotifier) ExpiryWarning(w ssosdk.Warning) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, w)
}

func (n *recordingNotifier) WarningCleared() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleared++
}

func (n *recordingNotifier) LoggedOut(r ssosdk.LogoutReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logouts = append(n.logouts, r)
}

func (n *recordingNotifier) snapshot() (warnings []ssosdk.Warning, cleared int, logouts []ssosdk.LogoutReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ssosdk.Warning(nil), n.warnings...), n.cleared, append([]ssosdk.LogoutReason(nil), n.logouts...)
}

// fakeClock is a settable clock for cooldown and debounce decisions.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	m        *ssosdk.Manager
	backend  *fakeBackend
	host     *fakeHost
	store    *ssosdk.MemoryStorage
	notifier *recordingNotifier
}

func newHarness(t *testing.T, cfg ssosdk.Config) *harness {
	t.Helper()

	h := &harness{
		backend:  newFakeBackend(),
		host:     newFakeHost(),
		store:    ssosdk.NewMemoryStorage(),
		notifier: &recordingNotifier{},
	}
	if cfg.SilentTimeout == 0 {
		cfg.SilentTimeout = 100 * time.Millisecond
	}
	if cfg.PopupTimeout == 0 {
		cfg.PopupTimeout = 2 * time.Second
	}

	m, err := ssosdk.NewManager(cfg, ssosdk.Deps{
		Backend:  h.backend,
		Host:     h.host,
		Storage:  h.store,
		Notifier: h.notifier,
		Logger:   slogx.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	h.host.bridge = m.Callback()
	h.m = m
	return h
}

var desktop = ssosdk.Capabilities{ViewportWidth: 1440, UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"}

// login establishes a session through a popup.
func (h *harness) login(t *testing.T) *ssosdk.Session {
	t.Helper()
	res, err := h.m.Login(context.Background(), desktop)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	return res.Session
}

func (h *harness) value(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func (h *harness) requireNoAttemptKeys(t *testing.T) {
	t.Helper()
	for _, k := range h.store.Keys() {
		require.False(t, ssosdk.IsAttemptKey(k), "attempt key %q left behind", k)
	}
}

func intPtr(v int) *int { return &v }

// unsignedJWT is an access token carrying only an exp claim.
func unsignedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"exp": exp.Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return tok
}
