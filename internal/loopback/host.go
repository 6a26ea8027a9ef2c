// Package loopback is an ssosdk.Host for native programs. It serves the
// redirect targets on a loopback listener, opens interactive windows with
// the system browser and runs hidden contexts with a headless HTTP client.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/httpx"
	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
)

const (
	CallbackPath       = "/callback"
	SilentCallbackPath = "/silent-callback"
)

// Opener shows url to the user, usually in the system browser. An error
// is reported to the manager as a blocked popup.
type Opener func(ctx context.Context, url string) error

// Config configures a loopback Host.
type Config struct {
	// Addr is the listen address. Defaults to 127.0.0.1:0.
	Addr string
	// Open shows interactive pages. Without it popups are always blocked.
	Open Opener
	// Browser runs hidden contexts. It must keep cookies for the provider
	// session to count. Defaults to a pooled client with a cookie jar.
	Browser *http.Client
	Logger  *slog.Logger
}

// Host serves /callback and /silent-callback for one Manager.
type Host struct {
	origin  string
	open    Opener
	browser *http.Client
	log     *slog.Logger

	ln  net.Listener
	srv *http.Server

	mu       sync.Mutex
	bridge   *ssosdk.CallbackBridge
	topOpen  bool
	frames   map[*frame]struct{}
	complete chan ssosdk.CallbackResult
}

var _ ssosdk.Host = (*Host)(nil)

// Listen binds the loopback address and starts serving. Attach must be
// called before the first callback arrives.
func Listen(cfg Config) (*Host, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Browser == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		cfg.Browser = cleanhttp.DefaultPooledClient()
		cfg.Browser.Jar = jar
		cfg.Browser.Timeout = 30 * time.Second
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	h := &Host{
		origin:   "http://" + ln.Addr().String(),
		open:     cfg.Open,
		browser:  cfg.Browser,
		log:      cfg.Logger.With("component", "loopback"),
		ln:       ln,
		frames:   make(map[*frame]struct{}),
		complete: make(chan ssosdk.CallbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CallbackPath, h.handleCallback)
	mux.HandleFunc("GET "+SilentCallbackPath, h.handleSilentCallback)

	h.srv = &http.Server{
		Handler:           httpx.Chain(mux, httpx.Recover(), slogx.HTTPMiddleware(h.log)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("loopback server stopped", "err", err)
		}
	}()

	h.log.Debug("loopback listening", "origin", h.origin)
	return h, nil
}

// Attach connects the host to the manager's callback bridge.
func (h *Host) Attach(b *ssosdk.CallbackBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

func (h *Host) Origin() string { return h.origin }

// CallbackURL and SilentCallbackURL are the redirect URIs to register with
// the provider.
func (h *Host) CallbackURL() string       { return h.origin + CallbackPath }
func (h *Host) SilentCallbackURL() string { return h.origin + SilentCallbackPath }

// Completed delivers the result of each redirect login finished on this
// host.
func (h *Host) Completed() <-chan ssosdk.CallbackResult { return h.complete }

func (h *Host) OpenPopup(ctx context.Context, url string) (ssosdk.Window, error) {
	if h.open == nil {
		return nil, ssosdk.ErrPopupBlocked
	}
	h.mu.Lock()
	h.topOpen = false
	h.mu.Unlock()

	if err := h.open(ctx, url); err != nil {
		h.log.Info("could not open browser", "err", err)
		return nil, fmt.Errorf("%w: %w", ssosdk.ErrPopupBlocked, err)
	}
	// The relay page closes itself; nothing to discard here.
	return browserWindow{}, nil
}

// NavigateTop hands the whole login to the browser. The callback then
// completes in the loopback server and is reported on Completed.
func (h *Host) NavigateTop(ctx context.Context, url string) error {
	if h.open == nil {
		return errors.New("loopback: no browser opener configured")
	}
	h.mu.Lock()
	h.topOpen = true
	h.mu.Unlock()

	if err := h.open(ctx, url); err != nil {
		h.mu.Lock()
		h.topOpen = false
		h.mu.Unlock()
		return err
	}
	return nil
}

// OpenHidden loads url with the headless browser. The provider's redirect
// lands on SilentCallbackPath, which relays it.
func (h *Host) OpenHidden(ctx context.Context, url string) (ssosdk.Window, error) {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &frame{host: h, cancel: cancel, done: make(chan struct{})}

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	h.mu.Lock()
	h.frames[f] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(f.done)
		resp, err := h.browser.Do(req)
		if err != nil {
			if fctx.Err() == nil {
				h.log.Debug("hidden context failed", "err", err)
			}
			return
		}
		_ = resp.Body.Close()
	}()
	return f, nil
}

func (h *Host) handleCallback(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	bridge := h.bridge
	hosting := ssosdk.HostedPopup
	if h.topOpen {
		hosting = ssosdk.HostedTop
		h.topOpen = false
	}
	h.mu.Unlock()

	if bridge == nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "no session manager attached")
		return
	}

	res := bridge.Handle(r.Context(), ssosdk.CallbackRequest{
		Hosting: hosting,
		Origin:  requestOrigin(r),
		Params:  ssosdk.ParseCallback(r.URL.Query()),
	})

	switch {
	case hosting == ssosdk.HostedTop:
		select {
		case h.complete <- res:
		default:
		}
		if res.Err != nil {
			httpx.WriteHTML(w, http.StatusBadRequest, resultPage("Sign-in failed", res.Err.Error(), false))
			return
		}
		httpx.WriteHTML(w, http.StatusOK, resultPage("Signed in", "You can return to the application.", true))
	case res.CloseWindow:
		httpx.WriteHTML(w, http.StatusOK, resultPage("Signed in", "This window can be closed.", true))
	default:
		httpx.WriteHTML(w, http.StatusOK, resultPage("Done", "", false))
	}
}

func (h *Host) handleSilentCallback(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	bridge := h.bridge
	h.mu.Unlock()
	if bridge == nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "no session manager attached")
		return
	}

	bridge.Handle(r.Context(), ssosdk.CallbackRequest{
		Hosting: ssosdk.HostedFrame,
		Origin:  requestOrigin(r),
		Params:  ssosdk.ParseCallback(r.URL.Query()),
	})
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// Close stops the server and discards open hidden contexts.
func (h *Host) Close() error {
	h.mu.Lock()
	frames := make([]*frame, 0, len(h.frames))
	for f := range h.frames {
		frames = append(frames, f)
	}
	h.mu.Unlock()

	var errs *multierror.Error
	for _, f := range frames {
		errs = multierror.Append(errs, f.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = multierror.Append(errs, h.srv.Shutdown(ctx))
	return errs.ErrorOrNil()
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

type browserWindow struct{}

func (browserWindow) Close() error { return nil }

// frame is a hidden context: one headless request chain.
type frame struct {
	host   *Host
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (f *frame) Close() error {
	f.once.Do(func() {
		f.cancel()
		<-f.done
		f.host.mu.Lock()
		delete(f.host.frames, f)
		f.host.mu.Unlock()
	})
	return nil
}
