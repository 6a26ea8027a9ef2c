package ssosdk

import (
	"context"
	"encoding/json"
)

// DiscoveryVariant selects the discovery document.
type DiscoveryVariant string

const (
	DiscoveryLogin  DiscoveryVariant = "login"
	DiscoverySilent DiscoveryVariant = "silent"
)

// Backend is the application backend that proxies the provider.
type Backend interface {
	// Discover returns the provider configuration. The silent variant may
	// differ from the interactive one.
	Discover(ctx context.Context, variant DiscoveryVariant) (ProviderConfig, error)

	// Exchange trades an authorization code for a session. It is called at
	// most once per code.
	Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error)

	// CheckValidity asks whether token still identifies a live session.
	CheckValidity(ctx context.Context, token string) (ValidityResponse, error)
}

// ExchangeRequest is the token exchange body.
type ExchangeRequest struct {
	Code         string `json:"code"`
	RedirectURI  string `json:"redirectUri"`
	CodeVerifier string `json:"codeVerifier"`
}

// ExchangeResponse is a successful token exchange body.
type ExchangeResponse struct {
	Token            string          `json:"token"`
	IDToken          string          `json:"idToken,omitempty"`
	User             json.RawMessage `json:"user"`
	IdentityProvider string          `json:"identityProvider,omitempty"`
	ExpiresIn        *int            `json:"expiresIn,omitempty"`
}

// ValidityResponse is the validity check body.
type ValidityResponse struct {
	Valid     bool `json:"valid"`
	ExpiresIn *int `json:"expiresIn,omitempty"`
}

// Host is the runtime that owns windows: a browser, or a native process
// driving the system browser.
type Host interface {
	// Origin is the application's own origin. Callback messages from any
	// other origin are ignored.
	Origin() string

	// OpenPopup shows url in a new interactive window. It returns
	// ErrPopupBlocked when the window cannot be created.
	OpenPopup(ctx context.Context, url string) (Window, error)

	// OpenHidden loads url in an invisible embedded context.
	OpenHidden(ctx context.Context, url string) (Window, error)

	// NavigateTop replaces the application's own page with url.
	NavigateTop(ctx context.Context, url string) error
}

// Window is a browsing context opened by a Host.
type Window interface {
	// Close discards the context. Closing twice is a no-op.
	Close() error
}
