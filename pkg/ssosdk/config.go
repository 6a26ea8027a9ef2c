package ssosdk

import (
	"io"
	"time"
)

// Default timings and parameters.
const (
	DefaultCheckInterval    = time.Minute
	DefaultVisibilityMinGap = 5 * time.Second
	DefaultSilentTimeout    = 3 * time.Second
	DefaultRefreshCooldown  = 10 * time.Second
	DefaultWarningThreshold = 300 * time.Second
	DefaultPopupTimeout     = 5 * time.Minute
	DefaultIDPHintParam     = "kc_idp_hint"
	DefaultSilentPrompt     = "none"

	callbackPath       = "/callback"
	silentCallbackPath = "/silent-callback"
)

// Config tunes a Manager. Zero values take the defaults above.
type Config struct {
	// CheckInterval is the validity monitor's timer period.
	CheckInterval time.Duration
	// VisibilityMinGap debounces visibility-triggered checks.
	VisibilityMinGap time.Duration
	// SilentTimeout bounds how long a hidden context may take to relay.
	SilentTimeout time.Duration
	// RefreshCooldown is the minimum gap between silent refresh attempts,
	// measured from the end of the previous one.
	RefreshCooldown time.Duration
	// WarningThreshold is the remaining lifetime at which the coordinator
	// starts renewing and, failing that, warning.
	WarningThreshold time.Duration
	// PopupTimeout bounds an interactive popup attempt.
	PopupTimeout time.Duration

	// IDPHintParam is the authorization parameter naming the upstream
	// identity provider on escalated re-auth.
	IDPHintParam string
	// SilentPrompt is the prompt value for silent refresh.
	SilentPrompt string

	// RedirectURI and SilentRedirectURI default to the host origin plus
	// /callback and /silent-callback.
	RedirectURI       string
	SilentRedirectURI string

	// Entropy overrides crypto/rand for PKCE verifiers and state, for tests.
	Entropy io.Reader
	// Now overrides the clock used for cooldown and debounce decisions.
	Now func() time.Time
}

func (c Config) withDefaults(origin string) Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.VisibilityMinGap <= 0 {
		c.VisibilityMinGap = DefaultVisibilityMinGap
	}
	if c.SilentTimeout <= 0 {
		c.SilentTimeout = DefaultSilentTimeout
	}
	if c.RefreshCooldown <= 0 {
		c.RefreshCooldown = DefaultRefreshCooldown
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = DefaultWarningThreshold
	}
	if c.PopupTimeout <= 0 {
		c.PopupTimeout = DefaultPopupTimeout
	}
	if c.IDPHintParam == "" {
		c.IDPHintParam = DefaultIDPHintParam
	}
	if c.SilentPrompt == "" {
		c.SilentPrompt = DefaultSilentPrompt
	}
	if c.RedirectURI == "" {
		c.RedirectURI = origin + callbackPath
	}
	if c.SilentRedirectURI == "" {
		c.SilentRedirectURI = origin + silentCallbackPath
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
