package ssosdk

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigUnavailable means provider discovery failed; nothing was navigated.
	ErrConfigUnavailable = errors.New("ssosdk: provider configuration unavailable")

	// ErrStateMismatch means a callback carried a state other than the one
	// issued for the pending attempt. Treated as possible request forgery.
	ErrStateMismatch = errors.New("ssosdk: state mismatch")

	// ErrMissingState means a callback arrived with no pending attempt to
	// correlate it with.
	ErrMissingState = errors.New("ssosdk: no pending attempt for callback")

	// ErrMissingCode means the provider redirected back without a code or error.
	ErrMissingCode = errors.New("ssosdk: callback carried no authorization code")

	// ErrPopupBlocked is returned by a Host that could not create a popup.
	ErrPopupBlocked = errors.New("ssosdk: popup blocked")

	// ErrPopupTimeout means the popup never relayed a result.
	ErrPopupTimeout = errors.New("ssosdk: popup login timed out")

	// ErrSilentTimeout means the hidden context never relayed a result.
	ErrSilentTimeout = errors.New("ssosdk: silent refresh timed out")

	// ErrAttemptInProgress means an interactive attempt is already open.
	ErrAttemptInProgress = errors.New("ssosdk: interactive attempt already in progress")

	// ErrNotAttempted is wrapped by the reasons a silent refresh was skipped
	// without touching the network.
	ErrNotAttempted = errors.New("ssosdk: silent refresh not attempted")

	ErrRefreshInFlight = fmt.Errorf("%w: another refresh is in flight", ErrNotAttempted)
	ErrCooldown        = fmt.Errorf("%w: cooldown has not elapsed", ErrNotAttempted)

	// ErrSessionEnded means the session was logged out while an attempt was
	// exchanging its code; the result was discarded.
	ErrSessionEnded = errors.New("ssosdk: session ended during attempt")

	// ErrNoSession means no SSO session is persisted.
	ErrNoSession = errors.New("ssosdk: no sso session")

	// ErrEntropy means random bytes could not be read; the attempt is aborted
	// before any network call.
	ErrEntropy = errors.New("ssosdk: entropy source failed")
)

// ProviderError is an error reported by the identity provider through the
// callback's error parameters. It is surfaced verbatim and never retried.
type ProviderError struct {
	Code        string
	Description string
	URI         string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "provider error: " + e.Code
	}
	return fmt.Sprintf("provider error: %s: %s", e.Code, e.Description)
}

// Silent authentication error codes (OpenID Connect Core 3.1.2.6).
const (
	ErrorCodeLoginRequired            = "login_required"
	ErrorCodeConsentRequired          = "consent_required"
	ErrorCodeInteractionRequired      = "interaction_required"
	ErrorCodeAccountSelectionRequired = "account_selection_required"
)

// IsSilentAuthError reports whether err is a provider error meaning the
// provider needs user interaction, so only an interactive flow can succeed.
func IsSilentAuthError(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}

	switch pe.Code {
	case ErrorCodeLoginRequired, ErrorCodeConsentRequired,
		ErrorCodeInteractionRequired, ErrorCodeAccountSelectionRequired:
		return true
	}
	return false
}

// ExchangeErrorKind classifies token exchange failures.
type ExchangeErrorKind string

const (
	ExchangeInvalidResponse  ExchangeErrorKind = "invalid_response"
	ExchangeProviderRejected ExchangeErrorKind = "provider_rejected"
	ExchangeNetworkError     ExchangeErrorKind = "network_error"
)

// ExchangeError is a failed code-for-token exchange. Message holds the
// backend's own message when it sent one.
type ExchangeError struct {
	Kind       ExchangeErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("token exchange %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("token exchange %s: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("token exchange %s: status %d", e.Kind, e.StatusCode)
	default:
		return "token exchange " + string(e.Kind)
	}
}

func (e *ExchangeError) Unwrap() error { return e.Err }
