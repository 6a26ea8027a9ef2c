package service

import "errors"

// OAuth2 error codes, returned verbatim to the redirect URI or the backend
// client.
var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrUnsupportedResponse  = errors.New("unsupported_response_type")
	ErrLoginRequired        = errors.New("login_required")
	ErrAccessDenied         = errors.New("access_denied")
	ErrUnregisteredRedirect = errors.New("unregistered redirect_uri")
)

// OAuthError pairs an error code with a human-readable description.
type OAuthError struct {
	Code        error
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code.Error()
	}
	return e.Code.Error() + ": " + e.Description
}

func (e *OAuthError) Unwrap() error { return e.Code }

func oauthErr(code error, desc string) *OAuthError {
	return &OAuthError{Code: code, Description: desc}
}
