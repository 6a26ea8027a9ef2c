package service

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/slogx"
)

// Client is the one registered relying party.
type Client struct {
	ID           string
	RedirectURIs []string
	Scope        string
}

// User is the identity the provider signs in.
type User struct {
	Subject          string
	Name             string
	Email            string
	IdentityProvider string
}

// AuthorizeService issues authorization codes for the registered client.
type AuthorizeService struct {
	Client   Client
	User     User
	Codes    *CodeStore
	Sessions *SessionRegistry
	CodeTTL  time.Duration
	Now      func() time.Time
}

type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
	IDPHint             string

	// SessionID is the provider session from the browser cookie, if any.
	SessionID string
}

type AuthorizeResult struct {
	Code    string
	Session ProviderSession
	// NewSession is true when this request signed the browser in.
	NewSession bool
}

// ValidateClient checks what must hold before anything may be sent back to
// the redirect URI. Its errors are shown to the user, never redirected.
func (s *AuthorizeService) ValidateClient(req AuthorizeRequest) error {
	if req.ClientID != s.Client.ID {
		return oauthErr(ErrInvalidClient, "Unknown client_id")
	}
	if !redirectAllowed(s.Client.RedirectURIs, req.RedirectURI) {
		return oauthErr(ErrUnregisteredRedirect, "redirect_uri is not registered for this client")
	}
	return nil
}

// Authorize runs the authorization endpoint after ValidateClient passed.
// With prompt=none and no live session it fails with ErrLoginRequired.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	log := slogx.FromContext(ctx)
	now := s.Now()

	if err := s.ValidateClient(req); err != nil {
		return AuthorizeResult{}, err
	}
	if req.ResponseType != "code" {
		return AuthorizeResult{}, oauthErr(ErrUnsupportedResponse, "Only response_type=code is supported")
	}
	if req.CodeChallenge == "" {
		return AuthorizeResult{}, oauthErr(ErrInvalidRequest, "code_challenge is required")
	}
	if req.CodeChallengeMethod != "S256" {
		return AuthorizeResult{}, oauthErr(ErrInvalidRequest, "code_challenge_method must be S256")
	}

	prompts := strings.Fields(req.Prompt)
	session, live := s.Sessions.Get(req.SessionID, now)
	if slices.Contains(prompts, "login") {
		live = false
	}

	var res AuthorizeResult
	switch {
	case live:
		res.Session = session
	case slices.Contains(prompts, "none"):
		log.Debug("authorize: no live session for silent request")
		return AuthorizeResult{}, oauthErr(ErrLoginRequired, "Login required")
	default:
		idp := s.User.IdentityProvider
		if req.IDPHint != "" {
			idp = req.IDPHint
		}
		res.Session = s.Sessions.Create(s.User.Subject, idp, now)
		res.NewSession = true
		log.Info("authorize: signed in", "sid", res.Session.ID, "idp", idp)
	}

	scope := req.Scope
	if scope == "" {
		scope = s.Client.Scope
	}

	code, err := s.Codes.Issue(Grant{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scope:         scope,
		CodeChallenge: req.CodeChallenge,
		SessionID:     res.Session.ID,
		Subject:       res.Session.Subject,
		IDP:           res.Session.IdentityProvider,
		ExpiresAt:     now.Add(s.CodeTTL),
	})
	if err != nil {
		return AuthorizeResult{}, err
	}
	res.Code = code
	return res, nil
}

// redirectAllowed matches uri against the registered URIs exactly, except
// that loopback URIs may use any port.
func redirectAllowed(registered []string, uri string) bool {
	if uri == "" {
		return false
	}
	if slices.Contains(registered, uri) {
		return true
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "http" || !isLoopback(u.Hostname()) {
		return false
	}
	for _, r := range registered {
		ru, err := url.Parse(r)
		if err != nil || ru.Scheme != "http" || !isLoopback(ru.Hostname()) {
			continue
		}
		if ru.Hostname() == u.Hostname() && ru.Path == u.Path && ru.Port() == "" {
			return true
		}
	}
	return false
}

func isLoopback(host string) bool {
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}
