package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/tabsso/internal/devidp/service"
	"github.com/aussiebroadwan/tabsso/pkg/httpx"
	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/gorilla/sessions"
)

// CookieName is the provider's browser session cookie.
const CookieName = "devidp_session"

const sidKey = "sid"

type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	Cookies          sessions.Store
	Logger           *slog.Logger
}

// HandleGet godoc
//
//	@Summary		Authorization endpoint
//	@Description	Signs the configured user in (or reuses the browser's provider session) and redirects back with a single-use code.
//	@Description	With prompt=none and no live session it redirects back with error=login_required.
//	@Tags			Provider
//	@Param			response_type			query	string	true	"Must be code"
//	@Param			client_id				query	string	true	"Registered client id"
//	@Param			redirect_uri			query	string	true	"Registered redirect URI (loopback URIs may use any port)"
//	@Param			state					query	string	true	"Opaque correlation value"
//	@Param			code_challenge			query	string	true	"PKCE challenge"
//	@Param			code_challenge_method	query	string	true	"Must be S256"
//	@Param			scope					query	string	false	"Space-separated scopes"
//	@Param			prompt					query	string	false	"none or login"
//	@Param			kc_idp_hint				query	string	false	"Upstream identity provider to sign in with"
//	@Success		302
//	@Failure		400	{object}	httpx.ErrorBody	"Client or redirect URI rejected"
//	@Router			/authorize [get].
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())
	q := r.URL.Query()

	req := service.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Prompt:              q.Get("prompt"),
		IDPHint:             q.Get("kc_idp_hint"),
	}

	// Nothing may be redirected to an unverified URI.
	if err := h.AuthorizeService.ValidateClient(req); err != nil {
		code := "invalid_request"
		if errors.Is(err, service.ErrInvalidClient) {
			code = "invalid_client"
		}
		desc := err.Error()
		var oe *service.OAuthError
		if errors.As(err, &oe) {
			desc = oe.Description
		}
		httpx.WriteError(w, http.StatusBadRequest, code, desc)
		return
	}

	sess, err := h.Cookies.Get(r, CookieName)
	if err != nil {
		// A cookie from a previous secret: start over.
		log.Debug("authorize: discarding unreadable session cookie", "err", err)
	}
	if sid, ok := sess.Values[sidKey].(string); ok {
		req.SessionID = sid
	}

	res, err := h.AuthorizeService.Authorize(r.Context(), req)
	if err != nil {
		redirectError(w, r, req.RedirectURI, req.State, err)
		return
	}

	if res.NewSession {
		sess.Values[sidKey] = res.Session.ID
		if err := sess.Save(r, w); err != nil {
			log.Error("authorize: failed to save session cookie", "err", err)
			redirectError(w, r, req.RedirectURI, req.State, err)
			return
		}
	}

	redirectBack(w, r, req.RedirectURI, url.Values{"code": {res.Code}, "state": {req.State}})
}

// HandleLogout godoc
//
//	@Summary		End the provider session
//	@Description	Ends the browser's provider session so later silent requests fail with login_required.
//	@Tags			Provider
//	@Success		204
//	@Router			/logout [post].
func (h *AuthorizeHandler) HandleLogout(tokens *service.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := h.Cookies.Get(r, CookieName)
		if sid, ok := sess.Values[sidKey].(string); ok {
			tokens.Logout(r.Context(), sid)
		}
		sess.Options.MaxAge = -1
		_ = sess.Save(r, w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state string, err error) {
	out := url.Values{"state": {state}}

	var oe *service.OAuthError
	if errors.As(err, &oe) {
		out.Set("error", oe.Code.Error())
		if oe.Description != "" {
			out.Set("error_description", oe.Description)
		}
	} else {
		out.Set("error", "server_error")
	}
	redirectBack(w, r, redirectURI, out)
}

func redirectBack(w http.ResponseWriter, r *http.Request, redirectURI string, params url.Values) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is malformed")
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()

	httpx.NoCache(w)
	http.Redirect(w, r, u.String(), http.StatusFound)
}
