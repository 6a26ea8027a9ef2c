package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabsso/internal/devidp/service"
	"github.com/aussiebroadwan/tabsso/pkg/httpx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
)

// SSOHandler is the application backend that proxies the provider.
type SSOHandler struct {
	TokenService *service.TokenService
	Discovery    Discovery
}

// HandleConfig godoc
//
//	@Summary		Provider discovery
//	@Description	Returns the authorization endpoint, client id and scope. mode=silent returns the configuration used for silent refresh.
//	@Tags			Backend
//	@Produce		json
//	@Param			mode	query		string	false	"silent for the silent-refresh variant"
//	@Success		200		{object}	ssosdk.ProviderConfig
//	@Router			/api/sso/config [get].
func (h *SSOHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	pc := h.Discovery.Login
	if r.URL.Query().Get("mode") == "silent" {
		pc = h.Discovery.Silent
	}
	// Without a public URL the provider is assumed to share the proxy's host.
	if pc.AuthURL == "" {
		pc.AuthURL = "http://" + r.Host + "/authorize"
	}
	httpx.WriteJSON(w, http.StatusOK, pc)
}

// HandleExchange godoc
//
//	@Summary		Token exchange
//	@Description	Redeems a single-use authorization code. The code, redirect URI and PKCE verifier must all match the authorization request.
//	@Tags			Backend
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ssosdk.ExchangeRequest	true	"Code, redirect URI and verifier"
//	@Success		200		{object}	ssosdk.ExchangeResponse
//	@Failure		400		{object}	httpx.ErrorBody
//	@Failure		429		{object}	httpx.ErrorBody
//	@Router			/api/sso/exchange [post].
func (h *SSOHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	var in ssosdk.ExchangeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON")
		return
	}

	out, err := h.TokenService.Exchange(r.Context(), in)
	if err != nil {
		var oe *service.OAuthError
		if errors.As(err, &oe) {
			httpx.WriteError(w, http.StatusBadRequest, oe.Code.Error(), oe.Description)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Token exchange failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleValidate godoc
//
//	@Summary		Session validity
//	@Description	Reports whether the bearer token still belongs to a live provider session. Unverifiable tokens get 401.
//	@Tags			Backend
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	ssosdk.ValidityResponse
//	@Failure		401	{object}	httpx.ErrorBody
//	@Router			/api/sso/validate [get].
func (h *SSOHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, ssosdk.ValidityResponse{Valid: false})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.TokenService.Validate(r.Context(), claims))
}
