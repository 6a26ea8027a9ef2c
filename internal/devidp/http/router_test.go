package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	httpapi "github.com/aussiebroadwan/tabsso/internal/devidp/http"
	"github.com/aussiebroadwan/tabsso/internal/devidp/service"
	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"github.com/aussiebroadwan/tabsso/pkg/httpx"
	"github.com/aussiebroadwan/tabsso/pkg/jwtx"
	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
)

const redirectURI = "http://127.0.0.1:7777/callback"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("k1", pemKey)
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))
	verifier := jwtx.NewVerifierEdDSA(keys, jwtx.VerifyOptions{Issuer: "devidp"})

	client := service.Client{ID: "app", RedirectURIs: []string{"http://127.0.0.1/callback"}, Scope: "openid profile"}
	user := service.User{Subject: "u-1", Name: "Dev", Email: "dev@test", IdentityProvider: "github"}
	codes := service.NewCodeStore()
	registry := service.NewSessionRegistry(time.Hour)

	login := ssosdk.ProviderConfig{AuthURL: "placeholder", ClientID: "app", Scope: "openid profile", Realm: "dev"}
	router := httpapi.NewRouter(keys, verifier, sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		httpapi.Discovery{Login: login, Silent: login}, "test", slogx.Discard())
	router.AuthorizeService = &service.AuthorizeService{
		Client: client, User: user, Codes: codes, Sessions: registry, CodeTTL: time.Minute, Now: time.Now,
	}
	router.TokenService = &service.TokenService{
		Issuer: "devidp", Client: client, User: user, Signer: signer,
		Codes: codes, Sessions: registry, AccessTTL: 15 * time.Minute, Now: time.Now,
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// browser follows no redirects so tests can read the Location header.
func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func authorize(t *testing.T, c *http.Client, base, verifier, prompt string) url.Values {
	t.Helper()
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {"app"},
		"redirect_uri":          {redirectURI},
		"state":                 {"st-1"},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
	}
	if prompt != "" {
		q.Set("prompt", prompt)
	}
	resp, err := c.Get(base + "/authorize?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7777", loc.Host)
	require.Equal(t, "st-1", loc.Query().Get("state"))
	return loc.Query()
}

func exchange(t *testing.T, base string, in ssosdk.ExchangeRequest) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	resp, err := http.Post(base+ssosdk.PathExchange, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestAuthorize_SessionCookieEnablesSilent(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	c := browser(t)

	q := authorize(t, c, srv.URL, oauth2.GenerateVerifier(), "")
	require.NotEmpty(t, q.Get("code"))

	q = authorize(t, c, srv.URL, oauth2.GenerateVerifier(), "none")
	require.NotEmpty(t, q.Get("code"), "the provider session cookie makes prompt=none succeed")

	q = authorize(t, browser(t), srv.URL, oauth2.GenerateVerifier(), "none")
	require.Equal(t, "login_required", q.Get("error"))
	require.Equal(t, "Login required", q.Get("error_description"))
	require.Empty(t, q.Get("code"))
}

func TestAuthorize_ClientErrorsAreNotRedirected(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	tests := []struct {
		name     string
		clientID string
		redirect string
		wantCode string
	}{
		{"unknown client", "other", redirectURI, "invalid_client"},
		{"foreign redirect", "app", "https://evil.test/callback", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{"response_type": {"code"}, "client_id": {tt.clientID}, "redirect_uri": {tt.redirect}, "state": {"s"}}
			resp, err := browser(t).Get(srv.URL + "/authorize?" + q.Encode())
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Empty(t, resp.Header.Get("Location"))
			var body httpx.ErrorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tt.wantCode, body.Error)
		})
	}
}

func TestExchangeAndValidate(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	c := browser(t)

	verifier := oauth2.GenerateVerifier()
	code := authorize(t, c, srv.URL, verifier, "").Get("code")

	in := ssosdk.ExchangeRequest{Code: code, RedirectURI: redirectURI, CodeVerifier: verifier}
	resp, body := exchange(t, srv.URL, in)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var out ssosdk.ExchangeResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Token)
	require.Equal(t, "github", out.IdentityProvider)
	require.NotNil(t, out.ExpiresIn)
	require.Equal(t, 900, *out.ExpiresIn)

	// The code is single use.
	resp, body = exchange(t, srv.URL, in)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var eb httpx.ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	require.Equal(t, "invalid_grant", eb.Error)
	require.Equal(t, eb.ErrorDescription, eb.Message)

	// The backend client reads the same endpoints.
	api := ssosdk.NewClient(srv.URL)
	v, err := api.CheckValidity(t.Context(), out.Token)
	require.NoError(t, err)
	require.True(t, v.Valid)

	v, err = api.CheckValidity(t.Context(), "garbage")
	require.NoError(t, err)
	require.False(t, v.Valid)

	// Ending the provider session invalidates the token.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/logout", nil)
	require.NoError(t, err)
	lresp, err := c.Do(req)
	require.NoError(t, err)
	lresp.Body.Close()
	require.Equal(t, http.StatusNoContent, lresp.StatusCode)

	v, err = api.CheckValidity(t.Context(), out.Token)
	require.NoError(t, err)
	require.False(t, v.Valid)

	q := authorize(t, c, srv.URL, oauth2.GenerateVerifier(), "none")
	require.Equal(t, "login_required", q.Get("error"))
}

func TestExchange_WrongVerifier(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	code := authorize(t, browser(t), srv.URL, oauth2.GenerateVerifier(), "").Get("code")
	resp, body := exchange(t, srv.URL, ssosdk.ExchangeRequest{Code: code, RedirectURI: redirectURI, CodeVerifier: oauth2.GenerateVerifier()})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var eb httpx.ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	require.Equal(t, "invalid_grant", eb.Error)
	require.Equal(t, "PKCE verification failed", eb.ErrorDescription)
}

func TestValidate_RequiresBearer(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	resp, err := http.Get(srv.URL + ssosdk.PathValidate)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
}

func TestConfigAndSystemEndpoints(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	pc, err := ssosdk.NewClient(srv.URL).Discover(t.Context(), ssosdk.DiscoverySilent)
	require.NoError(t, err)
	require.Equal(t, "app", pc.ClientID)
	require.Equal(t, "dev", pc.Realm)

	resp, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	var health httpapi.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "test", health.Version)

	resp, err = http.Get(srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	var set jwtx.JWKS
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&set))
	resp.Body.Close()
	require.Len(t, set.Keys, 1)
	require.Equal(t, "k1", set.Keys[0].Kid)
}
