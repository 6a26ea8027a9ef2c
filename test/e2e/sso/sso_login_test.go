//go:build e2e

package sso_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"github.com/stretchr/testify/require"
)

// TestLivezAndDiscovery verifies the provider is up and advertises itself.
func TestLivezAndDiscovery(t *testing.T) {
	baseURL := setupProvider(t, nil)

	resp, err := http.Get(baseURL + "/livez")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	client := ssosdk.NewClient(baseURL)
	for _, variant := range []ssosdk.DiscoveryVariant{ssosdk.DiscoveryLogin, ssosdk.DiscoverySilent} {
		pc, err := client.Discover(t.Context(), variant)
		require.NoError(t, err)
		require.Equal(t, clientID, pc.ClientID)
		require.Equal(t, baseURL+"/authorize", pc.AuthURL)
		require.NotEmpty(t, pc.Scope)
	}
}

// TestPopupLogin signs in through a popup and checks the session against
// the backend.
func TestPopupLogin(t *testing.T) {
	baseURL := setupProvider(t, nil)
	f := newFixture(t, baseURL, ssosdk.Config{})
	ctx := t.Context()

	res, err := f.m.Login(ctx, desktop)
	require.NoError(t, err)
	require.Equal(t, ssosdk.FlowPopup, res.Flow)
	require.NotNil(t, res.Session)
	require.NotEmpty(t, res.Session.AccessToken)
	require.NotEmpty(t, res.Session.IDToken)
	require.Equal(t, userIDP, res.Session.IdentityProvider)

	var user struct {
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(res.Session.User, &user))
	require.Equal(t, userEmail, user.Email)

	stored, err := f.m.Session(ctx)
	require.NoError(t, err)
	require.Equal(t, res.Session.AccessToken, stored.AccessToken)

	snap := f.m.CheckNow(ctx)
	require.True(t, snap.Valid)
	require.NotNil(t, snap.ExpiresInSeconds)
	require.Positive(t, *snap.ExpiresInSeconds)
	require.True(t, f.m.Readiness().Warmed())
}

// TestRedirectLogin completes a full-page redirect on the loopback server.
func TestRedirectLogin(t *testing.T) {
	baseURL := setupProvider(t, nil)
	f := newFixture(t, baseURL, ssosdk.Config{})

	res, err := f.m.Login(t.Context(), ssosdk.Capabilities{Standalone: true})
	require.NoError(t, err)
	require.Equal(t, ssosdk.FlowRedirect, res.Flow)
	require.True(t, res.Redirected)

	select {
	case done := <-f.host.Completed():
		require.NoError(t, done.Err)
		require.NotEmpty(t, done.Session.AccessToken)
	case <-time.After(10 * time.Second):
		t.Fatal("redirect login never completed")
	}

	_, err = f.m.Session(t.Context())
	require.NoError(t, err)
}

// TestRedirectLogin_StateMismatch replays the provider's answer with a
// forged state. Nothing is exchanged: the genuine answer still redeems the
// same, single-use code afterwards.
func TestRedirectLogin_StateMismatch(t *testing.T) {
	baseURL := setupProvider(t, nil)

	opened := make(chan string, 1)
	f := newFixtureWithOpener(t, baseURL, ssosdk.Config{}, func(_ context.Context, u string) error {
		opened <- u
		return nil
	})
	ctx := t.Context()

	res, err := f.m.Login(ctx, ssosdk.Capabilities{Standalone: true})
	require.NoError(t, err)
	require.True(t, res.Redirected)

	code, state := authorizeWithoutFollowing(t, <-opened)

	_, err = f.m.CompleteRedirect(ctx, ssosdk.CallbackParams{Code: code, State: "forged-" + state})
	require.ErrorIs(t, err, ssosdk.ErrStateMismatch)

	_, err = f.m.Session(ctx)
	require.ErrorIs(t, err, ssosdk.ErrNoSession)

	// The mismatch consumed the attempt, so even the genuine answer is
	// rejected now; the code itself was never spent.
	_, err = f.m.CompleteRedirect(ctx, ssosdk.CallbackParams{Code: code, State: state})
	require.ErrorIs(t, err, ssosdk.ErrMissingState)

	res, err = f.m.Login(ctx, ssosdk.Capabilities{Standalone: true})
	require.NoError(t, err)
	code2, state2 := authorizeWithoutFollowing(t, <-opened)
	require.NotEqual(t, code, code2)

	sess, err := f.m.CompleteRedirect(ctx, ssosdk.CallbackParams{Code: code2, State: state2})
	require.NoError(t, err)
	require.NotEmpty(t, sess.AccessToken)
}

// TestExchange_CodeIsSingleUse redeems one code twice against the backend.
func TestExchange_CodeIsSingleUse(t *testing.T) {
	baseURL := setupProvider(t, nil)
	ctx := t.Context()

	client := ssosdk.NewClient(baseURL)
	pc, err := client.Discover(ctx, ssosdk.DiscoveryLogin)
	require.NoError(t, err)

	pkce, err := ssosdk.NewPKCE(nil)
	require.NoError(t, err)

	redirectURI := "http://127.0.0.1:9/callback"
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {pc.ClientID},
		"redirect_uri":          {redirectURI},
		"scope":                 {pc.Scope},
		"state":                 {"single-use"},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {ssosdk.ChallengeMethod},
	}
	code, state := authorizeWithoutFollowing(t, pc.AuthURL+"?"+q.Encode())
	require.Equal(t, "single-use", state)

	req := ssosdk.ExchangeRequest{Code: code, RedirectURI: redirectURI, CodeVerifier: pkce.Verifier}
	first, err := client.Exchange(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, first.Token)

	_, err = client.Exchange(ctx, req)
	var ee *ssosdk.ExchangeError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, ssosdk.ExchangeProviderRejected, ee.Kind)
}

// authorizeWithoutFollowing performs the provider round trip for authURL
// and returns the code and state it redirects back with.
func authorizeWithoutFollowing(t *testing.T, authURL string) (code, state string) {
	t.Helper()

	c := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := c.Get(authURL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Empty(t, loc.Query().Get("error"))
	return loc.Query().Get("code"), loc.Query().Get("state")
}
