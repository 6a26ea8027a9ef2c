package ssosdk

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestAttempts_BeginConsume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStorage()
	a := attempts{store: store}

	at, err := a.begin(ctx, KindLogin, "http://app.test/callback")
	require.NoError(t, err)
	require.False(t, at.ID.IsZero())

	got, err := a.consume(ctx, KindLogin, at.State)
	require.NoError(t, err)
	require.Equal(t, at.State, got.State)
	require.Equal(t, at.PKCE.Verifier, got.PKCE.Verifier)
	require.Equal(t, at.RedirectURI, got.RedirectURI)
	require.Equal(t, at.ID, got.ID)
	require.Empty(t, store.Keys())

	_, err = a.consume(ctx, KindLogin, at.State)
	require.ErrorIs(t, err, ErrMissingState, "single use")
}

func TestAttempts_KindsAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := attempts{store: NewMemoryStorage()}

	login, err := a.begin(ctx, KindLogin, "r")
	require.NoError(t, err)
	silent, err := a.begin(ctx, KindSilent, "r")
	require.NoError(t, err)

	_, err = a.consume(ctx, KindSilent, login.State)
	require.ErrorIs(t, err, ErrStateMismatch)

	got, err := a.consume(ctx, KindLogin, login.State)
	require.NoError(t, err)
	require.NotEqual(t, silent.State, got.State)
}

func TestAttempts_NewAttemptOrphansOld(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := attempts{store: NewMemoryStorage()}

	first, err := a.begin(ctx, KindLogin, "r")
	require.NoError(t, err)
	second, err := a.begin(ctx, KindLogin, "r")
	require.NoError(t, err)
	require.NotEqual(t, first.State, second.State)
	require.NotEqual(t, first.PKCE.Verifier, second.PKCE.Verifier)

	_, err = a.consume(ctx, KindLogin, first.State)
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestAttempts_EmptyStateNeverMatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := attempts{store: NewMemoryStorage()}

	_, err := a.begin(ctx, KindReauth, "r")
	require.NoError(t, err)
	_, err = a.consume(ctx, KindReauth, "")
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestAttemptKeysAreRecognised(t *testing.T) {
	t.Parallel()
	for _, kind := range attemptKinds {
		for _, f := range attemptFields {
			require.True(t, IsAttemptKey(attemptKey(kind, f)))
		}
	}
	require.False(t, IsAttemptKey(KeyAccessToken))
	require.False(t, IsAttemptKey(KeyIDPHint))
}

func TestAuthURL(t *testing.T) {
	t.Parallel()

	pc := ProviderConfig{AuthURL: "https://idp.test/realms/tab/auth?kc_locale=en", ClientID: "app", Scope: "openid profile"}
	at := Attempt{State: "st", PKCE: PKCE{Verifier: "ver"}, RedirectURI: "http://app.test/silent-callback"}

	raw, err := authURL(pc, at, DefaultIDPHintParam, authOptions{Prompt: "none", IDPHint: "github"})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "idp.test", u.Host)
	q := u.Query()
	require.Equal(t, "en", q.Get("kc_locale"), "existing query is kept")
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "app", q.Get("client_id"))
	require.Equal(t, "openid profile", q.Get("scope"))
	require.Equal(t, at.RedirectURI, q.Get("redirect_uri"))
	require.Equal(t, "st", q.Get("state"))
	require.Equal(t, ChallengeMethod, q.Get("code_challenge_method"))
	require.True(t, at.PKCE.Matches(q.Get("code_challenge")))
	require.Equal(t, "none", q.Get("prompt"))
	require.Equal(t, "github", q.Get("kc_idp_hint"))
	require.NotContains(t, q, "code_verifier")

	_, err = authURL(ProviderConfig{ClientID: "app"}, at, DefaultIDPHintParam, authOptions{})
	require.ErrorIs(t, err, ErrConfigUnavailable)
}

func TestRefreshState(t *testing.T) {
	t.Parallel()
	var s refreshState
	t0 := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.tryBegin(t0, 10*time.Second))
	require.ErrorIs(t, s.tryBegin(t0, 10*time.Second), ErrRefreshInFlight)
	require.True(t, s.status().InProgress)

	s.end(t0.Add(3*time.Second), false)
	require.False(t, s.succeeded())
	require.ErrorIs(t, s.tryBegin(t0.Add(12*time.Second), 10*time.Second), ErrCooldown, "cooldown counts from completion")
	require.NoError(t, s.tryBegin(t0.Add(13*time.Second), 10*time.Second))
	s.end(t0.Add(13*time.Second), true)
	require.True(t, s.succeeded())

	require.True(t, s.markWarning())
	require.False(t, s.markWarning())
	require.True(t, s.clearWarning())
	require.False(t, s.clearWarning())

	s.markWarning()
	s.reset()
	require.Equal(t, RefreshStatus{}, s.status())
	require.False(t, s.succeeded())
	require.NoError(t, s.tryBegin(t0, 10*time.Second), "reset forgets the cooldown")
}

func TestRefreshState_ResetKeepsLiveRun(t *testing.T) {
	t.Parallel()
	var s refreshState
	t0 := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.tryBegin(t0, time.Second))
	s.reset()
	require.True(t, s.status().InProgress, "the running refresh still owns the guard")
	require.ErrorIs(t, s.tryBegin(t0.Add(time.Hour), time.Second), ErrRefreshInFlight)

	s.end(t0.Add(time.Hour), false)
	require.False(t, s.status().InProgress)
}

func TestSessionGuard(t *testing.T) {
	t.Parallel()
	var g sessionGuard

	epoch := g.current()
	ran := false
	require.NoError(t, g.commit(epoch, func() error { ran = true; return nil }))
	require.True(t, ran)

	g.end(func() {})
	ran = false
	require.ErrorIs(t, g.commit(epoch, func() error { ran = true; return nil }), ErrSessionEnded)
	require.False(t, ran)
	require.NoError(t, g.commit(g.current(), func() error { return nil }))
}

func TestMonitor_VisibilityDebounce(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	checks := make(chan struct{}, 10)
	m := &monitor{
		check: func(context.Context) (ValidityResponse, error) {
			checks <- struct{}{}
			return ValidityResponse{Valid: true}, nil
		},
		react:    func(context.Context, Snapshot) {},
		interval: time.Hour,
		minGap:   5 * time.Second,
		now:      func() time.Time { return now },
		log:      slogx.Discard(),
	}

	m.seed(Snapshot{Valid: true, CheckedAt: now.Add(-2 * time.Second)})
	m.start(context.Background())
	t.Cleanup(func() { <-m.halt() })

	m.visibilityRegained()
	require.Never(t, func() bool { return len(checks) > 0 }, 100*time.Millisecond, 5*time.Millisecond)

	m.seed(Snapshot{Valid: true, CheckedAt: now.Add(-6 * time.Second)})
	m.visibilityRegained()
	require.Eventually(t, func() bool { return len(checks) == 1 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_HaltedIgnoresVisibility(t *testing.T) {
	t.Parallel()

	called := false
	m := &monitor{
		check: func(context.Context) (ValidityResponse, error) {
			called = true
			return ValidityResponse{}, nil
		},
		react:    func(context.Context, Snapshot) {},
		interval: time.Hour,
		minGap:   time.Second,
		now:      time.Now,
		log:      slogx.Discard(),
	}
	m.visibilityRegained()
	<-m.halt()
	require.False(t, called)
	require.False(t, m.running())
}
