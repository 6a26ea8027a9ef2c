package ssosdk_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	t.Parallel()

	t.Run("no function is trivially ready", func(t *testing.T) {
		t.Parallel()
		r := ssosdk.NewReadiness()
		require.False(t, r.Warmed())
		require.True(t, r.Ensure(context.Background()))
		require.False(t, r.Warmed(), "the no-op does not warm")
	})

	t.Run("warmed skips the function", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		r := ssosdk.NewReadiness()
		r.Register(func(context.Context) bool { calls.Add(1); return false })
		r.SetWarmed(true)
		require.True(t, r.Ensure(context.Background()))
		require.Zero(t, calls.Load())

		r.SetWarmed(false)
		require.False(t, r.Ensure(context.Background()))
		require.EqualValues(t, 1, calls.Load())
	})

	t.Run("nil restores the no-op", func(t *testing.T) {
		t.Parallel()
		r := ssosdk.NewReadiness()
		r.Register(func(context.Context) bool { return false })
		r.Register(nil)
		require.True(t, r.Ensure(context.Background()))
	})
}

func TestEnsureReady_WarmAfterLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ssosdk.Config{})
	h.login(t)

	require.True(t, h.m.EnsureReady(context.Background()))
	_, hiddens := h.host.counts()
	require.Zero(t, hiddens)
}

func TestEnsureReady_SilentRefreshAfterVisibility(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ssosdk.Config{})
	h.login(t)
	h.host.set(func(fh *fakeHost) { fh.hiddenAnswer = approve("silent") })

	h.m.VisibilityRegained()
	require.False(t, h.m.Readiness().Warmed())

	require.True(t, h.m.EnsureReady(context.Background()))
	require.True(t, h.m.Readiness().Warmed())

	popups, hiddens := h.host.counts()
	require.Equal(t, 1, popups, "only the original login")
	require.Equal(t, 1, hiddens)
}

func TestEnsureReady_EscalatesToPopupWithHint(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ssosdk.Config{})
	h.backend.set(func(b *fakeBackend) {
		b.exchangeResp = ssosdk.ExchangeResponse{Token: "T1", User: json.RawMessage(`{}`), IdentityProvider: "google"}
	})
	h.login(t)

	h.m.VisibilityRegained()
	h.host.set(func(fh *fakeHost) {
		fh.hiddenAnswer = deny(ssosdk.ErrorCodeLoginRequired)
		fh.popupAnswer = approve("reauth")
	})

	require.True(t, h.m.EnsureReady(context.Background()))

	popup := h.host.lastPopup()
	require.Equal(t, "google", popup.url.Query().Get(ssosdk.DefaultIDPHintParam))
	require.Empty(t, popup.url.Query().Get("prompt"))

	calls := h.backend.exchangeCalls()
	require.Len(t, calls, 2)
	require.Equal(t, "reauth", calls[1].Code)
	h.requireNoAttemptKeys(t)
}

func TestEnsureReady_FalseWhenReauthFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ssosdk.Config{})
	h.login(t)

	h.m.VisibilityRegained()
	h.host.set(func(fh *fakeHost) {
		fh.hiddenAnswer = deny(ssosdk.ErrorCodeLoginRequired)
		fh.popupBlocked = true
	})

	require.False(t, h.m.EnsureReady(context.Background()))
	require.Empty(t, h.host.navigated, "re-auth never falls back to redirect")
}

func TestEnsureReady_NoPopupRightAfterSuccessfulRefresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ssosdk.Config{RefreshCooldown: time.Minute})
	h.login(t)
	h.host.set(func(fh *fakeHost) { fh.hiddenAnswer = approve("silent") })

	rr := h.m.SilentRefresh(context.Background())
	require.Equal(t, ssosdk.OutcomeRefreshed, rr.Outcome, "err: %v", rr.Err)

	// Inside the cooldown the skip stands for the refresh that just worked.
	h.m.VisibilityRegained()
	require.True(t, h.m.EnsureReady(context.Background()))
	require.True(t, h.m.Readiness().Warmed())

	popups, hiddens := h.host.counts()
	require.Equal(t, 1, popups, "only the original login")
	require.Equal(t, 1, hiddens)
}

func TestEnsureReady_EscalatesInsideCooldownAfterFailedRefresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ssosdk.Config{RefreshCooldown: time.Minute})
	h.login(t)
	h.host.set(func(fh *fakeHost) {
		fh.hiddenAnswer = deny(ssosdk.ErrorCodeLoginRequired)
		fh.popupAnswer = approve("reauth")
	})

	rr := h.m.SilentRefresh(context.Background())
	require.Equal(t, ssosdk.OutcomeFailed, rr.Outcome)

	h.m.VisibilityRegained()
	require.True(t, h.m.EnsureReady(context.Background()))

	popups, hiddens := h.host.counts()
	require.Equal(t, 2, popups, "login plus the re-auth")
	require.Equal(t, 1, hiddens, "the cooldown kept silent refresh off the network")
}
