package ssosdk

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/aussiebroadwan/tabsso/pkg/idx"
	"github.com/hashicorp/go-multierror"
)

// AttemptKind namespaces attempt-scoped storage, so a relay issued for one
// kind of attempt can never be consumed by another.
type AttemptKind string

const (
	KindLogin  AttemptKind = "login"
	KindSilent AttemptKind = "silent"
	KindReauth AttemptKind = "reauth"
)

var attemptKinds = []AttemptKind{KindLogin, KindSilent, KindReauth}

const (
	fieldState       = "state"
	fieldVerifier    = "verifier"
	fieldRedirectURI = "redirect_uri"
	fieldAttemptID   = "attempt_id"
)

var attemptFields = []string{fieldState, fieldVerifier, fieldRedirectURI, fieldAttemptID}

func attemptKey(kind AttemptKind, field string) string {
	return "sso_" + string(kind) + "_" + field
}

// Attempt is one authorization round trip.
type Attempt struct {
	ID          idx.ID
	Kind        AttemptKind
	State       string
	PKCE        PKCE
	RedirectURI string
}

// attempts persists pending attempts so a callback running in another
// context can retrieve them.
type attempts struct {
	store   Storage
	entropy io.Reader
}

// begin creates an attempt and stores it, overwriting any pending attempt
// of the same kind. A late relay from the overwritten attempt no longer
// matches.
func (a attempts) begin(ctx context.Context, kind AttemptKind, redirectURI string) (Attempt, error) {
	pk, err := NewPKCE(a.entropy)
	if err != nil {
		return Attempt{}, err
	}
	state, err := newState(a.entropy)
	if err != nil {
		return Attempt{}, err
	}

	at := Attempt{
		ID:          idx.New(),
		Kind:        kind,
		State:       state,
		PKCE:        pk,
		RedirectURI: redirectURI,
	}

	values := map[string]string{
		fieldState:       at.State,
		fieldVerifier:    at.PKCE.Verifier,
		fieldRedirectURI: at.RedirectURI,
		fieldAttemptID:   at.ID.String(),
	}
	for f, v := range values {
		if err := a.store.Set(ctx, attemptKey(kind, f), v); err != nil {
			return Attempt{}, fmt.Errorf("failed to persist attempt: %w", err)
		}
	}
	return at, nil
}

// consume loads the pending attempt of kind and deletes it whatever the
// outcome. It fails with ErrMissingState when nothing is pending and with
// ErrStateMismatch when state differs from the stored one.
func (a attempts) consume(ctx context.Context, kind AttemptKind, state string) (Attempt, error) {
	at := Attempt{Kind: kind}
	fields := map[string]*string{
		fieldState:       &at.State,
		fieldVerifier:    &at.PKCE.Verifier,
		fieldRedirectURI: &at.RedirectURI,
	}

	var loadErr *multierror.Error
	for f, dst := range fields {
		v, _, err := a.store.Get(ctx, attemptKey(kind, f))
		loadErr = multierror.Append(loadErr, err)
		*dst = v
	}
	if id, _, err := a.store.Get(ctx, attemptKey(kind, fieldAttemptID)); err == nil {
		at.ID, _ = idx.Parse(id)
	}

	loadErr = multierror.Append(loadErr, a.abandon(ctx, kind))
	if err := loadErr.ErrorOrNil(); err != nil {
		return Attempt{}, fmt.Errorf("failed to load attempt: %w", err)
	}

	if at.State == "" || at.PKCE.Verifier == "" {
		return Attempt{}, ErrMissingState
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(at.State), []byte(state)) != 1 {
		return Attempt{}, ErrStateMismatch
	}
	return at, nil
}

// abandon deletes the pending attempt of kind.
func (a attempts) abandon(ctx context.Context, kind AttemptKind) error {
	var errs *multierror.Error
	for _, f := range attemptFields {
		errs = multierror.Append(errs, a.store.Remove(ctx, attemptKey(kind, f)))
	}
	return errs.ErrorOrNil()
}

// clear deletes every pending attempt.
func (a attempts) clear(ctx context.Context) error {
	var errs *multierror.Error
	for _, kind := range attemptKinds {
		errs = multierror.Append(errs, a.abandon(ctx, kind))
	}
	return errs.ErrorOrNil()
}
