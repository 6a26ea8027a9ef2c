package ssosdk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-multierror"
)

// Session is the established SSO session. Consumers read it; only the
// Manager writes it.
type Session struct {
	AccessToken string
	IDToken     string
	// ExpiresInSeconds is the lifetime left when the session was read, or
	// nil when unknown.
	ExpiresInSeconds *int
	User             json.RawMessage
	IdentityProvider string
	IssuedAt         time.Time
}

// sessionFromExchange builds a Session. When the backend omits expiresIn
// the access token's exp claim is used if it is a JWT.
func sessionFromExchange(resp ExchangeResponse, now time.Time) *Session {
	s := &Session{
		AccessToken:      resp.Token,
		IDToken:          resp.IDToken,
		ExpiresInSeconds: resp.ExpiresIn,
		User:             resp.User,
		IdentityProvider: resp.IdentityProvider,
		IssuedAt:         now,
	}
	if s.ExpiresInSeconds == nil {
		if exp, ok := tokenExpiry(resp.Token); ok {
			secs := max(int(exp.Sub(now)/time.Second), 0)
			s.ExpiresInSeconds = &secs
		}
	}
	return s
}

// tokenExpiry reads exp from a JWT without verifying it. The backend has
// already verified the token; the client only needs the timing.
func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// sessions persists the long-lived keys.
type sessions struct {
	store Storage
}

func (s sessions) save(ctx context.Context, sess *Session) error {
	var errs *multierror.Error
	set := func(key, value string) {
		if value == "" {
			errs = multierror.Append(errs, s.store.Remove(ctx, key))
			return
		}
		errs = multierror.Append(errs, s.store.Set(ctx, key, value))
	}

	set(KeyAccessToken, sess.AccessToken)
	set(KeyLogin, "true")
	set(KeyIDToken, sess.IDToken)
	set(KeyUser, string(sess.User))

	expiresAt := ""
	if sess.ExpiresInSeconds != nil {
		expiresAt = sess.IssuedAt.Add(time.Duration(*sess.ExpiresInSeconds) * time.Second).UTC().Format(time.RFC3339)
	}
	set(KeyExpiresAt, expiresAt)

	// A refresh that names no provider keeps the hint from the original login.
	if sess.IdentityProvider != "" {
		set(KeyIDPHint, sess.IdentityProvider)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// load returns the persisted session. Sessions not created by SSO are
// reported as ErrNoSession.
func (s sessions) load(ctx context.Context, now time.Time) (*Session, error) {
	login, _, err := s.store.Get(ctx, KeyLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	token, ok, err := s.store.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok || token == "" || login != "true" {
		return nil, ErrNoSession
	}

	sess := &Session{AccessToken: token}
	sess.IDToken, _, _ = s.store.Get(ctx, KeyIDToken)
	sess.IdentityProvider, _, _ = s.store.Get(ctx, KeyIDPHint)
	if user, ok, _ := s.store.Get(ctx, KeyUser); ok && json.Valid([]byte(user)) {
		sess.User = json.RawMessage(user)
	}
	if raw, ok, _ := s.store.Get(ctx, KeyExpiresAt); ok {
		if exp, err := time.Parse(time.RFC3339, raw); err == nil {
			secs := max(int(exp.Sub(now)/time.Second), 0)
			sess.ExpiresInSeconds = &secs
		}
	}
	return sess, nil
}

func (s sessions) idpHint(ctx context.Context) string {
	hint, _, _ := s.store.Get(ctx, KeyIDPHint)
	return hint
}

func (s sessions) recordError(ctx context.Context, err error) {
	_ = s.store.Set(ctx, KeyLastError, err.Error())
}

func (s sessions) lastError(ctx context.Context) (string, error) {
	v, _, err := s.store.Get(ctx, KeyLastError)
	return v, err
}

// clear removes every long-lived key.
func (s sessions) clear(ctx context.Context) error {
	var errs *multierror.Error
	for _, k := range []string{KeyAccessToken, KeyLogin, KeyIDToken, KeyIDPHint, KeyUser, KeyExpiresAt} {
		errs = multierror.Append(errs, s.store.Remove(ctx, k))
	}
	return errs.ErrorOrNil()
}
