package ssosdk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
)

// exchanger redeems a code for the attempt it was issued to.
type exchanger struct {
	backend  Backend
	sessions sessions
	attempts attempts
	guard    *sessionGuard
	// established runs with the new session while the guard is held.
	established func(*Session)
	now         func() time.Time
	log         *slog.Logger
}

// exchange calls the backend once. On success the session is persisted and
// all attempt storage cleared, unless a logout moved the guard past epoch
// meanwhile. Failures are returned as they are; a second call for the same
// code fails at the provider and is surfaced too.
func (e *exchanger) exchange(ctx context.Context, code string, at Attempt, epoch uint64) (*Session, error) {
	log := e.log.With("attempt_id", at.ID.String(), "kind", string(at.Kind))

	resp, err := e.backend.Exchange(ctx, ExchangeRequest{
		Code:         code,
		RedirectURI:  at.RedirectURI,
		CodeVerifier: at.PKCE.Verifier,
	})
	if err != nil {
		log.Warn("token exchange failed", "code_fp", cryptox.ShortFingerprint(code), "err", err)
		return nil, err
	}

	sess := sessionFromExchange(resp, e.now())
	err = e.guard.commit(epoch, func() error {
		if err := e.sessions.save(ctx, sess); err != nil {
			return err
		}
		if err := e.attempts.clear(ctx); err != nil {
			log.Warn("failed to clear attempt storage", "err", err)
		}
		e.established(sess)
		return nil
	})
	if errors.Is(err, ErrSessionEnded) {
		log.Info("session ended during exchange, discarding tokens")
	}
	if err != nil {
		return nil, err
	}

	log.Info("token exchange succeeded", "token_fp", cryptox.ShortFingerprint(sess.AccessToken))
	return sess, nil
}
