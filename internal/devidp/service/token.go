package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"github.com/aussiebroadwan/tabsso/pkg/idx"
	"github.com/aussiebroadwan/tabsso/pkg/jwtx"
	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"golang.org/x/oauth2"
)

// TokenService redeems codes for signed tokens and answers validity checks.
type TokenService struct {
	Issuer    string
	Client    Client
	User      User
	Signer    jwtx.Signer
	Codes     *CodeStore
	Sessions  *SessionRegistry
	AccessTTL time.Duration
	Now       func() time.Time
}

// Exchange verifies the code, its redirect URI and the PKCE verifier, then
// mints an access and ID token bound to the provider session.
func (s *TokenService) Exchange(ctx context.Context, in ssosdk.ExchangeRequest) (ssosdk.ExchangeResponse, error) {
	log := slogx.FromContext(ctx)
	now := s.Now()

	if in.Code == "" || in.RedirectURI == "" || in.CodeVerifier == "" {
		return ssosdk.ExchangeResponse{}, oauthErr(ErrInvalidRequest, "code, redirectUri and codeVerifier are required")
	}

	grant, err := s.Codes.Redeem(in.Code, now)
	if err != nil {
		log.Info("exchange: code rejected", "code_fp", cryptox.ShortFingerprint(in.Code))
		return ssosdk.ExchangeResponse{}, err
	}
	if grant.RedirectURI != in.RedirectURI {
		return ssosdk.ExchangeResponse{}, oauthErr(ErrInvalidGrant, "redirect_uri does not match the authorization request")
	}
	want := oauth2.S256ChallengeFromVerifier(in.CodeVerifier)
	if subtle.ConstantTimeCompare([]byte(want), []byte(grant.CodeChallenge)) != 1 {
		return ssosdk.ExchangeResponse{}, oauthErr(ErrInvalidGrant, "PKCE verification failed")
	}
	if _, ok := s.Sessions.Get(grant.SessionID, now); !ok {
		return ssosdk.ExchangeResponse{}, oauthErr(ErrInvalidGrant, "Provider session ended")
	}

	claims := jwtx.NewClaims(jwtx.ClaimParams{
		Issuer:           s.Issuer,
		Subject:          grant.Subject,
		Audience:         []string{grant.ClientID},
		SID:              grant.SessionID,
		IdentityProvider: grant.IDP,
		Name:             s.User.Name,
		Email:            s.User.Email,
		TTL:              s.AccessTTL,
		Now:              now,
	})
	access, err := s.Signer.Sign(claims)
	if err != nil {
		return ssosdk.ExchangeResponse{}, err
	}
	idClaims := claims
	idClaims.ID = idx.NewAt(now).String()
	idToken, err := s.Signer.Sign(idClaims)
	if err != nil {
		return ssosdk.ExchangeResponse{}, err
	}

	user, err := json.Marshal(map[string]string{
		"sub":   grant.Subject,
		"name":  s.User.Name,
		"email": s.User.Email,
	})
	if err != nil {
		return ssosdk.ExchangeResponse{}, err
	}

	expiresIn := int(s.AccessTTL / time.Second)
	log.Info("exchange: tokens issued", "sid", grant.SessionID, "token_fp", cryptox.ShortFingerprint(access))
	return ssosdk.ExchangeResponse{
		Token:            access,
		IDToken:          idToken,
		User:             user,
		IdentityProvider: grant.IDP,
		ExpiresIn:        &expiresIn,
	}, nil
}

// Validate reports whether verified claims still belong to a live provider
// session.
func (s *TokenService) Validate(ctx context.Context, claims jwtx.Claims) ssosdk.ValidityResponse {
	now := s.Now()
	if _, ok := s.Sessions.Get(claims.SID, now); !ok {
		slogx.FromContext(ctx).Debug("validate: provider session gone", "sid", claims.SID)
		return ssosdk.ValidityResponse{Valid: false}
	}

	secs, ok := claims.ExpiresIn(now)
	if !ok {
		return ssosdk.ValidityResponse{Valid: true}
	}
	return ssosdk.ValidityResponse{Valid: secs > 0, ExpiresIn: &secs}
}

// Logout ends the provider session.
func (s *TokenService) Logout(ctx context.Context, sid string) bool {
	ended := s.Sessions.End(sid)
	if ended {
		slogx.FromContext(ctx).Info("provider session ended", "sid", sid)
	}
	return ended
}
