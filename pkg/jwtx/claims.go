package jwtx

import (
	"slices"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access and ID token claims issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the upstream provider session that minted the token.
	SID string `json:"sid,omitempty"`

	// IdentityProvider names the upstream broker (e.g. "google") that
	// authenticated the user. It is remembered as a hint for re-auth.
	IdentityProvider string `json:"idp,omitempty"`

	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// ClaimParams is the input to NewClaims.
type ClaimParams struct {
	Issuer           string
	Subject          string
	Audience         []string
	SID              string
	IdentityProvider string
	Name             string
	Email            string
	TTL              time.Duration
	Now              time.Time
}

// NewClaims builds minimally-correct claims with a fresh jti.
func NewClaims(p ClaimParams) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(p.TTL)),
			ID:        idx.NewAt(p.Now).String(),
		},
		SID:              p.SID,
		IdentityProvider: p.IdentityProvider,
		Name:             p.Name,
		Email:            p.Email,
	}
}

// ValidateIssuer checks the issuer. An empty expectation is not enforced.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateTime checks exp and nbf at now, allowing leeway for clock skew.
func (c *Claims) ValidateTime(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// ExpiresIn reports the whole seconds left before exp, floored at zero.
// ok is false when the token has no exp claim.
func (c *Claims) ExpiresIn(now time.Time) (secs int, ok bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return max(int(c.ExpiresAt.Sub(now)/time.Second), 0), true
}
