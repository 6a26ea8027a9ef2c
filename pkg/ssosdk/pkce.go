package ssosdk

import (
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"golang.org/x/oauth2"
)

// ChallengeMethod is the only PKCE method sent. plain is never used.
const ChallengeMethod = "S256"

// PKCE is a verifier and its S256 challenge for a single attempt.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE draws a 256-bit verifier from r (crypto/rand when nil) and derives
// its challenge as base64url(SHA-256(verifier)) without padding.
func NewPKCE(r io.Reader) (PKCE, error) {
	v, err := cryptox.GenerateTokenFrom(r, cryptox.TokenSize256)
	if err != nil {
		return PKCE{}, fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	return PKCE{Verifier: v, Challenge: oauth2.S256ChallengeFromVerifier(v)}, nil
}

// Matches reports whether challenge was derived from p's verifier.
func (p PKCE) Matches(challenge string) bool {
	want := oauth2.S256ChallengeFromVerifier(p.Verifier)
	return subtle.ConstantTimeCompare([]byte(want), []byte(challenge)) == 1
}

// newState returns a fresh correlation token.
func newState(r io.Reader) (string, error) {
	s, err := cryptox.GenerateTokenFrom(r, cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	return s, nil
}
