package service

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
)

// Grant is what an authorization code stands for.
type Grant struct {
	ClientID      string
	RedirectURI   string
	Scope         string
	CodeChallenge string
	SessionID     string
	Subject       string
	IDP           string
	ExpiresAt     time.Time
}

// CodeStore holds issued codes by fingerprint. Codes are single use.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]Grant
}

func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[string]Grant)}
}

// Issue stores g and returns its fresh code.
func (s *CodeStore) Issue(g Grant) (string, error) {
	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[cryptox.FingerprintToken(code)] = g
	return code, nil
}

// Redeem removes and returns the grant behind code. A code is gone after
// the first attempt, successful or not.
func (s *CodeStore) Redeem(code string, now time.Time) (Grant, error) {
	fp := cryptox.FingerprintToken(code)

	s.mu.Lock()
	g, ok := s.codes[fp]
	delete(s.codes, fp)
	s.mu.Unlock()

	if !ok {
		return Grant{}, oauthErr(ErrInvalidGrant, "Authorization code is invalid or was already used")
	}
	if !now.Before(g.ExpiresAt) {
		return Grant{}, oauthErr(ErrInvalidGrant, "Authorization code expired")
	}
	return g, nil
}

// Purge drops expired codes and reports how many went.
func (s *CodeStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for fp, g := range s.codes {
		if !now.Before(g.ExpiresAt) {
			delete(s.codes, fp)
			n++
		}
	}
	return n
}
