package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProviderSession is a signed-in browser at the provider. Silent refresh
// works for as long as it lives.
type ProviderSession struct {
	ID               string
	Subject          string
	IdentityProvider string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// SessionRegistry tracks live provider sessions by id.
type SessionRegistry struct {
	TTL time.Duration

	mu       sync.Mutex
	sessions map[string]ProviderSession
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{TTL: ttl, sessions: make(map[string]ProviderSession)}
}

func (r *SessionRegistry) Create(subject, idp string, now time.Time) ProviderSession {
	s := ProviderSession{
		ID:               uuid.NewString(),
		Subject:          subject,
		IdentityProvider: idp,
		CreatedAt:        now,
		ExpiresAt:        now.Add(r.TTL),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

// Get returns the session if it exists and has not expired.
func (r *SessionRegistry) Get(id string, now time.Time) (ProviderSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !now.Before(s.ExpiresAt) {
		return ProviderSession{}, false
	}
	return s, true
}

func (r *SessionRegistry) End(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Purge drops expired sessions and reports how many went.
func (r *SessionRegistry) Purge(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}
