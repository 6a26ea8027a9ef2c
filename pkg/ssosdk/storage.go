package ssosdk

import (
	"context"
	"sync"
)

// Storage persists named string values. Implementations must be safe for
// concurrent use. Removing a missing key is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Long-lived keys.
const (
	KeyAccessToken = "sso_access_token"
	KeyLogin       = "sso_login"
	KeyIDToken     = "sso_id_token"
	KeyIDPHint     = "sso_idp_hint"
	KeyUser        = "sso_user"
	KeyExpiresAt   = "sso_expires_at"
	KeyLastError   = "sso_last_error"
)

// IsAttemptKey reports whether key holds short-lived attempt data, which
// storage drivers may expire.
func IsAttemptKey(key string) bool {
	for _, kind := range attemptKinds {
		for _, f := range attemptFields {
			if key == attemptKey(kind, f) {
				return true
			}
		}
	}
	return false
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys returns the stored keys, for tests and diagnostics.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}
