// Package redis is an ssosdk.Storage on Redis, for hosts that share one
// session across processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix     = "tabsso:"
	DefaultAttemptTTL = 10 * time.Minute
)

// ErrUnavailable wraps every Redis failure other than a missing key.
var ErrUnavailable = errors.New("redis unavailable")

type Store struct {
	rdb        redis.UniversalClient
	prefix     string
	attemptTTL time.Duration
}

var _ ssosdk.Storage = (*Store)(nil)

type Option func(*Store)

// WithPrefix namespaces every key.
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithAttemptTTL sets the expiry of attempt keys. Zero disables it.
func WithAttemptTTL(d time.Duration) Option {
	return func(s *Store) { s.attemptTTL = d }
}

func NewStore(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix, attemptTTL: DefaultAttemptTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewStore(rdb, opts...), nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, true, nil
}

// Set stores value. Attempt keys get the attempt TTL, so abandoned
// attempts disappear on their own.
func (s *Store) Set(ctx context.Context, key, value string) error {
	var ttl time.Duration
	if ssosdk.IsAttemptKey(key) {
		ttl = s.attemptTTL
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Keys lists the stored keys under the prefix, without it.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.prefix):])
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }
