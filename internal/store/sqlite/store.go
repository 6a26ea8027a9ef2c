// Package sqlite is an ssosdk.Storage backed by a SQLite file, for CLI
// sessions that survive restarts. Values can be sealed at rest.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	_ "modernc.org/sqlite"
)

// DefaultAttemptTTL bounds how long an abandoned attempt lingers on disk.
const DefaultAttemptTTL = 10 * time.Minute

// Store is an ssosdk.Storage backed by a sqlite database.
type Store struct {
	db         *sql.DB
	sealer     *cryptox.Sealer
	attemptTTL time.Duration
	now        func() time.Time
}

var _ ssosdk.Storage = (*Store)(nil)

type Option func(*Store)

// WithSealer encrypts every value with s. Rows written without a sealer
// are still readable.
func WithSealer(s *cryptox.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// WithAttemptTTL sets how long attempt keys stay readable.
func WithAttemptTTL(d time.Duration) Option {
	return func(st *Store) { st.attemptTTL = d }
}

func withClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// NewStore opens the database at dsn. Call ApplyMigrations before use.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, attemptTTL: DefaultAttemptTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		sealed    bool
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, sealed, expires_at FROM credentials WHERE key = ?`, key,
	).Scan(&value, &sealed, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		return "", false, nil
	}

	if !sealed {
		return value, true, nil
	}
	if s.sealer == nil {
		return "", false, fmt.Errorf("failed to read %s: value is sealed and no key is configured", key)
	}
	plain, err := s.sealer.Open(value, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return string(plain), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed := false
	if s.sealer != nil {
		v, err := s.sealer.Seal([]byte(value), []byte(key))
		if err != nil {
			return fmt.Errorf("failed to seal %s: %w", key, err)
		}
		value, sealed = v, true
	}

	now := s.now().UTC()
	var expiresAt sql.NullTime
	if ssosdk.IsAttemptKey(key) && s.attemptTTL > 0 {
		expiresAt = sql.NullTime{Time: now.Add(s.attemptTTL), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, sealed, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			sealed = excluded.sealed,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		key, value, sealed, now, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys that have not expired.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM credentials WHERE expires_at IS NULL OR expires_at > ? ORDER BY key`, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PurgeExpired deletes expired attempt rows and reports how many went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired credentials: %w", err)
	}
	return res.RowsAffected()
}
