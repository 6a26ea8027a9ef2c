package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"

	"github.com/aussiebroadwan/tabsso/internal/loopback"
	"github.com/aussiebroadwan/tabsso/internal/store/redis"
	"github.com/aussiebroadwan/tabsso/internal/store/sqlite"
	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
)

// runtime is everything one command needs. Close tears it down in reverse.
type runtime struct {
	cfg     Config
	log     *slog.Logger
	storage ssosdk.Storage
	host    *loopback.Host
	manager *ssosdk.Manager
	closers []io.Closer
}

func newRuntime(ctx context.Context, cfg Config, notifier ssosdk.Notifier, log *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}

	storage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rt.storage = storage
	if c, ok := storage.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	browser := cleanhttp.DefaultPooledClient()
	browser.Jar = jar
	browser.Timeout = 30 * time.Second

	open := loopback.SystemBrowser()
	if cfg.Browser == "headless" {
		open = loopback.Headless(browser)
	}

	host, err := loopback.Listen(loopback.Config{
		Addr:    cfg.ListenAddr,
		Open:    open,
		Browser: browser,
		Logger:  log,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.host = host

	m, err := ssosdk.NewManager(ssosdk.Config{
		CheckInterval:     cfg.CheckInterval,
		SilentTimeout:     cfg.SilentTimeout,
		RefreshCooldown:   cfg.RefreshCooldown,
		WarningThreshold:  cfg.WarningThreshold,
		PopupTimeout:      cfg.PopupTimeout,
		RedirectURI:       host.CallbackURL(),
		SilentRedirectURI: host.SilentCallbackURL(),
	}, ssosdk.Deps{
		Backend:  ssosdk.NewClient(cfg.BackendURL),
		Host:     host,
		Storage:  storage,
		Notifier: notifier,
		Logger:   log,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	host.Attach(m.Callback())
	// The manager stops before the host so no hidden context outlives it.
	rt.closers = append(rt.closers, host, m)
	rt.manager = m
	return rt, nil
}

func openStorage(ctx context.Context, cfg Config, log *slog.Logger) (ssosdk.Storage, error) {
	switch cfg.Storage {
	case "memory":
		return ssosdk.NewMemoryStorage(), nil

	case "redis":
		st, err := redis.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redis.WithPrefix(cfg.RedisPrefix))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return st, nil

	default:
		var opts []sqlite.Option
		if cfg.SealKeyFile != "" {
			material, err := os.ReadFile(cfg.SealKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read seal key: %w", err)
			}
			sealer, err := cryptox.NewSealer(material)
			if err != nil {
				return nil, err
			}
			opts = append(opts, sqlite.WithSealer(sealer))
		}

		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
		st, err := sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.SQLitePath), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		if err := st.ApplyMigrations(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		// Attempts abandoned by earlier runs.
		if n, err := st.PurgeExpired(ctx); err != nil {
			log.Warn("failed to purge expired attempts", "err", err)
		} else if n > 0 {
			log.Debug("purged expired attempts", "count", n)
		}
		return st, nil
	}
}

func (rt *runtime) Close() error {
	var errs *multierror.Error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = multierror.Append(errs, rt.closers[i].Close())
	}
	return errs.ErrorOrNil()
}

// waitRedirect blocks until a redirect login lands on the loopback host.
func (rt *runtime) waitRedirect(ctx context.Context, timeout time.Duration) (*ssosdk.Session, error) {
	if timeout <= 0 {
		timeout = ssosdk.DefaultPopupTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case res := <-rt.host.Completed():
		return res.Session, res.Err
	case <-t.C:
		return nil, fmt.Errorf("no redirect callback within %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
