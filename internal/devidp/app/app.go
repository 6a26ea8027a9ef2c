package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"

	httpapi "github.com/aussiebroadwan/tabsso/internal/devidp/http"
	"github.com/aussiebroadwan/tabsso/internal/devidp/service"
	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"github.com/aussiebroadwan/tabsso/pkg/httpx"
	"github.com/aussiebroadwan/tabsso/pkg/jwtx"
	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	signingKeyID = "devidp-1"
)

// Application is the dev identity provider and backend proxy.
type Application struct {
	cfg    Config
	logger *slog.Logger

	keys     *jwtx.KeySet
	signer   *jwtx.EdDSASigner
	verifier *jwtx.EdDSAVerifier
	codes    *service.CodeStore
	sessions *service.SessionRegistry

	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tabsso-devidp",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initKeys(); err != nil {
		return nil, err
	}
	app.initServices()
	if err := app.initHTTP(); err != nil {
		return nil, err
	}
	return app, nil
}

// Handler exposes the router for in-process servers.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("dev identity provider starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func (app *Application) Shutdown() error {
	app.logger.Info("shutting down dev identity provider...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	app.logger.Info("dev identity provider stopped")
	return nil
}

func (app *Application) initKeys() error {
	pemKey, err := cryptox.LoadOrCreateEd25519Key(app.cfg.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	signer, err := jwtx.NewSignerEdDSA(signingKeyID, pemKey)
	if err != nil {
		return fmt.Errorf("failed to parse signing key: %w", err)
	}

	app.keys = jwtx.NewKeySet()
	if err := app.keys.AddSigner(signer); err != nil {
		return fmt.Errorf("failed to register signing key: %w", err)
	}
	app.signer = signer
	app.verifier = jwtx.NewVerifierEdDSA(app.keys, jwtx.VerifyOptions{
		Issuer:   app.cfg.Issuer,
		Audience: []string{app.cfg.ClientID},
		Leeway:   30 * time.Second,
	})

	if app.cfg.SigningKeyFile == "" {
		app.logger.Warn("using an ephemeral signing key; tokens will not survive a restart")
	}
	return nil
}

func (app *Application) initServices() {
	client := service.Client{
		ID:           app.cfg.ClientID,
		RedirectURIs: app.cfg.RedirectURIs,
		Scope:        app.cfg.Scope,
	}
	user := service.User{
		Subject:          app.cfg.Subject(),
		Name:             app.cfg.UserName,
		Email:            app.cfg.UserEmail,
		IdentityProvider: app.cfg.UserIDP,
	}

	app.codes = service.NewCodeStore()
	app.sessions = service.NewSessionRegistry(app.cfg.SessionTTL)

	app.authorizeService = &service.AuthorizeService{
		Client:   client,
		User:     user,
		Codes:    app.codes,
		Sessions: app.sessions,
		CodeTTL:  app.cfg.CodeTTL,
		Now:      time.Now,
	}
	app.tokenService = &service.TokenService{
		Issuer:    app.cfg.Issuer,
		Client:    client,
		User:      user,
		Signer:    app.signer,
		Codes:     app.codes,
		Sessions:  app.sessions,
		AccessTTL: app.cfg.AccessTTL,
		Now:       time.Now,
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.codes,
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() error {
	secret := []byte(app.cfg.CookieSecret)
	if len(secret) == 0 {
		token, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return fmt.Errorf("failed to generate cookie secret: %w", err)
		}
		secret = []byte(token)
	}
	cookies := sessions.NewCookieStore(secret)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(app.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	authURL := ""
	if app.cfg.PublicURL != "" {
		authURL = app.cfg.PublicURL + "/authorize"
	}
	discovery := httpapi.Discovery{
		Login: ssosdk.ProviderConfig{
			AuthURL: authURL, ClientID: app.cfg.ClientID, Scope: app.cfg.Scope, Realm: app.cfg.Realm,
		},
		Silent: ssosdk.ProviderConfig{
			AuthURL: authURL, ClientID: app.cfg.ClientID, Scope: app.cfg.SilentScope, Realm: app.cfg.Realm,
		},
	}

	router := httpapi.NewRouter(
		app.keys,
		app.verifier,
		cookies,
		discovery,
		BuildVersion,
		app.logger,
	)
	router.AuthorizeService = app.authorizeService
	router.TokenService = app.tokenService
	router.ExchangeLimit = httpx.RateLimitFromEnv("EXCHANGE", httpx.ExchangeLimit)
	router.PublicLimit = httpx.RateLimitFromEnv("PUBLIC", httpx.PublicLimit)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
