package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabsso/internal/devidp/service"
	"github.com/aussiebroadwan/tabsso/pkg/httpx"
	"github.com/aussiebroadwan/tabsso/pkg/jwtx"
	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"github.com/gorilla/sessions"

	_ "github.com/aussiebroadwan/tabsso/api/devidp" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Discovery is what the backend proxy tells clients about the provider.
type Discovery struct {
	Login  ssosdk.ProviderConfig
	Silent ssosdk.ProviderConfig
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	cookies      sessions.Store
	discovery    Discovery
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	AuthorizeService *service.AuthorizeService
	TokenService     *service.TokenService
	ExchangeLimit    httpx.RateLimitConfig
	PublicLimit      httpx.RateLimitConfig
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	cookies sessions.Store,
	discovery Discovery,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:           http.NewServeMux(),
		keys:          keys,
		verifier:      verifier,
		cookies:       cookies,
		discovery:     discovery,
		buildVersion:  buildVersion,
		startTime:     time.Now(),
		logger:        logger,
		ExchangeLimit: httpx.ExchangeLimit,
		PublicLimit:   httpx.PublicLimit,
	}

	r.middlewares = []httpx.Middleware{
		httpx.Recover(),
		slogx.HTTPMiddleware(r.logger),
	}
	return r
}

func (r *Router) ApplyRoutes() {
	r.registerProvider()
	r.registerBackend()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
//
//	@title			TabSSO Development Identity Provider
//	@version		0.1.0
//	@description	A single-user OAuth2 authorization server with PKCE and the backend proxy endpoints the SSO session manager talks to.
//
//	@host						localhost:8090
//	@BasePath					/
//	@schemes					http
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token from /api/sso/exchange. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerProvider() {
	authorize := &AuthorizeHandler{
		AuthorizeService: r.AuthorizeService,
		Cookies:          r.cookies,
		Logger:           r.logger,
	}
	r.Mux.Handle("GET /authorize",
		httpx.Chain(http.HandlerFunc(authorize.HandleGet),
			httpx.RateLimit(r.PublicLimit, httpx.IPKey),
		),
	)
	r.Mux.HandleFunc("POST /logout", authorize.HandleLogout(r.TokenService))
	r.Mux.HandleFunc("GET /.well-known/jwks.json", JWKSHandler(r.keys))
}

func (r *Router) registerBackend() {
	sso := &SSOHandler{TokenService: r.TokenService, Discovery: r.discovery}

	r.Mux.Handle("GET "+ssosdk.PathConfig,
		httpx.Chain(http.HandlerFunc(sso.HandleConfig),
			httpx.RateLimit(r.PublicLimit, httpx.IPKey),
		),
	)
	r.Mux.Handle("POST "+ssosdk.PathExchange,
		httpx.Chain(http.HandlerFunc(sso.HandleExchange),
			httpx.RateLimit(r.ExchangeLimit, httpx.IPKey),
		),
	)
	r.Mux.Handle("GET "+ssosdk.PathValidate,
		httpx.Chain(http.HandlerFunc(sso.HandleValidate),
			httpx.RateLimit(r.PublicLimit, httpx.IPKey),
			httpx.BearerAuth(r.verifier),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.HandleFunc("GET /livez", LivezHandler(r.startTime, r.buildVersion))
}
