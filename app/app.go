package app

import (
	"context"
	"net/http"

	"github.com/gustavlms/gustav/auth/csrf"
	"github.com/gustavlms/gustav/auth/state"
	"github.com/gustavlms/gustav/bootstrap"
	"github.com/gustavlms/gustav/database"
	"github.com/gustavlms/gustav/observability"
	"github.com/gustavlms/gustav/redis"
	"github.com/gustavlms/gustav/server"
	"github.com/gustavlms/gustav/server/middleware"
)

// Gustav is the assembled identity service.
type Gustav struct {
	App    *bootstrap.App[*Config]
	Server *server.Server

	flow *flowComponent
}

// loginRatePrefixes are the entry points that mint authorization states. The
// callback is not limited: each state is redeemable once.
var loginRatePrefixes = []string{"/auth/login", "/auth/register", "/auth/forgot"}

// New validates cfg and registers the components in start order: Redis and
// the database when their backends are selected, the auth flow, then the
// HTTP server.
func New(ctx context.Context, cfg *Config, opts ...bootstrap.Option) (*Gustav, error) {
	app, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return nil, err
	}
	log := app.Logger

	shutdownTelemetry, err := observability.Setup(ctx, cfg.Observability, cfg.Name, cfg.Version, cfg.Environment, log)
	if err != nil {
		return nil, err
	}
	app.OnStop(func(ctx context.Context) error { return shutdownTelemetry(ctx) })
	metrics := observability.NewDefaultAuthMetrics()

	guard, err := csrf.NewGuard(csrf.Config{
		TrustProxy:     cfg.Web.TrustProxy,
		AllowedOrigins: cfg.CSRFOrigins(),
	})
	if err != nil {
		return nil, err
	}

	var (
		redisComp *redis.Component
		dbComp    *database.Component
	)
	if cfg.State.Backend == BackendRedis {
		redisComp = redis.NewComponent(cfg.Redis, log, redis.WithNamespace(state.RedisNamespace))
		if err := app.RegisterComponent(redisComp); err != nil {
			return nil, err
		}
	}
	if cfg.Session.Backend == BackendDB {
		dbComp = database.NewComponent(cfg.Database, log)
		if err := app.RegisterComponent(dbComp); err != nil {
			return nil, err
		}
	}

	srv := server.New(cfg.Server, log)
	srv.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
			ContentSecurityPolicy: cfg.Web.ContentSecurityPolicy,
			Scheme:                guard.Scheme,
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Web.LoginRateLimit,
			PathPrefixes:      loginRatePrefixes,
			KeyFunc:           middleware.ClientIP(cfg.Web.TrustProxy),
		}),
		middleware.BodySizeLimit(cfg.Server.MaxBodyBytes),
	)
	srv.RegisterHealth(cfg.Name, app.Components.HealthAll)

	flow := &flowComponent{
		cfg:     cfg,
		engine:  srv.GinEngine(),
		redis:   redisComp,
		db:      dbComp,
		guard:   guard,
		metrics: metrics,
		log:     log.WithComponent("auth-flow"),
		client:  &http.Client{Timeout: cfg.OIDC.HTTPTimeout},
	}
	if err := app.RegisterComponent(flow); err != nil {
		return nil, err
	}
	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return nil, err
	}

	return &Gustav{App: app, Server: srv, flow: flow}, nil
}

// Run serves until SIGINT/SIGTERM or ctx is done.
func (g *Gustav) Run(ctx context.Context) error {
	return g.App.Run(ctx)
}
