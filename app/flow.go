package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/auth/csrf"
	"github.com/gustavlms/gustav/auth/oidc"
	"github.com/gustavlms/gustav/auth/session"
	"github.com/gustavlms/gustav/auth/state"
	"github.com/gustavlms/gustav/component"
	"github.com/gustavlms/gustav/database"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/observability"
	"github.com/gustavlms/gustav/redis"
	"github.com/gustavlms/gustav/server/middleware"
	"github.com/gustavlms/gustav/web"
)

const flowComponentName = "auth-flow"

var (
	_ component.Component   = (*flowComponent)(nil)
	_ component.Describable = (*flowComponent)(nil)
)

// flowComponent builds the stores once Redis and the database are up, then
// mounts the auth middleware and routes before the HTTP server starts.
type flowComponent struct {
	cfg     *Config
	engine  *gin.Engine
	redis   *redis.Component
	db      *database.Component
	guard   *csrf.Guard
	metrics *observability.AuthMetrics
	log     *logger.Logger
	client  *http.Client

	mu       sync.Mutex
	started  bool
	states   state.Store
	sessions session.Store

	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

func (f *flowComponent) Name() string { return flowComponentName }

func (f *flowComponent) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}

	states, err := f.stateStore()
	if err != nil {
		return err
	}
	sessions, err := f.sessionStore(ctx)
	if err != nil {
		return err
	}

	client := oidc.NewClient(f.cfg.OIDC, oidc.WithHTTPClient(f.client), oidc.WithLogger(f.log))
	keys := oidc.NewJWKSCache(f.client,
		oidc.WithJWKSMaxAge(f.cfg.OIDC.JWKSMaxAge),
		oidc.WithJWKSLogger(f.log),
		oidc.WithJWKSMetrics(f.metrics),
	)
	verifier := oidc.NewVerifier(f.cfg.OIDC, keys, oidc.WithVerifierLogger(f.log))

	handler, err := web.NewHandler(web.Config{
		AppBaseURL:                 f.cfg.Web.BaseURL,
		CookieName:                 f.cfg.Session.CookieName,
		SessionTTL:                 f.cfg.Session.TTL(),
		StateTTL:                   f.cfg.State.TTL(),
		AllowedRegistrationDomains: f.cfg.Web.AllowedRegistrationDomains,
	}, client, verifier, states, sessions, web.WithLogger(f.log), web.WithMetrics(f.metrics))
	if err != nil {
		return err
	}

	f.engine.Use(
		middleware.Auth(middleware.AuthConfig{
			Sessions:   sessions,
			CookieName: f.cfg.Session.CookieName,
			Log:        f.log,
		}),
		middleware.GinWrap(middleware.CSRF(middleware.CSRFConfig{
			Guard:      f.guard,
			CookieName: f.cfg.Session.CookieName,
			Log:        f.log,
			Metrics:    f.metrics,
		})),
	)
	handler.Register(f.engine)

	f.states, f.sessions = states, sessions
	f.startSweeper()
	f.started = true
	f.log.Info("Auth flow ready", logger.Fields(
		"sessions", f.cfg.Session.Backend,
		"state", f.cfg.State.Backend,
		"trust_proxy", f.guard.TrustProxy(),
	))
	return nil
}

func (f *flowComponent) stateStore() (state.Store, error) {
	if f.cfg.State.Backend != BackendRedis {
		return state.NewMemoryStore(), nil
	}
	if f.redis == nil || f.redis.Client() == nil {
		return nil, fmt.Errorf("state backend redis: redis component not started")
	}
	return state.NewRedisStore(f.redis.Client()), nil
}

func (f *flowComponent) sessionStore(ctx context.Context) (session.Store, error) {
	if f.cfg.Session.Backend != BackendDB {
		return session.NewMemoryStore(), nil
	}
	if f.db == nil || f.db.DB() == nil {
		return nil, fmt.Errorf("session backend db: database component not started")
	}
	opts := []session.DBOption{
		session.WithTable(f.cfg.Session.Table),
		session.WithDBLogger(f.log),
	}
	if f.cfg.Session.AllowServiceRole {
		opts = append(opts, session.WithAllowServiceRole())
	}
	store, err := session.NewDBStore(f.db.DB().GormDB, opts...)
	if err != nil {
		return nil, err
	}
	// Postgres schemas come from `gustav migrate up`.
	if f.db.DB().Driver() == database.DriverSQLite {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (f *flowComponent) startSweeper() {
	sweeper, ok := f.sessions.(session.Sweeper)
	if !ok || f.cfg.Session.SweepInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.stopSweep = cancel
	f.sweepDone = make(chan struct{})

	go func() {
		defer close(f.sweepDone)
		ticker := time.NewTicker(f.cfg.Session.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := sweeper.DeleteExpired(ctx); err != nil && ctx.Err() == nil {
					f.log.Warn("Session sweep failed", logger.Fields(logger.FieldError, err.Error()))
				}
			}
		}
	}()
}

func (f *flowComponent) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopSweep != nil {
		f.stopSweep()
		select {
		case <-f.sweepDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		f.stopSweep = nil
	}
	return nil
}

func (f *flowComponent) Health(_ context.Context) component.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return component.Health{Name: flowComponentName, Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: flowComponentName, Status: component.StatusHealthy}
}

func (f *flowComponent) Describe() component.Description {
	return component.Description{
		Name:    flowComponentName,
		Type:    "auth",
		Details: fmt.Sprintf("sessions=%s state=%s issuer=%s", f.cfg.Session.Backend, f.cfg.State.Backend, f.cfg.OIDC.IssuerURL()),
	}
}
