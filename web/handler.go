package web

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/auth/oidc"
	"github.com/gustavlms/gustav/auth/session"
	"github.com/gustavlms/gustav/auth/state"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/observability"
)

// AuthorizationClient is the identity provider side of the login flow.
// *oidc.Client satisfies it.
type AuthorizationClient interface {
	BuildAuthorizationURL(state, codeChallenge string, opts ...oidc.AuthURLOption) string
	ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*oidc.TokenSet, error)
	EndSessionURL(postLogoutRedirectURI, idTokenHint string) string
	ResetCredentialsURL(loginHint string) string
}

// TokenVerifier verifies ID tokens. *oidc.Verifier satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.Claims, error)
}

// Config configures the auth handlers.
type Config struct {
	// AppBaseURL is the public URL of the app, used for post-logout redirects.
	AppBaseURL string
	// CookieName defaults to session.DefaultCookieName.
	CookieName string
	// SessionTTL defaults to session.DefaultTTL.
	SessionTTL time.Duration
	// StateTTL defaults to state.DefaultTTL.
	StateTTL time.Duration
	// AllowedRegistrationDomains restricts the login_hint of /auth/register,
	// e.g. ["@school.example"]. Empty allows any hint.
	AllowedRegistrationDomains []string
}

func (c *Config) applyDefaults() {
	c.AppBaseURL = strings.TrimRight(c.AppBaseURL, "/")
	if c.CookieName == "" {
		c.CookieName = session.DefaultCookieName
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = session.DefaultTTL
	}
	if c.StateTTL == 0 {
		c.StateTTL = state.DefaultTTL
	}
	c.AllowedRegistrationDomains = normalizeDomains(c.AllowedRegistrationDomains)
}

// Handler implements the OIDC login state machine over HTTP.
type Handler struct {
	cfg      Config
	client   AuthorizationClient
	verifier TokenVerifier
	states   state.Store
	sessions session.Store
	log      *logger.Logger
	metrics  *observability.AuthMetrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(log *logger.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithMetrics records login outcomes.
func WithMetrics(m *observability.AuthMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler wires the login flow collaborators.
func NewHandler(cfg Config, client AuthorizationClient, verifier TokenVerifier, states state.Store, sessions session.Store, opts ...Option) (*Handler, error) {
	cfg.applyDefaults()
	if cfg.AppBaseURL == "" {
		return nil, apperrors.InvalidConfig("web.app_base_url", "required")
	}
	if client == nil || verifier == nil || states == nil || sessions == nil {
		return nil, apperrors.InvalidConfig("web", "client, verifier, state store and session store are required")
	}
	h := &Handler{
		cfg:      cfg,
		client:   client,
		verifier: verifier,
		states:   states,
		sessions: sessions,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithComponent("auth-flow")
	return h, nil
}

// Register mounts the auth routes and GET /api/me. /api/me relies on the
// auth middleware running on the same router.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/auth/login", h.Login)
	r.GET("/auth/register", h.RegisterAccount)
	r.GET("/auth/forgot", h.Forgot)
	r.GET("/auth/callback", h.Callback)
	r.GET("/auth/logout", h.Logout)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/logout/success", h.LogoutSuccess)
	r.GET("/api/me", h.Me)
}

func (h *Handler) fail(c *gin.Context, attemptID string, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}
	fields := logger.Fields(
		"code", string(appErr.Code),
		logger.FieldAttemptID, attemptID,
	)
	if appErr.Cause != nil {
		fields[logger.FieldError] = appErr.Cause.Error()
	}
	for _, k := range []string{"reason", "status", "error", "error_description", "alg"} {
		if v, ok := appErr.Details[k]; ok {
			fields["detail_"+k] = v
		}
	}
	log := h.log.WithContext(c.Request.Context())
	if appErr.HTTPStatus >= 500 {
		log.Error("Login callback failed", fields)
	} else {
		log.Warn("Login callback rejected", fields)
	}
	h.metrics.RecordFailure(c.Request.Context(), string(appErr.PublicCode()))
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
}
