package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/gustavlms/gustav/auth/oidc"
	"github.com/gustavlms/gustav/auth/session"
	"github.com/gustavlms/gustav/auth/state"
	"github.com/gustavlms/gustav/config"
	"github.com/gustavlms/gustav/database"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/observability"
	"github.com/gustavlms/gustav/redis"
	"github.com/gustavlms/gustav/server"
	"github.com/gustavlms/gustav/version"
	"github.com/gustavlms/gustav/web"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendDB     = "db"
	BackendRedis  = "redis"
)

// Config is the full Gustav configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	OIDC          oidc.Config          `yaml:"oidc" mapstructure:"oidc"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Web           WebConfig            `yaml:"web" mapstructure:"web"`
	Session       SessionConfig        `yaml:"session" mapstructure:"session"`
	State         StateConfig          `yaml:"state" mapstructure:"state"`
	Redis         redis.Config         `yaml:"redis" mapstructure:"redis"`
	Database      database.Config      `yaml:"database" mapstructure:"database"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// WebConfig covers the browser-facing side.
type WebConfig struct {
	// BaseURL is the public app URL. Derived from oidc.redirect_uri when empty.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	// TrustProxy honors X-Forwarded-* for the same-origin check and keys the
	// login rate limit by the forwarded client. Resolved once at start-up.
	TrustProxy bool `yaml:"trust_proxy" mapstructure:"trust_proxy"`
	// AllowedOrigins are accepted by the CSRF guard in addition to BaseURL
	// and the origin of the redirect URI.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// AllowedRegistrationDomains restricts /auth/register login hints.
	AllowedRegistrationDomains []string `yaml:"allowed_registration_domains" mapstructure:"allowed_registration_domains"`
	// LoginRateLimit is the per-client budget per minute on login, register
	// and forgot (default 60).
	LoginRateLimit int `yaml:"login_rate_limit" mapstructure:"login_rate_limit" validate:"gte=0"`
	// ContentSecurityPolicy overrides the default policy.
	ContentSecurityPolicy string `yaml:"content_security_policy" mapstructure:"content_security_policy"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend" validate:"oneof=memory db"`
	TTLSeconds int    `yaml:"ttl_seconds" mapstructure:"ttl_seconds" validate:"gt=0"`
	CookieName string `yaml:"cookie_name" mapstructure:"cookie_name" validate:"required"`
	Table      string `yaml:"table" mapstructure:"table"`
	// AllowServiceRole permits a privileged database role. Development only.
	AllowServiceRole bool `yaml:"allow_service_role" mapstructure:"allow_service_role"`
	// SweepInterval runs DeleteExpired in the background for the db
	// backend. Zero disables it.
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// TTL returns the session lifetime.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// StateConfig selects the authorization state store.
type StateConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend" validate:"oneof=memory redis"`
	TTLSeconds int    `yaml:"ttl_seconds" mapstructure:"ttl_seconds" validate:"gt=0"`
}

// TTL returns how long a login attempt stays redeemable.
func (c StateConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// EnvBindings maps config keys to the environment names deployments use.
var EnvBindings = map[string][]string{
	"environment":                      {"GUSTAV_ENV"},
	"logging.level":                    {"LOG_LEVEL"},
	"logging.format":                   {"LOG_FORMAT"},
	"oidc.base_url":                    {"KC_BASE_URL"},
	"oidc.public_base_url":             {"KC_PUBLIC_BASE_URL"},
	"oidc.realm":                       {"KC_REALM"},
	"oidc.client_id":                   {"KC_CLIENT_ID"},
	"oidc.redirect_uri":                {"REDIRECT_URI"},
	"server.host":                      {"HOST"},
	"server.port":                      {"PORT"},
	"web.base_url":                     {"WEB_BASE"},
	"web.trust_proxy":                  {"GUSTAV_TRUST_PROXY"},
	"web.allowed_origins":              {"ALLOWED_ORIGINS"},
	"web.allowed_registration_domains": {"ALLOWED_REGISTRATION_DOMAINS"},
	"session.backend":                  {"SESSIONS_BACKEND"},
	"session.ttl_seconds":              {"SESSION_TTL_SECONDS"},
	"session.cookie_name":              {"SESSION_COOKIE_NAME"},
	"session.table":                    {"SESSIONS_DB_TABLE"},
	"session.allow_service_role":       {"ALLOW_SERVICE_ROLE_DSN"},
	"state.backend":                    {"STATE_BACKEND"},
	"state.ttl_seconds":                {"STATE_TTL_SECONDS"},
	"redis.addr":                       {"REDIS_ADDR"},
	"redis.password":                   {"REDIS_PASSWORD"},
	"database.dsn":                     {"DATABASE_URL"},
	"observability.endpoint":           {"OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Defaults are the lowest-precedence values.
var Defaults = map[string]any{
	"name":                "gustav",
	"session.backend":     BackendMemory,
	"session.ttl_seconds": int(session.DefaultTTL / time.Second),
	"session.cookie_name": session.DefaultCookieName,
	"session.table":       session.DefaultTable,
	"state.backend":       BackendMemory,
	"state.ttl_seconds":   int(state.DefaultTTL / time.Second),
	"oidc.realm":          "gustav",
	"oidc.client_id":      "gustav-web",
}

// Load reads the configuration from file, .env and environment.
func Load(opts ...config.LoaderOption) (*Config, error) {
	cfg := &Config{}
	opts = append([]config.LoaderOption{
		config.WithDefaults(Defaults),
		config.WithEnvBindings(EnvBindings),
	}, opts...)
	if err := config.LoadConfig("gustav", cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Version == "" {
		c.Version = version.Get().Short()
	}
	c.OIDC.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Observability.ApplyDefaults()

	if c.Session.Backend == "" {
		c.Session.Backend = BackendMemory
	}
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = int(session.DefaultTTL / time.Second)
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = session.DefaultCookieName
	}
	if c.Session.Table == "" {
		c.Session.Table = session.DefaultTable
	}
	if c.State.Backend == "" {
		c.State.Backend = BackendMemory
	}
	if c.State.TTLSeconds == 0 {
		c.State.TTLSeconds = int(state.DefaultTTL / time.Second)
	}
	if c.State.Backend == BackendRedis {
		c.Redis.ApplyDefaults()
	}
	if c.Session.Backend == BackendDB {
		c.Database.ApplyDefaults()
	}

	c.Web.BaseURL = strings.TrimRight(c.Web.BaseURL, "/")
	if c.Web.BaseURL == "" {
		c.Web.BaseURL = web.AppBaseFromRedirectURI(c.OIDC.RedirectURI)
	}
	if c.Web.LoginRateLimit == 0 {
		c.Web.LoginRateLimit = 60
	}
}

// Validate checks every section. A privileged database role is refused
// unless explicitly allowed.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.OIDC.Validate(); err != nil {
		return apperrors.InvalidConfig("oidc", err.Error())
	}
	if err := c.Server.Validate(); err != nil {
		return apperrors.InvalidConfig("server", err.Error())
	}
	if err := config.ValidateStruct(c.Web); err != nil {
		return err
	}
	if err := config.ValidateStruct(c.Session); err != nil {
		return err
	}
	if err := config.ValidateStruct(c.State); err != nil {
		return err
	}
	if c.State.Backend == BackendRedis {
		if err := c.Redis.Validate(); err != nil {
			return apperrors.InvalidConfig("redis", err.Error())
		}
	}
	if c.Session.Backend == BackendDB {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if err := c.Database.Validate(); err != nil {
		return apperrors.InvalidConfig("database", err.Error())
	}
	if c.Database.Driver != database.DriverPostgres {
		return nil
	}
	user, err := database.DSNUser(c.Database.DSN)
	if err != nil {
		return apperrors.InvalidConfig("database.dsn", "unparsable DSN").WithCause(err)
	}
	if database.IsPrivilegedRole(user) && !c.Session.AllowServiceRole {
		return apperrors.InvalidConfig("database.dsn",
			fmt.Sprintf("role %q bypasses row level security; use a limited role or set ALLOW_SERVICE_ROLE_DSN", user))
	}
	return nil
}

// CSRFOrigins are the origins accepted besides the request's own.
func (c *Config) CSRFOrigins() []string {
	origins := []string{c.Web.BaseURL}
	if base := web.AppBaseFromRedirectURI(c.OIDC.RedirectURI); base != "" {
		origins = append(origins, base)
	}
	return append(origins, c.Web.AllowedOrigins...)
}
