package oidc

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config describes the Keycloak realm and this client's registration.
// Loadable from YAML/env via mapstructure tags.
type Config struct {
	// BaseURL is the server-side Keycloak URL, used for token and JWKS calls
	// (e.g. "http://keycloak:8080").
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// PublicBaseURL is the browser-facing Keycloak URL used for redirects.
	// Falls back to BaseURL.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`

	// Realm is the Keycloak realm name.
	Realm string `mapstructure:"realm" validate:"required"`

	// ClientID is the public client id, also the expected "aud" claim.
	ClientID string `mapstructure:"client_id" validate:"required"`

	// RedirectURI is the registered callback URL.
	RedirectURI string `mapstructure:"redirect_uri" validate:"required,url"`

	// Issuer overrides the expected "iss" claim. Defaults to
	// {BaseURL}/realms/{Realm}.
	Issuer string `mapstructure:"issuer" validate:"omitempty,url"`

	// Scopes requested at the authorize endpoint (default: ["openid"]).
	Scopes []string `mapstructure:"scopes"`

	// HTTPTimeout bounds token and JWKS requests (default: 5s).
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// JWKSMaxAge forces a key refresh once the cache is older (default: 5m).
	JWKSMaxAge time.Duration `mapstructure:"jwks_max_age"`

	// ClockSkew is the leeway applied to exp/iat/nbf (default: 5s).
	ClockSkew time.Duration `mapstructure:"clock_skew"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid"}
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 5 * time.Second
	}
	if c.JWKSMaxAge == 0 {
		c.JWKSMaxAge = 5 * time.Minute
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = 5 * time.Second
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("oidc.base_url is required")
	}
	if c.Realm == "" {
		return fmt.Errorf("oidc.realm is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("oidc.client_id is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("oidc.redirect_uri is required")
	}
	if _, err := url.Parse(c.RedirectURI); err != nil {
		return fmt.Errorf("oidc.redirect_uri: %w", err)
	}
	for _, s := range c.Scopes {
		if s == "openid" {
			return nil
		}
	}
	return fmt.Errorf("oidc.scopes must include openid")
}

func (c *Config) publicBase() string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL
	}
	return c.BaseURL
}

func (c *Config) realmPath(base string) string {
	return base + "/realms/" + url.PathEscape(c.Realm)
}

// IssuerURL is the expected "iss" claim.
func (c *Config) IssuerURL() string {
	if c.Issuer != "" {
		return strings.TrimRight(c.Issuer, "/")
	}
	return c.realmPath(c.BaseURL)
}

// AuthorizationEndpoint is browser-facing.
func (c *Config) AuthorizationEndpoint() string {
	return c.realmPath(c.publicBase()) + "/protocol/openid-connect/auth"
}

// TokenEndpoint is called server-side.
func (c *Config) TokenEndpoint() string {
	return c.realmPath(c.BaseURL) + "/protocol/openid-connect/token"
}

// JWKSEndpoint is called server-side.
func (c *Config) JWKSEndpoint() string {
	return c.realmPath(c.BaseURL) + "/protocol/openid-connect/certs"
}

// EndSessionEndpoint is browser-facing.
func (c *Config) EndSessionEndpoint() string {
	return c.realmPath(c.publicBase()) + "/protocol/openid-connect/logout"
}

// ResetCredentialsEndpoint is Keycloak's "forgot password" page.
func (c *Config) ResetCredentialsEndpoint() string {
	return c.realmPath(c.publicBase()) + "/login-actions/reset-credentials"
}
