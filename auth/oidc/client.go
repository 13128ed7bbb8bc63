package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/observability"
)

// maxTokenResponse caps how much of a token endpoint response is read.
const maxTokenResponse = 1 << 20

// Client talks to the realm's browser-facing and back-channel endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default timeout-bounded HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(log *logger.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for cfg. Defaults are applied to a copy.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	cfg.ApplyDefaults()
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	c.log = c.log.WithComponent("oidc")
	return c
}

// Config returns the client configuration with defaults applied.
func (c *Client) Config() Config { return c.cfg }

// BuildAuthorizationURL returns the authorize URL for the Authorization Code
// flow with PKCE. It performs no I/O.
func (c *Client) BuildAuthorizationURL(state, codeChallenge string, opts ...AuthURLOption) string {
	var o authURLOptions
	for _, opt := range opts {
		opt(&o)
	}

	q := url.Values{}
	for k, v := range o.extra {
		q.Set(k, v)
	}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", CodeChallengeMethodS256)
	if o.nonce != "" {
		q.Set("nonce", o.nonce)
	}
	if o.action != "" {
		q.Set("kc_action", string(o.action))
	}
	if o.loginHint != "" {
		q.Set("login_hint", o.loginHint)
	}

	return c.cfg.AuthorizationEndpoint() + "?" + q.Encode()
}

// ExchangeCodeForTokens redeems an authorization code at the token endpoint.
// Any non-200 response is a token_exchange_failed error carrying the
// identity provider's error payload in its details.
func (c *Client) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTokenExchange)
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("create token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.SetSpanError(span, err)
		c.log.Warn("Token endpoint unreachable", logger.Fields(logger.FieldError, err.Error()))
		return nil, errors.TokenExchangeFailed(0, "", "").WithCause(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	span.SetAttributes(attribute.Int(observability.AttrHTTPCode, resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, errors.TokenExchangeFailed(resp.StatusCode, "", "").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		var idpErr tokenError
		_ = json.Unmarshal(body, &idpErr)
		appErr := errors.TokenExchangeFailed(resp.StatusCode, idpErr.Code, idpErr.Description)
		observability.SetSpanError(span, appErr)
		c.log.Warn("Token exchange rejected", logger.Fields(
			logger.FieldStatus, resp.StatusCode,
			"idp_error", idpErr.Code,
		))
		return nil, appErr
	}

	var tokens TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		observability.SetSpanError(span, err)
		return nil, errors.TokenExchangeFailed(resp.StatusCode, "invalid_response", "").WithCause(err)
	}
	if tokens.IDToken == "" {
		appErr := errors.TokenExchangeFailed(resp.StatusCode, "missing_id_token", "")
		observability.SetSpanError(span, appErr)
		return nil, appErr
	}

	return &tokens, nil
}

// EndSessionURL builds the RP-initiated logout redirect. idTokenHint may be empty.
func (c *Client) EndSessionURL(postLogoutRedirectURI, idTokenHint string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	return c.cfg.EndSessionEndpoint() + "?" + q.Encode()
}

// ResetCredentialsURL returns Keycloak's password reset page.
func (c *Client) ResetCredentialsURL(loginHint string) string {
	target := c.cfg.ResetCredentialsEndpoint()
	if loginHint == "" {
		return target
	}
	q := url.Values{}
	q.Set("login_hint", loginHint)
	return target + "?" + q.Encode()
}
