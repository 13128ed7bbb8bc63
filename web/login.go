package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/auth/oidc"
	"github.com/gustavlms/gustav/auth/state"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/server"
	"github.com/gustavlms/gustav/server/middleware"
)

const (
	flowLogin    = "login"
	flowRegister = "register"
)

// Login starts the authorization code flow. A client-supplied state is
// ignored; only an in-app redirect path is kept.
//
//	GET /auth/login?redirect=/courses
func (h *Handler) Login(c *gin.Context) {
	h.startFlow(c, flowLogin, SafeRedirect(c.Query("redirect")))
}

// RegisterAccount starts the flow on Keycloak's registration form. When
// registration domains are configured, a login_hint outside them is refused.
//
//	GET /auth/register?login_hint=alice@school.example
func (h *Handler) RegisterAccount(c *gin.Context) {
	hint := strings.TrimSpace(c.Query("login_hint"))
	if hint != "" && len(h.cfg.AllowedRegistrationDomains) > 0 &&
		!emailDomainAllowed(hint, h.cfg.AllowedRegistrationDomains) {
		server.PrivateNoStore(c)
		c.Header("Vary", "HX-Request")
		h.log.WithContext(c.Request.Context()).Info("Registration hint rejected", logger.Fields(
			logger.FieldReason, "domain_not_allowed",
		))
		appErr := apperrors.InvalidEmailDomain(hintDomain(hint))
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
		return
	}
	h.startFlow(c, flowRegister, "", oidc.WithAction(oidc.ActionRegister), oidc.WithLoginHint(hint))
}

// Forgot redirects to Keycloak's reset-credentials page.
//
//	GET /auth/forgot?login_hint=alice@school.example
func (h *Handler) Forgot(c *gin.Context) {
	server.PrivateNoStore(c)
	c.Redirect(http.StatusFound, h.client.ResetCredentialsURL(strings.TrimSpace(c.Query("login_hint"))))
}

func (h *Handler) startFlow(c *gin.Context, flow, redirect string, urlOpts ...oidc.AuthURLOption) {
	server.PrivateNoStore(c)
	c.Header("Vary", "HX-Request")
	ctx := c.Request.Context()

	pkce, err := oidc.NewPKCE()
	if err != nil {
		server.AbortWithError(c, apperrors.Internal(err))
		return
	}
	nonce, err := oidc.GenerateNonce()
	if err != nil {
		server.AbortWithError(c, apperrors.Internal(err))
		return
	}

	opts := []state.CreateOption{
		state.WithTTL(h.cfg.StateTTL),
		state.WithNonce(nonce),
		state.WithFlow(flow),
	}
	if redirect != "" {
		opts = append(opts, state.WithRedirect(redirect))
	}
	st, err := h.states.Create(ctx, pkce.CodeVerifier, opts...)
	if err != nil {
		h.log.WithContext(ctx).Error("Storing login state failed", logger.Fields(logger.FieldError, err.Error()))
		server.AbortWithError(c, apperrors.Internal(err))
		return
	}

	target := h.client.BuildAuthorizationURL(st.State, pkce.CodeChallenge, append(urlOpts, oidc.WithNonce(nonce))...)
	h.log.WithContext(ctx).Info("Login started", logger.Fields(
		logger.FieldAttemptID, st.AttemptID,
		"flow", flow,
	))

	if middleware.IsHTMX(c.Request) {
		c.Header("HX-Redirect", target)
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusFound, target)
}

func hintDomain(hint string) string {
	if at := strings.LastIndexByte(hint, '@'); at >= 0 {
		return strings.ToLower(hint[at:])
	}
	return ""
}
