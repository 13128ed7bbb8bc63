package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/auth/oidc"
	"github.com/gustavlms/gustav/auth/session"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/server"
)

// Callback completes the login: redeem state, exchange the code, verify the
// ID token and its nonce, create the session and set the cookie. Every
// failure is a 400 {"error": code} and leaves no session behind.
//
//	GET /auth/callback?code=...&state=...
func (h *Handler) Callback(c *gin.Context) {
	server.PrivateNoStore(c)
	ctx := c.Request.Context()
	code, stateValue := c.Query("code"), c.Query("state")

	if code == "" || stateValue == "" {
		if stateValue != "" {
			// Burn the attempt so an IdP error redirect cannot be replayed.
			_, _ = h.states.PopValid(ctx, stateValue)
		}
		reason := "missing code or state"
		if idpErr := c.Query("error"); idpErr != "" {
			reason = "identity provider returned " + idpErr
		}
		h.fail(c, "", apperrors.InvalidRequest(reason))
		return
	}

	st, err := h.states.PopValid(ctx, stateValue)
	if err != nil {
		h.fail(c, "", apperrors.Internal(err))
		return
	}
	if st == nil {
		h.fail(c, "", apperrors.StateNotFound())
		return
	}

	tokens, err := h.client.ExchangeCodeForTokens(ctx, code, st.CodeVerifier)
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrCodeTokenExchangeFailed) {
			err = apperrors.TokenExchangeFailed(0, "", "").WithCause(err)
		}
		h.fail(c, st.AttemptID, err)
		return
	}

	claims, err := h.verifier.VerifyIDToken(ctx, tokens.IDToken)
	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			err = apperrors.InvalidIDToken("invalid").WithCause(err)
		}
		h.fail(c, st.AttemptID, err)
		return
	}
	if err := oidc.CheckNonce(claims, st.Nonce); err != nil {
		h.fail(c, st.AttemptID, err)
		return
	}

	sess, err := h.sessions.Create(ctx, session.NewSession{
		Subject:       claims.Subject,
		Roles:         claims.Roles(),
		DisplayName:   claims.DisplayName(),
		EmailVerified: claims.IsEmailVerified(),
		IDToken:       tokens.IDToken,
		TTL:           h.cfg.SessionTTL,
	})
	if err != nil {
		h.fail(c, st.AttemptID, apperrors.Internal(err))
		return
	}

	flow := st.Flow
	if flow == "" {
		flow = flowLogin
	}
	h.metrics.RecordLogin(ctx, flow)
	h.log.WithContext(ctx).Info("Login completed", logger.Fields(
		logger.FieldAttemptID, st.AttemptID,
		logger.FieldSubject, sess.Subject,
		"roles", sess.Roles,
		"flow", flow,
	))

	http.SetCookie(c.Writer, session.Cookie(h.cfg.CookieName, sess.ID, h.cfg.SessionTTL))
	redirect := SafeRedirect(st.Redirect)
	if redirect == "" {
		redirect = "/"
	}
	c.Redirect(http.StatusFound, redirect)
}
