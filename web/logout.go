package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/auth/session"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/server"
	"github.com/gustavlms/gustav/server/middleware"
)

const logoutSuccessPath = "/auth/logout/success"

// Logout deletes the session, clears the cookie and sends the browser to the
// identity provider's end-session endpoint. The IdP returns it to the
// in-app ?redirect= path, or to /auth/logout/success.
//
//	GET|POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	server.PrivateNoStore(c)
	ctx := c.Request.Context()
	log := h.log.WithContext(ctx)

	var idTokenHint string
	if id := session.IDFromRequest(c.Request, h.cfg.CookieName); id != "" {
		sess, err := h.sessions.Get(ctx, id)
		if err != nil {
			log.Warn("Session lookup on logout failed", logger.Fields(logger.FieldError, err.Error()))
		} else if sess != nil {
			idTokenHint = sess.IDToken
			log.Info("Logout", logger.Fields(logger.FieldSubject, sess.Subject))
		}
		if err := h.sessions.Delete(ctx, id); err != nil {
			log.Error("Session delete on logout failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}
	http.SetCookie(c.Writer, session.ClearCookie(h.cfg.CookieName))

	dest := SafeRedirect(c.Query("redirect"))
	if dest == "" {
		dest = logoutSuccessPath
	}
	target := h.client.EndSessionURL(h.cfg.AppBaseURL+dest, idTokenHint)

	if middleware.IsHTMX(c.Request) {
		c.Header("Vary", "HX-Request")
		c.Header("HX-Redirect", target)
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusFound, target)
}

const logoutSuccessPage = `<!DOCTYPE html>
<html lang="de">
<head><meta charset="utf-8"><title>Abgemeldet - GUSTAV</title></head>
<body>
<main>
<h1>Sie wurden abgemeldet.</h1>
<p><a href="/auth/login">Erneut anmelden</a></p>
</main>
</body>
</html>
`

// LogoutSuccess is where the identity provider returns after logout.
//
//	GET /auth/logout/success
func (h *Handler) LogoutSuccess(c *gin.Context) {
	server.PrivateNoStore(c)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(logoutSuccessPage))
}
