package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/auth/authctx"
	"github.com/gustavlms/gustav/auth/session"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
)

// RequestKind is how an unauthenticated request is answered.
type RequestKind int

const (
	// KindHTML is a browser navigation: 302 to the login page.
	KindHTML RequestKind = iota
	// KindAPI is a JSON client: 401 {"error":"unauthenticated"}.
	KindAPI
	// KindHTMX is an HTMX partial request: 401 with HX-Redirect.
	KindHTMX
)

func (k RequestKind) String() string {
	switch k {
	case KindAPI:
		return "api"
	case KindHTMX:
		return "htmx"
	default:
		return "html"
	}
}

// Classify sorts a request into API, HTMX or HTML. API wins over HTMX.
func Classify(r *http.Request) RequestKind {
	path := r.URL.Path
	if path == "/api" || strings.HasPrefix(path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json") {
		return KindAPI
	}
	if IsHTMX(r) {
		return KindHTMX
	}
	return KindHTML
}

// IsHTMX reports whether the request carries the HTMX marker header.
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("HX-Request"), "true")
}

// AuthConfig configures the session authentication middleware.
type AuthConfig struct {
	Sessions session.Store
	// CookieName defaults to session.DefaultCookieName.
	CookieName string
	// LoginPath defaults to /auth/login.
	LoginPath string
	// PublicPrefixes bypass authentication (default /auth/ and /static/).
	PublicPrefixes []string
	// PublicPaths are exact paths that bypass authentication
	// (default /auth, /health and /favicon.ico).
	PublicPaths []string
	Log         *logger.Logger
}

func (cfg *AuthConfig) applyDefaults() {
	if cfg.CookieName == "" {
		cfg.CookieName = session.DefaultCookieName
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	if cfg.PublicPrefixes == nil {
		cfg.PublicPrefixes = []string{"/auth/", "/static/"}
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = []string{"/auth", "/health", "/favicon.ico"}
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
}

func (cfg *AuthConfig) isPublic(path string) bool {
	for _, p := range cfg.PublicPaths {
		if path == p {
			return true
		}
	}
	for _, p := range cfg.PublicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Auth resolves the session cookie and attaches the principal to the gin and
// request contexts. Requests without a valid session are classified and
// rejected; expired sessions count as absent.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	cfg.applyDefaults()
	log := cfg.Log.WithComponent("auth")

	return func(c *gin.Context) {
		if cfg.isPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		id := session.IDFromRequest(c.Request, cfg.CookieName)
		if id == "" {
			rejectUnauthenticated(c, cfg.LoginPath, apperrors.Unauthenticated(""))
			return
		}
		sess, err := cfg.Sessions.Get(c.Request.Context(), id)
		if err != nil {
			log.WithContext(c.Request.Context()).Error("Session lookup failed", map[string]interface{}{
				logger.FieldError: err.Error(),
				logger.FieldPath:  c.Request.URL.Path,
			})
			c.Header("Cache-Control", "no-store")
			c.AbortWithStatusJSON(http.StatusInternalServerError, apperrors.Internal(err).ToResponse())
			return
		}
		if sess == nil {
			// Stale cookie: drop it so the browser stops sending it.
			log.WithContext(c.Request.Context()).Debug("Session not found or expired", map[string]interface{}{
				logger.FieldReason: string(apperrors.ErrCodeSessionNotFound),
				logger.FieldPath:   c.Request.URL.Path,
			})
			http.SetCookie(c.Writer, session.ClearCookie(cfg.CookieName))
			rejectUnauthenticated(c, cfg.LoginPath, apperrors.SessionNotFound())
			return
		}

		authctx.SetGin(c, &authctx.Principal{
			Subject:     sess.Subject,
			Roles:       sess.Roles,
			DisplayName: sess.DisplayName,
			ExpiresAt:   sess.ExpiresAt,
		})
		c.Next()
	}
}

// rejectUnauthenticated answers by request kind. API clients get the public
// code of appErr, so session_not_found renders as unauthenticated.
func rejectUnauthenticated(c *gin.Context, loginPath string, appErr *apperrors.AppError) {
	c.Header("Cache-Control", "no-store")
	switch Classify(c.Request) {
	case KindAPI:
		c.AbortWithStatusJSON(http.StatusUnauthorized, appErr.ToResponse())
	case KindHTMX:
		c.Header("HX-Redirect", loginPath)
		c.Header("Vary", "HX-Request")
		c.AbortWithStatus(http.StatusUnauthorized)
	default:
		c.Header("Location", LoginRedirect(loginPath, c.Request.URL))
		c.AbortWithStatus(http.StatusFound)
	}
}

// LoginRedirect is the login URL preserving the originally requested path.
// The root path is not preserved.
func LoginRedirect(loginPath string, u *url.URL) string {
	target := u.EscapedPath()
	if target == "" || target == "/" {
		return loginPath
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return loginPath + "?" + url.Values{"redirect": {target}}.Encode()
}
