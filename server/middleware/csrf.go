package middleware

import (
	"net/http"

	"github.com/gustavlms/gustav/auth/csrf"
	"github.com/gustavlms/gustav/auth/session"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/observability"
)

// HeaderCSRFReason carries the machine-readable rejection reason.
const HeaderCSRFReason = "X-CSRF-Reason"

// CSRFConfig configures the CSRF middleware.
type CSRFConfig struct {
	Guard *csrf.Guard
	// CookieName is the session cookie. Requests without it carry no ambient
	// credential and are not checked.
	CookieName string
	Log        *logger.Logger
	Metrics    *observability.AuthMetrics
}

// CSRF rejects cookie-authenticated state-changing requests that fail the
// same-origin check with 403 {"detail":"csrf_violation"}.
func CSRF(cfg CSRFConfig) Middleware {
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("csrf")
	if cfg.CookieName == "" {
		cfg.CookieName = session.DefaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !csrf.RequiresCheck(r.Method) || !hasCookie(r, cfg.CookieName) {
				next.ServeHTTP(w, r)
				return
			}
			err := cfg.Guard.Check(r)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			reason := csrf.Reason(err)
			log.WithContext(r.Context()).Warn("Cross-site request rejected", map[string]interface{}{
				logger.FieldReason: reason,
				logger.FieldMethod: r.Method,
				logger.FieldPath:   r.URL.Path,
			})
			cfg.Metrics.RecordCSRFRejection(r.Context(), reason)

			h := w.Header()
			h.Set("Cache-Control", "no-store")
			h.Add("Vary", "Origin")
			h.Set(HeaderCSRFReason, reason)
			appErr, ok := apperrors.AsAppError(err)
			if !ok {
				appErr = apperrors.CSRFViolation(reason)
			}
			writeJSON(w, appErr.HTTPStatus, appErr.ToDetailResponse())
		})
	}
}

func hasCookie(r *http.Request, name string) bool {
	_, err := r.Cookie(name)
	return err == nil
}
