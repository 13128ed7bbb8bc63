package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
)

// Recovery converts a handler panic into a 500 {"error":"internal_error"}
// and logs the stack.
func Recovery(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("recovery")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithContext(r.Context()).Error("Panic recovered", map[string]interface{}{
					logger.FieldError:  fmt.Sprintf("%v", rec),
					"stack":            string(debug.Stack()),
					logger.FieldPath:   r.URL.Path,
					logger.FieldMethod: r.Method,
				})
				w.Header().Set("Cache-Control", "no-store")
				writeError(w, apperrors.Internal(nil))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
