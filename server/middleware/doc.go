// Package middleware holds the HTTP middleware stack of the Gustav server.
//
// The server applies, outermost first:
//
//	Recovery -> RequestID -> RequestLogger -> SecurityHeaders -> RateLimit
//
// at the http.Handler level, and Auth followed by CSRF on the gin engine.
// Auth classifies unauthenticated requests as API, HTMX or HTML and answers
// each kind differently; CSRF only inspects state-changing requests that
// carry the session cookie.
package middleware
