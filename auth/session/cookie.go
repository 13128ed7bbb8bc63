package session

import (
	"net/http"
	"time"
)

// Cookie returns the session cookie for id. It is host-only (no Domain),
// Secure, HttpOnly and SameSite=Strict, and lives as long as the session.
func Cookie(name, id string, ttl time.Duration) *http.Cookie {
	if name == "" {
		name = DefaultCookieName
	}
	maxAge := int(ttl / time.Second)
	if maxAge <= 0 {
		// The session is already expired; net/http renders -1 as Max-Age=0.
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie returns a cookie that deletes the session cookie. The
// attributes match Cookie so browsers replace the same entry.
func ClearCookie(name string) *http.Cookie {
	return Cookie(name, "", 0)
}

// IDFromRequest returns the session id carried by the request cookie.
func IDFromRequest(r *http.Request, name string) string {
	if name == "" {
		name = DefaultCookieName
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
