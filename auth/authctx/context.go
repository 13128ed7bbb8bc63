// Package authctx carries the authenticated principal through a request.
//
// The auth middleware resolves the session cookie and stores the principal in
// both the request context and the gin context. Downstream handlers only see
// the principal, never the session id or tokens.
//
//	p, ok := authctx.FromContext(r.Context())
//	p := authctx.MustFromGin(c) // panics if missing
package authctx

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
)

// Principal is the identity resolved from a valid session.
type Principal struct {
	Subject     string
	Roles       []string
	DisplayName string
	// ExpiresAt is the expiry of the backing session.
	ExpiresAt time.Time
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// contextKey is an unexported type to prevent collisions with other packages.
type contextKey struct{}

var principalKey = contextKey{}

// GinKey is the gin context key holding the *Principal.
const GinKey = "gustav.principal"

// ErrNoPrincipal is returned when no principal is attached.
var ErrNoPrincipal = errors.New("authctx: no principal in context")

// WithPrincipal stores p in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// MustFromContext panics if no principal is attached.
// Use in handlers that run behind the auth middleware.
func MustFromContext(ctx context.Context) *Principal {
	p, ok := FromContext(ctx)
	if !ok {
		panic("authctx: principal not found in context")
	}
	return p
}

// FromContextOrError returns ErrNoPrincipal when no principal is attached.
func FromContextOrError(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// SetGin stores p on the gin context and on its request context.
func SetGin(c *gin.Context, p *Principal) {
	c.Set(GinKey, p)
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
}

// FromGin returns the principal from the gin context, falling back to the
// request context.
func FromGin(c *gin.Context) (*Principal, bool) {
	if v, ok := c.Get(GinKey); ok {
		if p, ok := v.(*Principal); ok && p != nil {
			return p, true
		}
	}
	return FromContext(c.Request.Context())
}

// MustFromGin panics if no principal is attached.
func MustFromGin(c *gin.Context) *Principal {
	p, ok := FromGin(c)
	if !ok {
		panic("authctx: principal not found in gin context")
	}
	return p
}
