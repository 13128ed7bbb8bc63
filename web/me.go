package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/auth/authctx"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/server"
)

// MeResponse is the body of GET /api/me.
type MeResponse struct {
	Subject   string   `json:"sub"`
	Roles     []string `json:"roles"`
	Name      string   `json:"name"`
	ExpiresAt string   `json:"expires_at"`
}

// Me returns the current principal.
//
//	GET /api/me
func (h *Handler) Me(c *gin.Context) {
	server.NoStore(c)
	p, ok := authctx.FromGin(c)
	if !ok {
		server.AbortWithError(c, apperrors.Unauthenticated(""))
		return
	}
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, MeResponse{
		Subject:   p.Subject,
		Roles:     roles,
		Name:      p.DisplayName,
		ExpiresAt: p.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
