package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/gustavlms/gustav/errors"
)

// Cache-Control values used by the auth surface.
const (
	CacheNoStore        = "no-store"
	CachePrivateNoStore = "private, no-store"
)

// RespondWithError inspects err: if it is an *apperrors.AppError the status and
// {"error": code} body are derived automatically; otherwise a generic 500 is sent.
func RespondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, appErr.ToResponse())
		return
	}
	c.JSON(http.StatusInternalServerError, apperrors.Internal(err).ToResponse())
}

// AbortWithError is RespondWithError followed by abort of the gin chain.
func AbortWithError(c *gin.Context, err error) {
	RespondWithError(c, err)
	c.Abort()
}

// NoStore marks the response as uncacheable.
func NoStore(c *gin.Context) {
	c.Header("Cache-Control", CacheNoStore)
}

// PrivateNoStore marks the response as uncacheable by shared and private caches.
func PrivateNoStore(c *gin.Context) {
	c.Header("Cache-Control", CachePrivateNoStore)
}

// RespondNoContent sends a 204 with no body.
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
