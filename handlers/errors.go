package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaybots/relay/backend/go-services/internal/auth"
	"github.com/relaybots/relay/backend/go-services/internal/console"
	"github.com/relaybots/relay/backend/go-services/internal/guard"
	"github.com/relaybots/relay/backend/go-services/internal/store"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
)

// respondError maps typed core errors to a status code and the console error body.
func respondError(c *gin.Context, err error) {
	var (
		ae *auth.AuthError
		ve *store.ValidationError
		le *guard.LockTimeoutError
		ce *store.CorruptStoreError
	)
	switch {
	case errors.As(err, &ae):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": ae.Reason, "code": "unauthorized"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": ve.Error(), "field": ve.Field, "code": "validation"})
	case errors.As(err, &le):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "store is busy, try again", "code": "lock_timeout"})
	case errors.As(err, &ce):
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "store is corrupt", "code": "corrupt_store"})
	case errors.Is(err, console.ErrBackupUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error(), "code": "backup_unavailable"})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error", "code": "internal"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg, "code": "bad_request"})
}
