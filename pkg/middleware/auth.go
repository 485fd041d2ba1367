package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/relaybots/relay/backend/go-services/internal/auth"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
)

const (
	// SessionCookie carries the session token for browser clients.
	SessionCookie = "relay_session"

	identityKey = "identity"
	tokenKey    = "session_token"
)

// Authorizer is the minimal interface the middleware depends on
type Authorizer interface {
	Authorize(ctx context.Context, token string) (auth.Identity, error)
}

// SessionToken extracts the token from "Authorization: Bearer <token>" or the
// session cookie. The header wins when both are present.
func SessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(tok)
	}
	if ck, err := c.Cookie(SessionCookie); err == nil {
		return ck
	}
	return ""
}

// SessionAuth returns a Gin middleware that resolves the session token into an
// identity and rejects the request with 401 otherwise
func SessionAuth(az Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required", "code": "unauthorized"})
			return
		}
		id, err := az.Authorize(c.Request.Context(), token)
		if err != nil {
			var ae *auth.AuthError
			if errors.As(err, &ae) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": ae.Reason, "code": "unauthorized"})
				return
			}
			logger.Errorf("session lookup failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "session lookup failed", "code": "internal"})
			return
		}
		c.Set(identityKey, id)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// IdentityFrom returns the identity set by SessionAuth, or the zero Identity.
func IdentityFrom(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return ""
}

// TokenFrom returns the session token accepted by SessionAuth.
func TokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// rateKey prefers the authenticated identity (NAT-friendly) over the client IP.
func rateKey(c *gin.Context) string {
	if id := IdentityFrom(c); id.Valid() {
		return "id:" + string(id)
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
