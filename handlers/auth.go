package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaybots/relay/backend/go-services/internal/auth"
	"github.com/relaybots/relay/backend/go-services/pkg/middleware"
)

// LoginRequest is the console credential form
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Authenticator is what the auth routes need from auth.Service
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Login, error)
	Logout(ctx context.Context, token string) error
	Authorize(ctx context.Context, token string) (auth.Identity, error)
}

// AuthHandler holds dependencies
type AuthHandler struct {
	auth         Authenticator
	secureCookie bool
}

func NewAuthHandler(a Authenticator, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: a, secureCookie: secureCookie}
}

// Register routes under /auth. limit runs in front of login only.
func (h *AuthHandler) Register(rg *gin.RouterGroup, limit ...gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", append(limit, h.Login)...)
	a.POST("/logout", middleware.SessionAuth(h.auth), h.Logout)
}

// Login checks credentials and returns a session token, also set as a cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}
	l, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	expiresIn := int(time.Until(l.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.SessionCookie, l.Token, expiresIn, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "token": l.Token, "expires_in": expiresIn, "identity": l.Identity})
}

// Logout revokes the caller's session
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.TokenFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
