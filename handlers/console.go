package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/relaybots/relay/backend/go-services/internal/console"
	"github.com/relaybots/relay/backend/go-services/pkg/middleware"
)

// ConsoleHandler exposes the console service over HTTP
type ConsoleHandler struct {
	svc *console.Service
}

func NewConsoleHandler(svc *console.Service) *ConsoleHandler {
	return &ConsoleHandler{svc: svc}
}

// Register mounts the console routes on rg, gated by authz.
func (h *ConsoleHandler) Register(rg *gin.RouterGroup, authz middleware.Authorizer, extra ...gin.HandlerFunc) {
	g := rg.Group("/")
	g.Use(middleware.SessionAuth(authz))
	g.Use(extra...)

	g.GET("/api/summary", h.Summary)
	g.GET("/api/users", h.Users)
	g.GET("/api/devices", h.Devices)
	g.GET("/api/messages", h.Messages)
	g.GET("/messages", h.MessagesPage)
	g.GET("/settings", h.Settings)
	g.POST("/settings", h.UpdateSettings)
	g.POST("/api/send_message", h.SendMessage)
	g.POST("/api/backup", h.Backup)
}

func (h *ConsoleHandler) Summary(c *gin.Context) {
	s, err := h.svc.Summary()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *ConsoleHandler) Users(c *gin.Context) {
	users, err := h.svc.ListUsers()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *ConsoleHandler) Devices(c *gin.Context) {
	devices, err := h.svc.ListDevices()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *ConsoleHandler) Messages(c *gin.Context) {
	msgs, err := h.svc.ListMessages()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// MessagesPage serves ?page=N. Missing or non-numeric pages mean page 1.
func (h *ConsoleHandler) MessagesPage(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	p, err := h.svc.MessagesPage(page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": p.Messages, "page": p.Page, "total_pages": p.TotalPages, "per_page": p.PerPage, "total": p.Total})
}

func (h *ConsoleHandler) Settings(c *gin.Context) {
	s, err := h.svc.Settings()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSettings replaces the whole settings object with the JSON body.
func (h *ConsoleHandler) UpdateSettings(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "settings must be a JSON object of strings")
		return
	}
	if err := h.svc.UpdateSettings(c.Request.Context(), middleware.IdentityFrom(c), body); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ConsoleHandler) SendMessage(c *gin.Context) {
	var req console.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body must be {\"chat_id\": ..., \"text\": ...}")
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), middleware.IdentityFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *ConsoleHandler) Backup(c *gin.Context) {
	key, err := h.svc.Backup(c.Request.Context(), middleware.IdentityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
}
