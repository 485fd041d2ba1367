package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the console API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>relay-console - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Every route except login, health, ready, metrics and swagger needs a session
// (Authorization: Bearer <token> or the relay_session cookie).
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "relay-console", "version": "v1.0.0" },
  "components": { "securitySchemes": { "session": { "type": "http", "scheme": "bearer" } } },
  "security": [ { "session": [] } ],
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Log in with a console account",
        "security": [],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["username","password"],"properties":{"username":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "token, expires_in, identity" }, "401": { "description": "invalid credentials" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the current session", "responses": { "200": { "description": "logged out" }, "401": { "description": "no session" } } }
    },
    "/api/summary": { "get": { "summary": "User, device and message counts", "responses": { "200": { "description": "counts" } } } },
    "/api/users": { "get": { "summary": "All users", "responses": { "200": { "description": "user list" } } } },
    "/api/devices": { "get": { "summary": "All devices", "responses": { "200": { "description": "device list" } } } },
    "/api/messages": { "get": { "summary": "Full message log", "responses": { "200": { "description": "message list" } } } },
    "/messages": {
      "get": {
        "summary": "One page of 20 messages",
        "parameters": [ { "name": "page", "in": "query", "schema": { "type": "integer", "minimum": 1 } } ],
        "responses": { "200": { "description": "messages, page, total_pages, per_page" } }
      }
    },
    "/settings": {
      "get": { "summary": "Current settings", "responses": { "200": { "description": "settings object" } } },
      "post": {
        "summary": "Replace settings",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","additionalProperties":{"type":"string"}}}}},
        "responses": { "200": { "description": "saved" }, "400": { "description": "invalid settings" }, "503": { "description": "store busy" } }
      }
    },
    "/api/send_message": {
      "post": {
        "summary": "Send a message to a chat and record it",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["chat_id","text"],"properties":{"chat_id":{"oneOf":[{"type":"string"},{"type":"integer"}]},"text":{"type":"string","maxLength":4096}}}}}},
        "responses": { "200": { "description": "sent" }, "400": { "description": "validation error" }, "503": { "description": "store busy" } }
      }
    },
    "/api/backup": {
      "post": { "summary": "Upload a store snapshot to object storage", "responses": { "200": { "description": "object key" }, "503": { "description": "object storage not configured" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
