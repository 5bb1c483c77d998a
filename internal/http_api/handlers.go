package http_api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthTimeout   = 2 * time.Second
	changeBuffer    = 16
	changeKeepAlive = 25 * time.Second
)

// LoginRequest represents the JSON body of a login attempt
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// login checks the submitted secret against the admin and viewer secrets.
func (s *HTTPServer) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		badRequest(c, "Invalid request body: password is required")
		return
	}

	g, ok := s.clientGuard(c, true)
	if !ok {
		return
	}
	role, err := g.AttemptLogin(c.Request.Context(), req.Password, s.device(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"role":    role,
		"status":  g.Status(),
	})
}

func (s *HTTPServer) logout(c *gin.Context) {
	g, ok := s.clientGuard(c, false)
	if !ok {
		return
	}
	g.Logout(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// status reports whether the client is logged in and, while locked out,
// how long it has to wait.
func (s *HTTPServer) status(c *gin.Context) {
	g, ok := s.clientGuard(c, false)
	if !ok {
		return
	}
	st := g.Status()
	body := gin.H{
		"success": true,
		"status":  st,
	}
	if st.Locked {
		body["retry_after_seconds"] = int64(st.Remaining.Round(time.Second).Seconds())
	}
	c.JSON(http.StatusOK, body)
}

func (s *HTTPServer) healthz(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("Health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// changes streams table change events as Server-Sent Events until the
// client goes away. Clients re-fetch the named table on every event.
func (s *HTTPServer) changes(c *gin.Context) {
	if s.feed == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"success": false,
			"error":   "change feed disabled",
		})
		return
	}

	events, cancel := s.feed.Subscribe(changeBuffer)
	defer cancel()

	keepAlive := time.NewTicker(changeKeepAlive)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("change", ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
