package http_api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

const (
	clientCookie    = "campaigndesk_client"
	clientCookieAge = 365 * 24 * 60 * 60

	ctxClientID = "client_id"
	ctxGuard    = "guard"
	ctxRole     = "role"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAny := false
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAny = true
		}
		origins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := origins[origin]; origin != "" && (ok || allowAny) {
			// Cookies need the concrete origin echoed back, never "*".
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// observe times every request by its route template.
func (s *HTTPServer) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.observer == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.observer.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// clientID identifies the browser by a long-lived cookie, issuing one on
// first contact.
func (s *HTTPServer) clientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(clientCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(clientCookie, id, clientCookieAge, "/", "", s.options.CookieSecure, true)
		}
		c.Set(ctxClientID, id)
		c.Next()
	}
}

// rejectBanned answers 403 to clients whose address has an active ban.
// A failing ban lookup lets the request through.
func (s *HTTPServer) rejectBanned() gin.HandlerFunc {
	return func(c *gin.Context) {
		ban, err := s.console.IsBanned(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.logger.Error("Failed to check banned ip", "ip", c.ClientIP(), "error", err)
			c.Next()
			return
		}
		if ban != nil {
			reason := "Access from this address has been blocked"
			if ban.Reason != nil && *ban.Reason != "" {
				reason = *ban.Reason
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "banned",
				"reason":  reason,
			})
			return
		}
		c.Next()
	}
}

// clientGuard returns the guard of the calling client. Only a login keeps
// the guard of a client that has no state yet.
func (s *HTTPServer) clientGuard(c *gin.Context, login bool) (*guard.Guard, bool) {
	if g, ok := c.Get(ctxGuard); ok {
		return g.(*guard.Guard), true
	}
	get := s.guards.Peek
	if login {
		get = s.guards.Get
	}
	g, err := get(c.Request.Context(), c.GetString(ctxClientID))
	if err != nil {
		s.logger.Error("Failed to load client guard", "error", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "session store unavailable",
		})
		return nil, false
	}
	c.Set(ctxGuard, g)
	return g, true
}

// requireRole lets authenticated clients through. With adminOnly, viewers
// get 403.
func (s *HTTPServer) requireRole(adminOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := s.clientGuard(c, false)
		if !ok {
			return
		}
		st := g.Status()
		if !st.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "not logged in",
			})
			return
		}
		if adminOnly && !st.Role.CanEdit() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "read-only access",
			})
			return
		}
		c.Set(ctxRole, st.Role)
		c.Next()
	}
}
