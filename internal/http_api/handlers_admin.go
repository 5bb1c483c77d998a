package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/models"
)

// BanRequest represents the JSON body for banning an address
type BanRequest struct {
	IPAddress string `json:"ip_address" binding:"required"`
	Reason    string `json:"reason"`
}

// SettingsRequest represents the JSON body of the settings form
type SettingsRequest struct {
	ContactEmail string          `json:"contact_email"`
	Currency     models.Currency `json:"currency"`
	CompanyName  string          `json:"company_name"`
}

func (s *HTTPServer) listSessions(c *gin.Context) {
	sessions, err := s.console.ListSessions(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions})
}

func (s *HTTPServer) listBannedIPs(c *gin.Context) {
	bans, err := s.console.ListBannedIPs(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "banned_ips": bans})
}

func (s *HTTPServer) banIP(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	role, _ := c.Get(ctxRole)
	by, _ := role.(guard.Role)

	ban, err := s.console.BanIP(c.Request.Context(), req.IPAddress, req.Reason, string(by))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "banned_ip": ban})
}

func (s *HTTPServer) unbanIP(c *gin.Context) {
	if err := s.console.UnbanIP(c.Request.Context(), c.Param("ip")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) getSettings(c *gin.Context) {
	settings, err := s.console.Settings(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"settings":        settings,
		"currency_symbol": settings.Currency.Symbol(),
	})
}

func (s *HTTPServer) saveSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	settings, err := s.console.SaveSettings(c.Request.Context(), models.AppSettings{
		ContactEmail: req.ContactEmail,
		Currency:     req.Currency,
		CompanyName:  req.CompanyName,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"settings":        settings,
		"currency_symbol": settings.Currency.Symbol(),
	})
}
