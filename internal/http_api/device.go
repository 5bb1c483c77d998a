package http_api

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mssola/useragent"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

// lookupTimeout caps how long a login waits for the location lookup.
const lookupTimeout = 2 * time.Second

// device describes the calling client. The location is filled in on a best
// effort basis and left empty when the lookup fails.
func (s *HTTPServer) device(c *gin.Context) guard.DeviceInfo {
	raw := c.Request.UserAgent()
	d := parseUserAgent(raw)
	d.IPAddress = c.ClientIP()

	if s.locator == nil {
		return d
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), lookupTimeout)
	defer cancel()
	loc, err := s.locator.Lookup(ctx, d.IPAddress)
	if err != nil {
		s.logger.Debug("Location lookup failed", "ip", d.IPAddress, "error", err)
		return d
	}
	d.Country = loc.Country
	d.City = loc.City
	d.Latitude = loc.Latitude
	d.Longitude = loc.Longitude
	return d
}

func parseUserAgent(raw string) guard.DeviceInfo {
	d := guard.DeviceInfo{UserAgent: raw}
	if raw == "" {
		return d
	}
	ua := useragent.New(raw)
	d.BrowserName, _ = ua.Browser()
	d.OSName = ua.OSInfo().Name

	switch lower := strings.ToLower(raw); {
	case ua.Bot():
		d.DeviceType = "bot"
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		d.DeviceType = "tablet"
	case ua.Mobile():
		d.DeviceType = "mobile"
	default:
		d.DeviceType = "desktop"
	}
	return d
}
