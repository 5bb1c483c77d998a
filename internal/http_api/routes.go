package http_api

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.healthz)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.router.Group("/api/v1", s.clientID(), s.rejectBanned())

	auth := api.Group("/auth")
	auth.POST("/login", s.login)
	auth.GET("/status", s.status)
	auth.POST("/logout", s.requireRole(false), s.logout)

	viewer := api.Group("", s.requireRole(false))
	admin := api.Group("", s.requireRole(true))

	viewer.GET("/ads", s.listAds)
	viewer.GET("/ads/totals", s.adTotals)
	viewer.GET("/ads/export.csv", s.exportCSV)
	viewer.GET("/ads/receipt", s.receipt)
	viewer.GET("/ads/:id", s.getAd)
	admin.POST("/ads", s.createAd)
	admin.PATCH("/ads/:id", s.patchAd)
	admin.POST("/ads/:id/toggle", s.toggleAd)
	admin.DELETE("/ads/:id", s.deleteAd)
	admin.PUT("/ads/totals/:metric", s.editAggregate)

	viewer.GET("/billing", s.billingSummary)
	admin.PATCH("/billing", s.patchBilling)
	viewer.GET("/billing/months", s.listStatements)
	admin.POST("/billing/months", s.createStatement)
	admin.PUT("/billing/months/:id", s.updateStatement)
	admin.DELETE("/billing/months/:id", s.deleteStatement)

	admin.GET("/sessions", s.listSessions)
	admin.GET("/banned-ips", s.listBannedIPs)
	admin.POST("/banned-ips", s.banIP)
	admin.DELETE("/banned-ips/:ip", s.unbanIP)

	viewer.GET("/settings", s.getSettings)
	admin.PUT("/settings", s.saveSettings)

	viewer.GET("/campaign-metrics", s.getCampaignMetrics)
	admin.PUT("/campaign-metrics", s.saveCampaignMetrics)
	admin.PATCH("/campaign-metrics/:range", s.patchCampaignMetrics)

	viewer.GET("/changes", s.changes)
}
