package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campaigndesk/campaigndesk/internal/models"
)

// CampaignMetricsRow is one date range of a PUT /campaign-metrics body.
// The range may be given as key ("last_7_days") or label ("Last 7 days").
type CampaignMetricsRow struct {
	DateRange   string  `json:"date_range" binding:"required"`
	Impressions int64   `json:"impressions"`
	Cost        float64 `json:"cost"`
	Conversions float64 `json:"conversions"`
	CPA         float64 `json:"cpa"`
}

// SaveCampaignMetricsRequest replaces the listed date ranges.
type SaveCampaignMetricsRequest struct {
	Metrics []CampaignMetricsRow `json:"metrics" binding:"required,dive"`
}

func (s *HTTPServer) getCampaignMetrics(c *gin.Context) {
	rows, err := s.console.CampaignMetrics(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": rows})
}

func (s *HTTPServer) saveCampaignMetrics(c *gin.Context) {
	var req SaveCampaignMetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rows := make([]models.CampaignMetrics, 0, len(req.Metrics))
	for _, row := range req.Metrics {
		r, err := models.ParseDateRange(row.DateRange)
		if err != nil {
			s.respondError(c, err)
			return
		}
		rows = append(rows, models.CampaignMetrics{
			DateRange:   r,
			Impressions: row.Impressions,
			Cost:        row.Cost,
			Conversions: row.Conversions,
			CPA:         row.CPA,
		})
	}

	saved, err := s.console.SaveCampaignMetrics(c.Request.Context(), rows)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": saved})
}

func (s *HTTPServer) patchCampaignMetrics(c *gin.Context) {
	var req PatchAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	r, err := models.ParseDateRange(c.Param("range"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	patch, err := models.ParseMetricsPatch(req.Field, req.Value)
	if err != nil {
		s.respondError(c, err)
		return
	}

	row, err := s.console.PatchCampaignMetrics(c.Request.Context(), r, patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": row})
}
