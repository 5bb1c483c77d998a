package http_api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campaigndesk/campaigndesk/internal/models"
)

// CreateAdRequest represents the JSON body for a new ad
type CreateAdRequest struct {
	Name             string          `json:"name" binding:"required"`
	Status           models.AdStatus `json:"status"`
	BudgetAmount     float64         `json:"budget_amount"`
	BudgetPeriod     string          `json:"budget_period"`
	Impressions      int64           `json:"impressions"`
	Clicks           int64           `json:"clicks"`
	Revenue          float64         `json:"revenue"`
	Conversions      int64           `json:"conversions"`
	AssignedUserID   *string         `json:"assigned_user_id"`
	AssignedUserName *string         `json:"assigned_user_name"`
}

// PatchAdRequest edits one field of an ad, e.g. {"field":"clicks","value":120}
type PatchAdRequest struct {
	Field string          `json:"field" binding:"required"`
	Value json.RawMessage `json:"value" binding:"required"`
}

// EditAggregateRequest sets a new total for one metric across all ads
type EditAggregateRequest struct {
	Total *float64 `json:"total" binding:"required"`
}

func (s *HTTPServer) listAds(c *gin.Context) {
	ads, err := s.console.ListAds(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ads": ads})
}

func (s *HTTPServer) getAd(c *gin.Context) {
	ad, err := s.console.GetAd(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ad": ad})
}

func (s *HTTPServer) createAd(c *gin.Context) {
	var req CreateAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ad, err := s.console.CreateAd(c.Request.Context(), &models.Ad{
		Name:             req.Name,
		Status:           req.Status,
		BudgetAmount:     req.BudgetAmount,
		BudgetPeriod:     req.BudgetPeriod,
		Impressions:      req.Impressions,
		Clicks:           req.Clicks,
		Revenue:          req.Revenue,
		Conversions:      req.Conversions,
		AssignedUserID:   req.AssignedUserID,
		AssignedUserName: req.AssignedUserName,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "ad": ad})
}

func (s *HTTPServer) patchAd(c *gin.Context) {
	var req PatchAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	patch, err := models.ParseAdPatch(req.Field, req.Value)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ad, err := s.console.PatchAd(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ad": ad})
}

func (s *HTTPServer) toggleAd(c *gin.Context) {
	ad, err := s.console.ToggleAdStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ad": ad})
}

func (s *HTTPServer) deleteAd(c *gin.Context) {
	if err := s.console.DeleteAd(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) adTotals(c *gin.Context) {
	totals, err := s.console.Totals(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "totals": totals})
}

// editAggregate redistributes a new metric total across all ads. A partial
// failure answers 502 with the per-ad outcome.
func (s *HTTPServer) editAggregate(c *gin.Context) {
	metric, err := models.ParseAggregateMetric(c.Param("metric"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	var req EditAggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: total is required")
		return
	}

	result, err := s.console.EditAggregate(c.Request.Context(), metric, *req.Total)
	if errors.Is(err, models.ErrPartialUpdate) && result != nil {
		s.logger.Warn("Aggregate edit partially applied", "metric", metric, "failed", result.Failed)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "some ads could not be updated, please retry",
			"result":  result,
		})
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (s *HTTPServer) exportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.console.ExportCSV(c.Request.Context(), &buf); err != nil {
		s.respondError(c, err)
		return
	}
	name := fmt.Sprintf("Campaign_%s.csv", time.Now().UTC().Format("2006-01-02_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *HTTPServer) receipt(c *gin.Context) {
	var buf bytes.Buffer
	invoice, err := s.console.Receipt(c.Request.Context(), &buf)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", invoice+".txt"))
	c.Header("X-Invoice-Number", invoice)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}
