package http_api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campaigndesk/campaigndesk/internal/models"
)

// PatchBillingRequest sets available funds and/or records the last payment.
// At least one of the two must be present.
type PatchBillingRequest struct {
	AvailableFunds *float64 `json:"available_funds"`
	LastPayment    *struct {
		Amount float64    `json:"amount"`
		Date   *time.Time `json:"date"`
	} `json:"last_payment"`
}

// StatementRequest represents the JSON body of a monthly statement
type StatementRequest struct {
	Month             int     `json:"month" binding:"required"`
	Year              int     `json:"year" binding:"required"`
	NetCost           float64 `json:"net_cost"`
	Payments          float64 `json:"payments"`
	FundsFromPrevious float64 `json:"funds_from_previous"`
	Campaigns         float64 `json:"campaigns"`
	Adjustments       float64 `json:"adjustments"`
	TaxesAndFees      float64 `json:"taxes_and_fees"`
	EndingBalance     float64 `json:"ending_balance"`
}

func (r StatementRequest) statement() *models.MonthlyStatement {
	return &models.MonthlyStatement{
		Month:             r.Month,
		Year:              r.Year,
		NetCost:           r.NetCost,
		Payments:          r.Payments,
		FundsFromPrevious: r.FundsFromPrevious,
		Campaigns:         r.Campaigns,
		Adjustments:       r.Adjustments,
		TaxesAndFees:      r.TaxesAndFees,
		EndingBalance:     r.EndingBalance,
	}
}

func (s *HTTPServer) billingSummary(c *gin.Context) {
	account, err := s.console.BillingSummary(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "billing": account})
}

func (s *HTTPServer) patchBilling(c *gin.Context) {
	var req PatchBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var patches []models.BillingPatch
	if req.AvailableFunds != nil {
		patches = append(patches, models.SetAvailableFunds{Amount: *req.AvailableFunds})
	}
	if req.LastPayment != nil {
		patches = append(patches, models.SetLastPayment{Amount: req.LastPayment.Amount, Date: req.LastPayment.Date})
	}
	if len(patches) == 0 {
		badRequest(c, "Invalid request body: available_funds or last_payment is required")
		return
	}

	var account *models.BillingAccount
	for _, p := range patches {
		var err error
		if account, err = s.console.PatchBilling(c.Request.Context(), p); err != nil {
			s.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "billing": account})
}

func (s *HTTPServer) listStatements(c *gin.Context) {
	statements, err := s.console.ListStatements(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "months": statements})
}

func (s *HTTPServer) createStatement(c *gin.Context) {
	var req StatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	st, err := s.console.CreateStatement(c.Request.Context(), req.statement())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "month": st})
}

func (s *HTTPServer) updateStatement(c *gin.Context) {
	var req StatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	st, err := s.console.UpdateStatement(c.Request.Context(), c.Param("id"), req.statement())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "month": st})
}

func (s *HTTPServer) deleteStatement(c *gin.Context) {
	if err := s.console.DeleteStatement(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
