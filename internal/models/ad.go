package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AdStatus string

const (
	AdStatusActive AdStatus = "active"
	AdStatusPaused AdStatus = "paused"
	AdStatusEnded  AdStatus = "ended"
)

func (s AdStatus) Valid() bool {
	switch s {
	case AdStatusActive, AdStatusPaused, AdStatusEnded:
		return true
	}
	return false
}

// Ad is a campaign row.
type Ad struct {
	ID     string   `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	Name   string   `json:"name" gorm:"column:name;not null"`
	Status AdStatus `json:"status" gorm:"column:status;not null;default:active;index"`
	// BudgetAmount is the planned spend for BudgetPeriod.
	BudgetAmount float64 `json:"budget_amount" gorm:"column:budget_amount;type:numeric(14,2);not null;default:0"`
	BudgetPeriod string  `json:"budget_period" gorm:"column:budget_period;not null;default:daily"`
	Impressions  int64   `json:"impressions" gorm:"column:impressions;not null;default:0"`
	Clicks       int64   `json:"clicks" gorm:"column:clicks;not null;default:0"`
	// CTR is stored in percent (5.32 for 5.32%).
	CTR float64 `json:"ctr" gorm:"column:ctr;not null;default:0"`
	// Revenue is the spend attributed to the campaign.
	Revenue           float64 `json:"revenue" gorm:"column:revenue;type:numeric(14,2);not null;default:0"`
	Conversions       int64   `json:"conversions" gorm:"column:conversions;not null;default:0"`
	CostPerConversion float64 `json:"cost_per_conversion" gorm:"column:cost_per_conversion;not null;default:0"`
	AssignedUserID    *string `json:"assigned_user_id" gorm:"column:assigned_user_id"`
	AssignedUserName  *string `json:"assigned_user_name" gorm:"column:assigned_user_name"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Ad) TableName() string {
	return "ads"
}

func (a *Ad) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// RecomputeDerived refreshes CTR and CostPerConversion from the raw counters.
func (a *Ad) RecomputeDerived() {
	a.CTR = 0
	if a.Impressions > 0 {
		a.CTR = float64(a.Clicks) / float64(a.Impressions) * 100
	}
	a.CostPerConversion = 0
	if a.Conversions > 0 {
		a.CostPerConversion = a.Revenue / float64(a.Conversions)
	}
}

// AdTotals aggregates every ad.
type AdTotals struct {
	Ads                  int     `json:"ads"`
	Impressions          int64   `json:"impressions"`
	Clicks               int64   `json:"clicks"`
	Revenue              float64 `json:"revenue"`
	Conversions          int64   `json:"conversions"`
	CTR                  float64 `json:"ctr"`
	AvgCPC               float64 `json:"avg_cpc"`
	AvgCostPerConversion float64 `json:"avg_cost_per_conversion"`
}
