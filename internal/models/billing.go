package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingAccount is the single billing summary row.
type BillingAccount struct {
	ID                string     `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	AvailableFunds    float64    `json:"available_funds" gorm:"column:available_funds;type:numeric(14,2);not null;default:0"`
	LastPaymentAmount float64    `json:"last_payment_amount" gorm:"column:last_payment_amount;type:numeric(14,2);not null;default:0"`
	LastPaymentDate   *time.Time `json:"last_payment_date" gorm:"column:last_payment_date"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (BillingAccount) TableName() string {
	return "billing_accounts"
}

func (b *BillingAccount) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// MonthlyStatement is one month of the billing history.
type MonthlyStatement struct {
	ID                string    `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	Month             int       `json:"month" gorm:"column:month;not null;uniqueIndex:idx_statement_period"`
	Year              int       `json:"year" gorm:"column:year;not null;uniqueIndex:idx_statement_period"`
	NetCost           float64   `json:"net_cost" gorm:"column:net_cost;type:numeric(14,2);not null;default:0"`
	Payments          float64   `json:"payments" gorm:"column:payments;type:numeric(14,2);not null;default:0"`
	FundsFromPrevious float64   `json:"funds_from_previous" gorm:"column:funds_from_previous;type:numeric(14,2);not null;default:0"`
	Campaigns         float64   `json:"campaigns" gorm:"column:campaigns;type:numeric(14,2);not null;default:0"`
	Adjustments       float64   `json:"adjustments" gorm:"column:adjustments;type:numeric(14,2);not null;default:0"`
	TaxesAndFees      float64   `json:"taxes_and_fees" gorm:"column:taxes_and_fees;type:numeric(14,2);not null;default:0"`
	EndingBalance     float64   `json:"ending_balance" gorm:"column:ending_balance;type:numeric(14,2);not null;default:0"`
	CreatedAt         time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (MonthlyStatement) TableName() string {
	return "monthly_statements"
}

func (m *MonthlyStatement) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
