package models

import "time"

// Currency is an ISO 4217 code the console can display amounts in.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyPKR Currency = "PKR"
	CurrencyBDT Currency = "BDT"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var currencySymbols = map[Currency]string{
	CurrencyINR: "₹",
	CurrencyPKR: "₨",
	CurrencyBDT: "৳",
	CurrencyUSD: "$",
	CurrencyEUR: "€",
	CurrencyGBP: "£",
}

func (c Currency) Valid() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display symbol, or the code itself for unknown
// currencies.
func (c Currency) Symbol() string {
	if s, ok := currencySymbols[c]; ok {
		return s
	}
	return string(c)
}

// AppSettings is the single settings row. ID is always 1.
type AppSettings struct {
	ID           int64     `json:"-" gorm:"column:id;primaryKey"`
	ContactEmail string    `json:"contact_email" gorm:"column:contact_email;not null;default:''"`
	Currency     Currency  `json:"currency" gorm:"column:currency;not null;default:INR"`
	CompanyName  string    `json:"company_name" gorm:"column:company_name;not null;default:''"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (AppSettings) TableName() string {
	return "app_settings"
}

// DefaultSettings is what a fresh install starts with.
func DefaultSettings() AppSettings {
	return AppSettings{ID: 1, Currency: CurrencyINR}
}
