package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid value")
)

// AdPatch is a single-field edit of an ad. The set of patches is closed;
// ParseAdPatch is the only way to build one from untrusted input.
type AdPatch interface {
	// Field is the column the patch targets.
	Field() string
	Validate() error
	// apply mutates ad and returns the columns to write.
	apply(ad *Ad) map[string]interface{}
}

type SetName struct{ Name string }
type SetStatus struct{ Status AdStatus }
type SetBudget struct {
	Amount float64
	Period string
}
type SetImpressions struct{ Value int64 }
type SetClicks struct{ Value int64 }
type SetRevenue struct{ Value float64 }
type SetConversions struct{ Value int64 }
type SetAssignee struct {
	UserID   *string
	UserName *string
}

func (SetName) Field() string        { return "name" }
func (SetStatus) Field() string      { return "status" }
func (SetBudget) Field() string      { return "budget_amount" }
func (SetImpressions) Field() string { return "impressions" }
func (SetClicks) Field() string      { return "clicks" }
func (SetRevenue) Field() string     { return "revenue" }
func (SetConversions) Field() string { return "conversions" }
func (SetAssignee) Field() string    { return "assigned_user" }

func (p SetName) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidValue)
	}
	return nil
}

func (p SetStatus) Validate() error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidValue, p.Status)
	}
	return nil
}

func (p SetBudget) Validate() error {
	if !validMoney(p.Amount) {
		return fmt.Errorf("%w: budget %v", ErrInvalidValue, p.Amount)
	}
	switch p.Period {
	case "", "daily", "weekly", "monthly", "total":
		return nil
	}
	return fmt.Errorf("%w: budget period %q", ErrInvalidValue, p.Period)
}

func (p SetImpressions) Validate() error { return validCount("impressions", p.Value) }
func (p SetClicks) Validate() error      { return validCount("clicks", p.Value) }
func (p SetConversions) Validate() error { return validCount("conversions", p.Value) }

func (p SetRevenue) Validate() error {
	if !validMoney(p.Value) {
		return fmt.Errorf("%w: revenue %v", ErrInvalidValue, p.Value)
	}
	return nil
}

func (p SetAssignee) Validate() error {
	if p.UserName != nil && strings.TrimSpace(*p.UserName) == "" {
		return fmt.Errorf("%w: assignee name must not be blank", ErrInvalidValue)
	}
	return nil
}

func (p SetName) apply(ad *Ad) map[string]interface{} {
	ad.Name = strings.TrimSpace(p.Name)
	return map[string]interface{}{"name": ad.Name}
}

func (p SetStatus) apply(ad *Ad) map[string]interface{} {
	ad.Status = p.Status
	return map[string]interface{}{"status": ad.Status}
}

func (p SetBudget) apply(ad *Ad) map[string]interface{} {
	ad.BudgetAmount = p.Amount
	fields := map[string]interface{}{"budget_amount": ad.BudgetAmount}
	if p.Period != "" {
		ad.BudgetPeriod = p.Period
		fields["budget_period"] = ad.BudgetPeriod
	}
	return fields
}

func (p SetImpressions) apply(ad *Ad) map[string]interface{} {
	ad.Impressions = p.Value
	return map[string]interface{}{"impressions": ad.Impressions}
}

func (p SetClicks) apply(ad *Ad) map[string]interface{} {
	ad.Clicks = p.Value
	return map[string]interface{}{"clicks": ad.Clicks}
}

func (p SetRevenue) apply(ad *Ad) map[string]interface{} {
	ad.Revenue = p.Value
	return map[string]interface{}{"revenue": ad.Revenue}
}

func (p SetConversions) apply(ad *Ad) map[string]interface{} {
	ad.Conversions = p.Value
	return map[string]interface{}{"conversions": ad.Conversions}
}

func (p SetAssignee) apply(ad *Ad) map[string]interface{} {
	ad.AssignedUserID = p.UserID
	ad.AssignedUserName = p.UserName
	return map[string]interface{}{
		"assigned_user_id":   ad.AssignedUserID,
		"assigned_user_name": ad.AssignedUserName,
	}
}

// ApplyAdPatch applies p to ad, recomputes the derived metrics and returns
// every column that changed.
func ApplyAdPatch(ad *Ad, p AdPatch) (map[string]interface{}, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	fields := p.apply(ad)
	ad.RecomputeDerived()
	fields["ctr"] = ad.CTR
	fields["cost_per_conversion"] = ad.CostPerConversion
	return fields, nil
}

// ParseAdPatch decodes the JSON value of a single field edit.
func ParseAdPatch(field string, raw json.RawMessage) (AdPatch, error) {
	var p AdPatch
	switch field {
	case "name":
		var v string
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetName{Name: v}
	case "status":
		var v string
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetStatus{Status: AdStatus(v)}
	case "budget_amount":
		var v float64
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetBudget{Amount: v}
	case "budget":
		var v struct {
			Amount float64 `json:"amount"`
			Period string  `json:"period"`
		}
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetBudget{Amount: v.Amount, Period: v.Period}
	case "impressions":
		var v int64
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetImpressions{Value: v}
	case "clicks":
		var v int64
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetClicks{Value: v}
	case "revenue":
		var v float64
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetRevenue{Value: v}
	case "conversions":
		var v int64
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetConversions{Value: v}
	case "assigned_user":
		var v struct {
			ID   *string `json:"id"`
			Name *string `json:"name"`
		}
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetAssignee{UserID: v.ID, UserName: v.Name}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// BillingPatch edits the billing summary.
type BillingPatch interface {
	Validate() error
	fields() map[string]interface{}
}

type SetAvailableFunds struct{ Amount float64 }

type SetLastPayment struct {
	Amount float64
	Date   *time.Time
}

func (p SetAvailableFunds) Validate() error {
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return fmt.Errorf("%w: available funds %v", ErrInvalidValue, p.Amount)
	}
	return nil
}

func (p SetLastPayment) Validate() error {
	if !validMoney(p.Amount) {
		return fmt.Errorf("%w: payment amount %v", ErrInvalidValue, p.Amount)
	}
	return nil
}

func (p SetAvailableFunds) fields() map[string]interface{} {
	return map[string]interface{}{"available_funds": p.Amount}
}

func (p SetLastPayment) fields() map[string]interface{} {
	return map[string]interface{}{
		"last_payment_amount": p.Amount,
		"last_payment_date":   p.Date,
	}
}

// BillingPatchFields validates p and returns the columns it writes.
func BillingPatchFields(p BillingPatch) (map[string]interface{}, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p.fields(), nil
}

// Validate checks the statement period and amounts.
func (m *MonthlyStatement) Validate() error {
	if m.Month < 1 || m.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidValue, m.Month)
	}
	if m.Year < 2000 || m.Year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidValue, m.Year)
	}
	for name, v := range map[string]float64{
		"net_cost":            m.NetCost,
		"payments":            m.Payments,
		"funds_from_previous": m.FundsFromPrevious,
		"campaigns":           m.Campaigns,
		"adjustments":         m.Adjustments,
		"taxes_and_fees":      m.TaxesAndFees,
		"ending_balance":      m.EndingBalance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %v", ErrInvalidValue, name, v)
		}
	}
	return nil
}

func decode(field string, raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
	}
	return nil
}

func validCount(name string, v int64) error {
	if v < 0 {
		return fmt.Errorf("%w: %s %d", ErrInvalidValue, name, v)
	}
	return nil
}

func validMoney(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
