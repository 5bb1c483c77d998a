package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateRange is a reporting window of the dashboard summary.
type DateRange string

const (
	RangeToday      DateRange = "today"
	RangeLast7Days  DateRange = "last_7_days"
	RangeLast30Days DateRange = "last_30_days"
	RangeAllTime    DateRange = "all_time"
)

// DateRanges lists every window in display order.
var DateRanges = []DateRange{RangeToday, RangeLast7Days, RangeLast30Days, RangeAllTime}

var dateRangeLabels = map[DateRange]string{
	RangeToday:      "Today",
	RangeLast7Days:  "Last 7 days",
	RangeLast30Days: "Last 30 days",
	RangeAllTime:    "All time",
}

func (r DateRange) Valid() bool {
	_, ok := dateRangeLabels[r]
	return ok
}

func (r DateRange) Label() string {
	return dateRangeLabels[r]
}

// ParseDateRange accepts a key ("last_7_days") or a label ("Last 7 days"),
// ignoring case.
func ParseDateRange(s string) (DateRange, error) {
	s = strings.TrimSpace(s)
	for _, r := range DateRanges {
		if strings.EqualFold(s, string(r)) || strings.EqualFold(s, r.Label()) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: date range %q", ErrUnknownField, s)
}

// CampaignMetrics is the operator-maintained summary of one date range.
type CampaignMetrics struct {
	DateRange   DateRange `json:"date_range" gorm:"column:date_range;primaryKey;size:32"`
	Label       string    `json:"label" gorm:"-"`
	Impressions int64     `json:"impressions" gorm:"column:impressions;not null;default:0"`
	Cost        float64   `json:"cost" gorm:"column:cost;type:numeric(14,2);not null;default:0"`
	Conversions float64   `json:"conversions" gorm:"column:conversions;type:numeric(14,2);not null;default:0"`
	// CPA is the average target cost per acquisition.
	CPA       float64   `json:"cpa" gorm:"column:cpa;type:numeric(14,2);not null;default:0"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (CampaignMetrics) TableName() string {
	return "campaign_metrics"
}

// DefaultCampaignMetrics is what a fresh install shows for each range.
func DefaultCampaignMetrics() []CampaignMetrics {
	return []CampaignMetrics{
		{DateRange: RangeToday, Impressions: 472000, Cost: 64810, Conversions: 401.52, CPA: 161.41},
		{DateRange: RangeLast7Days, Impressions: 3304000, Cost: 453670, Conversions: 2810.64, CPA: 161.41},
		{DateRange: RangeLast30Days, Impressions: 14160000, Cost: 1944300, Conversions: 12045.68, CPA: 161.41},
		{DateRange: RangeAllTime, Impressions: 28320000, Cost: 3888600, Conversions: 24091.36, CPA: 161.41},
	}
}

// Validate checks the range and that every figure is a finite,
// non-negative number.
func (m *CampaignMetrics) Validate() error {
	if !m.DateRange.Valid() {
		return fmt.Errorf("%w: date range %q", ErrUnknownField, m.DateRange)
	}
	if err := validCount("impressions", m.Impressions); err != nil {
		return err
	}
	if err := validFigure("cost", m.Cost); err != nil {
		return err
	}
	if err := validFigure("conversions", m.Conversions); err != nil {
		return err
	}
	return validFigure("cpa", m.CPA)
}

// MetricsPatch is a single-field edit of one date range. Like AdPatch the
// set is closed; ParseMetricsPatch builds one from untrusted input.
type MetricsPatch interface {
	Field() string
	Validate() error
	apply(m *CampaignMetrics)
}

type SetRangeImpressions struct{ Value int64 }
type SetRangeCost struct{ Value float64 }
type SetRangeConversions struct{ Value float64 }
type SetRangeCPA struct{ Value float64 }

func (SetRangeImpressions) Field() string { return "impressions" }
func (SetRangeCost) Field() string        { return "cost" }
func (SetRangeConversions) Field() string { return "conversions" }
func (SetRangeCPA) Field() string         { return "cpa" }

func (p SetRangeImpressions) Validate() error { return validCount("impressions", p.Value) }
func (p SetRangeCost) Validate() error        { return validFigure("cost", p.Value) }
func (p SetRangeConversions) Validate() error { return validFigure("conversions", p.Value) }
func (p SetRangeCPA) Validate() error         { return validFigure("cpa", p.Value) }

func (p SetRangeImpressions) apply(m *CampaignMetrics) { m.Impressions = p.Value }
func (p SetRangeCost) apply(m *CampaignMetrics)        { m.Cost = p.Value }
func (p SetRangeConversions) apply(m *CampaignMetrics) { m.Conversions = p.Value }
func (p SetRangeCPA) apply(m *CampaignMetrics)         { m.CPA = p.Value }

// ApplyMetricsPatch validates p and applies it to m.
func ApplyMetricsPatch(m *CampaignMetrics, p MetricsPatch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.apply(m)
	return nil
}

// ParseMetricsPatch decodes the JSON value of a single field edit.
func ParseMetricsPatch(field string, raw json.RawMessage) (MetricsPatch, error) {
	var p MetricsPatch
	switch field {
	case "impressions":
		var v int64
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		p = SetRangeImpressions{Value: v}
	case "cost", "conversions", "cpa":
		var v float64
		if err := decode(field, raw, &v); err != nil {
			return nil, err
		}
		switch field {
		case "cost":
			p = SetRangeCost{Value: v}
		case "conversions":
			p = SetRangeConversions{Value: v}
		default:
			p = SetRangeCPA{Value: v}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func validFigure(name string, v float64) error {
	if !validMoney(v) {
		return fmt.Errorf("%w: %s %v", ErrInvalidValue, name, v)
	}
	return nil
}
