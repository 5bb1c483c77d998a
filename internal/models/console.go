package models

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidTransition is returned when toggling an ended ad.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPartialUpdate is returned when some rows of a redistribution
	// could not be written. It always wraps ErrExternalStore.
	ErrPartialUpdate = fmt.Errorf("partial update: %w", ErrExternalStore)
)

// AggregateMetric is an ad counter whose total can be edited.
type AggregateMetric string

const (
	MetricImpressions AggregateMetric = "impressions"
	MetricClicks      AggregateMetric = "clicks"
	MetricConversions AggregateMetric = "conversions"
	MetricRevenue     AggregateMetric = "revenue"
)

func ParseAggregateMetric(s string) (AggregateMetric, error) {
	switch m := AggregateMetric(s); m {
	case MetricImpressions, MetricClicks, MetricConversions, MetricRevenue:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// RedistributionResult lists which ads received their new value.
type RedistributionResult struct {
	Metric AggregateMetric `json:"metric"`
	// Total is the sum actually written, which may differ from the
	// requested total by rounding.
	Total   float64  `json:"total"`
	Applied []string `json:"applied"`
	Failed  []string `json:"failed"`
}

// ConsoleI is the business layer served over HTTP.
type ConsoleI interface {
	// Start runs background maintenance until ctx is done.
	Start(ctx context.Context)

	ListAds(ctx context.Context) ([]*Ad, error)
	GetAd(ctx context.Context, id string) (*Ad, error)
	CreateAd(ctx context.Context, ad *Ad) (*Ad, error)
	PatchAd(ctx context.Context, id string, patch AdPatch) (*Ad, error)
	ToggleAdStatus(ctx context.Context, id string) (*Ad, error)
	DeleteAd(ctx context.Context, id string) error
	Totals(ctx context.Context) (*AdTotals, error)
	EditAggregate(ctx context.Context, metric AggregateMetric, newTotal float64) (*RedistributionResult, error)
	ExportCSV(ctx context.Context, w io.Writer) error
	Receipt(ctx context.Context, w io.Writer) (string, error)

	BillingSummary(ctx context.Context) (*BillingAccount, error)
	PatchBilling(ctx context.Context, patch BillingPatch) (*BillingAccount, error)
	ListStatements(ctx context.Context) ([]*MonthlyStatement, error)
	CreateStatement(ctx context.Context, st *MonthlyStatement) (*MonthlyStatement, error)
	UpdateStatement(ctx context.Context, id string, st *MonthlyStatement) (*MonthlyStatement, error)
	DeleteStatement(ctx context.Context, id string) error

	ListSessions(ctx context.Context) ([]*LoginSession, error)
	ListBannedIPs(ctx context.Context) ([]*BannedIP, error)
	BanIP(ctx context.Context, ip, reason, bannedBy string) (*BannedIP, error)
	UnbanIP(ctx context.Context, ip string) error
	IsBanned(ctx context.Context, ip string) (*BannedIP, error)

	Settings(ctx context.Context) (*AppSettings, error)
	SaveSettings(ctx context.Context, settings AppSettings) (*AppSettings, error)

	CampaignMetrics(ctx context.Context) ([]CampaignMetrics, error)
	SaveCampaignMetrics(ctx context.Context, rows []CampaignMetrics) ([]CampaignMetrics, error)
	PatchCampaignMetrics(ctx context.Context, r DateRange, patch MetricsPatch) (*CampaignMetrics, error)
}

// APIServer is the HTTP transport.
type APIServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}
