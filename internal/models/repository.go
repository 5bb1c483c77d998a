package models

import (
	"context"
	"time"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

// Repository is the persistence layer of the console. Every method wraps
// database failures in ErrExternalStore and missing rows in ErrNotFound.
type Repository interface {
	guard.SessionStore

	ListAds(ctx context.Context) ([]*Ad, error)
	GetAd(ctx context.Context, id string) (*Ad, error)
	CreateAd(ctx context.Context, ad *Ad) error
	// UpdateAdFields writes the given columns of one ad.
	UpdateAdFields(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteAd(ctx context.Context, id string) error

	// GetBillingAccount returns the billing row, creating it on first use.
	GetBillingAccount(ctx context.Context) (*BillingAccount, error)
	UpdateBillingAccount(ctx context.Context, fields map[string]interface{}) (*BillingAccount, error)

	ListStatements(ctx context.Context) ([]*MonthlyStatement, error)
	GetStatement(ctx context.Context, id string) (*MonthlyStatement, error)
	CreateStatement(ctx context.Context, st *MonthlyStatement) error
	SaveStatement(ctx context.Context, st *MonthlyStatement) error
	DeleteStatement(ctx context.Context, id string) error

	ListSessions(ctx context.Context, limit int) ([]*LoginSession, error)
	DeactivateStaleSessions(ctx context.Context, lastActivityBefore, at time.Time) (int64, error)

	ListBannedIPs(ctx context.Context) ([]*BannedIP, error)
	// UpsertBan bans ip, reactivating an earlier ban of the same address.
	UpsertBan(ctx context.Context, ban *BannedIP) error
	DeactivateBan(ctx context.Context, ip string) error
	// GetActiveBan returns nil when ip is not banned.
	GetActiveBan(ctx context.Context, ip string) (*BannedIP, error)

	GetSettings(ctx context.Context) (*AppSettings, error)
	SaveSettings(ctx context.Context, settings *AppSettings) error

	// ListCampaignMetrics returns the stored ranges; missing ranges are absent.
	ListCampaignMetrics(ctx context.Context) ([]*CampaignMetrics, error)
	// SaveCampaignMetrics upserts rows in one transaction.
	SaveCampaignMetrics(ctx context.Context, rows []CampaignMetrics) error

	AddAlertRecipient(ctx context.Context, recipient *AlertRecipient) error
	ListAlertRecipients(ctx context.Context, channel AlertChannel) ([]*AlertRecipient, error)

	Ping(ctx context.Context) error
	Close() error
}
