package console

import (
	"context"
	"time"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	defaultWriteConcurrency = 8
	defaultSessionLimit     = 500
	defaultSweepInterval    = 5 * time.Minute
	defaultStaleAfter       = 30 * time.Minute
)

// Recorder receives redistribution measurements.
type Recorder interface {
	RecordRedistributionWrite(metric string, ok bool)
	RecordRedistributionDrift(metric string, drift float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordRedistributionWrite(string, bool)    {}
func (nopRecorder) RecordRedistributionDrift(string, float64) {}

// Options tunes the console. Zero durations and limits fall back to
// defaults.
type Options struct {
	// TaxRate is applied to the receipt subtotal (0.18 for 18%). Zero prints
	// a tax-free receipt.
	TaxRate float64
	// CompanyName heads receipts and reports when the settings row has none.
	CompanyName string
	// StaleSessionAfter marks sessions inactive once their last activity is
	// older than this.
	StaleSessionAfter time.Duration
	SweepInterval     time.Duration
	// WriteConcurrency bounds the parallel row writes of EditAggregate.
	WriteConcurrency int
	SessionListLimit int
}

func (o Options) withDefaults() Options {
	if o.TaxRate < 0 {
		o.TaxRate = 0
	}
	if o.StaleSessionAfter <= 0 {
		o.StaleSessionAfter = defaultStaleAfter
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.WriteConcurrency <= 0 {
		o.WriteConcurrency = defaultWriteConcurrency
	}
	if o.SessionListLimit <= 0 {
		o.SessionListLimit = defaultSessionLimit
	}
	return o
}

// Console is the main struct of the application.
// It serves all business logic on top of the repository.
type Console struct {
	logger  *logger.Logger
	options Options

	repo    models.Repository
	metrics Recorder
	now     func() time.Time
}

// NewConsole creates a new Console instance
func NewConsole(
	repo models.Repository,
	metrics Recorder,
	logger *logger.Logger,
	options Options,
) *Console {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Console{
		repo:    repo,
		metrics: metrics,
		logger:  logger.Named("console"),
		options: options.withDefaults(),
		now:     time.Now,
	}
}

var _ models.ConsoleI = (*Console)(nil)

// Start runs the stale session sweep until ctx is done.
func (c *Console) Start(ctx context.Context) {
	ticker := time.NewTicker(c.options.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepStaleSessions(ctx)
		}
	}
}

func (c *Console) sweepStaleSessions(ctx context.Context) {
	now := c.now()
	n, err := c.repo.DeactivateStaleSessions(ctx, now.Add(-c.options.StaleSessionAfter), now)
	if err != nil {
		c.logger.Error("Failed to deactivate stale sessions", "error", err)
		return
	}
	if n > 0 {
		c.logger.Info("Deactivated stale sessions", "count", n)
	}
}
