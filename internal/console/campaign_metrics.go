package console

import (
	"context"
	"fmt"

	"github.com/campaigndesk/campaigndesk/internal/models"
)

// CampaignMetrics returns one row per date range in display order. Ranges
// never saved show their defaults.
func (c *Console) CampaignMetrics(ctx context.Context) ([]models.CampaignMetrics, error) {
	stored, err := c.repo.ListCampaignMetrics(ctx)
	if err != nil {
		return nil, err
	}
	byRange := make(map[models.DateRange]*models.CampaignMetrics, len(stored))
	for _, row := range stored {
		byRange[row.DateRange] = row
	}

	rows := models.DefaultCampaignMetrics()
	for i := range rows {
		if row, ok := byRange[rows[i].DateRange]; ok {
			rows[i] = *row
		}
		rows[i].Label = rows[i].DateRange.Label()
	}
	return rows, nil
}

// SaveCampaignMetrics writes the given ranges and returns the full table.
// Nothing is written unless every row is valid.
func (c *Console) SaveCampaignMetrics(ctx context.Context, rows []models.CampaignMetrics) ([]models.CampaignMetrics, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", models.ErrInvalidValue)
	}
	seen := make(map[models.DateRange]bool, len(rows))
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return nil, err
		}
		if seen[rows[i].DateRange] {
			return nil, fmt.Errorf("%w: date range %q repeated", models.ErrInvalidValue, rows[i].DateRange)
		}
		seen[rows[i].DateRange] = true
	}

	if err := c.repo.SaveCampaignMetrics(ctx, rows); err != nil {
		c.logger.Error("Failed to save campaign metrics", "error", err)
		return nil, err
	}
	return c.CampaignMetrics(ctx)
}

// PatchCampaignMetrics edits one field of one range.
func (c *Console) PatchCampaignMetrics(ctx context.Context, r models.DateRange, p models.MetricsPatch) (*models.CampaignMetrics, error) {
	rows, err := c.CampaignMetrics(ctx)
	if err != nil {
		return nil, err
	}
	var row *models.CampaignMetrics
	for i := range rows {
		if rows[i].DateRange == r {
			row = &rows[i]
		}
	}
	if row == nil {
		return nil, fmt.Errorf("%w: date range %q", models.ErrUnknownField, r)
	}
	if err := models.ApplyMetricsPatch(row, p); err != nil {
		return nil, err
	}

	if err := c.repo.SaveCampaignMetrics(ctx, []models.CampaignMetrics{*row}); err != nil {
		c.logger.Error("Failed to update campaign metrics", "range", r, "field", p.Field(), "error", err)
		return nil, err
	}
	c.logger.Info("Campaign metrics updated", "range", r, "field", p.Field())
	return row, nil
}
