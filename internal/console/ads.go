package console

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/campaigndesk/campaigndesk/internal/models"
)

func (c *Console) ListAds(ctx context.Context) ([]*models.Ad, error) {
	return c.repo.ListAds(ctx)
}

func (c *Console) GetAd(ctx context.Context, id string) (*models.Ad, error) {
	return c.repo.GetAd(ctx, id)
}

// CreateAd validates ad, fills in defaults and derived metrics and stores it.
func (c *Console) CreateAd(ctx context.Context, ad *models.Ad) (*models.Ad, error) {
	ad.Name = strings.TrimSpace(ad.Name)
	if ad.Status == "" {
		ad.Status = models.AdStatusActive
	}
	if ad.BudgetPeriod == "" {
		ad.BudgetPeriod = "daily"
	}
	if err := validateNewAd(ad); err != nil {
		return nil, err
	}
	ad.RecomputeDerived()

	if err := c.repo.CreateAd(ctx, ad); err != nil {
		c.logger.Error("Failed to create ad", "name", ad.Name, "error", err)
		return nil, err
	}
	c.logger.Info("Ad created", "id", ad.ID, "name", ad.Name)
	return ad, nil
}

func validateNewAd(ad *models.Ad) error {
	checks := []models.AdPatch{
		models.SetName{Name: ad.Name},
		models.SetStatus{Status: ad.Status},
		models.SetBudget{Amount: ad.BudgetAmount, Period: ad.BudgetPeriod},
		models.SetImpressions{Value: ad.Impressions},
		models.SetClicks{Value: ad.Clicks},
		models.SetRevenue{Value: ad.Revenue},
		models.SetConversions{Value: ad.Conversions},
	}
	for _, p := range checks {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PatchAd applies a single-field edit and persists every column it changed.
func (c *Console) PatchAd(ctx context.Context, id string, patch models.AdPatch) (*models.Ad, error) {
	ad, err := c.repo.GetAd(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, err := models.ApplyAdPatch(ad, patch)
	if err != nil {
		return nil, err
	}
	if err := c.repo.UpdateAdFields(ctx, id, fields); err != nil {
		c.logger.Error("Failed to patch ad", "id", id, "field", patch.Field(), "error", err)
		return nil, err
	}
	return ad, nil
}

// ToggleAdStatus flips an ad between active and paused.
func (c *Console) ToggleAdStatus(ctx context.Context, id string) (*models.Ad, error) {
	ad, err := c.repo.GetAd(ctx, id)
	if err != nil {
		return nil, err
	}

	var next models.AdStatus
	switch ad.Status {
	case models.AdStatusActive:
		next = models.AdStatusPaused
	case models.AdStatusPaused:
		next = models.AdStatusActive
	default:
		return nil, fmt.Errorf("%w: ad %s is %s", models.ErrInvalidTransition, id, ad.Status)
	}

	if err := c.repo.UpdateAdFields(ctx, id, map[string]interface{}{"status": next}); err != nil {
		c.logger.Error("Failed to toggle ad status", "id", id, "error", err)
		return nil, err
	}
	ad.Status = next
	return ad, nil
}

func (c *Console) DeleteAd(ctx context.Context, id string) error {
	if err := c.repo.DeleteAd(ctx, id); err != nil {
		c.logger.Error("Failed to delete ad", "id", id, "error", err)
		return err
	}
	c.logger.Info("Ad deleted", "id", id)
	return nil
}

// Totals aggregates every ad. Ratios are zero when their denominator is.
func (c *Console) Totals(ctx context.Context) (*models.AdTotals, error) {
	ads, err := c.repo.ListAds(ctx)
	if err != nil {
		return nil, err
	}
	return totals(ads), nil
}

func totals(ads []*models.Ad) *models.AdTotals {
	t := &models.AdTotals{Ads: len(ads)}
	var revenueCents float64
	for _, ad := range ads {
		t.Impressions += ad.Impressions
		t.Clicks += ad.Clicks
		t.Conversions += ad.Conversions
		revenueCents += toCents(ad.Revenue)
	}
	t.Revenue = revenueCents / 100
	if t.Impressions > 0 {
		t.CTR = float64(t.Clicks) / float64(t.Impressions) * 100
	}
	if t.Clicks > 0 {
		t.AvgCPC = t.Revenue / float64(t.Clicks)
	}
	if t.Conversions > 0 {
		t.AvgCostPerConversion = t.Revenue / float64(t.Conversions)
	}
	return t
}

func toCents(v float64) float64 {
	return math.Round(v * 100)
}
