package console

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/internal/redistribute"
)

// metricColumn describes how one aggregate metric maps onto an ad. Values
// are handled in integer units: counts as is, revenue in cents.
type metricColumn struct {
	value func(*models.Ad) float64
	set   func(*models.Ad, int64)
	// scale converts units back to the metric's display value.
	scale float64
}

var metricColumns = map[models.AggregateMetric]metricColumn{
	models.MetricImpressions: {
		value: func(ad *models.Ad) float64 { return float64(ad.Impressions) },
		set:   func(ad *models.Ad, v int64) { ad.Impressions = v },
		scale: 1,
	},
	models.MetricClicks: {
		value: func(ad *models.Ad) float64 { return float64(ad.Clicks) },
		set:   func(ad *models.Ad, v int64) { ad.Clicks = v },
		scale: 1,
	},
	models.MetricConversions: {
		value: func(ad *models.Ad) float64 { return float64(ad.Conversions) },
		set:   func(ad *models.Ad, v int64) { ad.Conversions = v },
		scale: 1,
	},
	models.MetricRevenue: {
		value: func(ad *models.Ad) float64 { return toCents(ad.Revenue) },
		set:   func(ad *models.Ad, v int64) { ad.Revenue = float64(v) / 100 },
		scale: 100,
	},
}

// EditAggregate sets the total of metric across all ads to newTotal,
// rescaling each ad so it keeps its share. Every ad is written on its own;
// when some writes fail the result lists them and the error wraps
// models.ErrPartialUpdate.
func (c *Console) EditAggregate(ctx context.Context, metric models.AggregateMetric, newTotal float64) (*models.RedistributionResult, error) {
	col, ok := metricColumns[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownField, metric)
	}

	ads, err := c.repo.ListAds(ctx)
	if err != nil {
		return nil, err
	}

	var oldTotal float64
	for _, ad := range ads {
		oldTotal += col.value(ad)
	}
	target := newTotal * col.scale
	if metric == models.MetricRevenue {
		target = math.Round(target)
	}

	updates, err := redistribute.Proportional(ads, col.value, oldTotal, target)
	if err != nil {
		return nil, err
	}

	result := &models.RedistributionResult{
		Metric:  metric,
		Total:   float64(redistribute.Sum(updates)) / col.scale,
		Applied: []string{},
		Failed:  []string{},
	}
	c.metrics.RecordRedistributionDrift(string(metric), math.Abs(result.Total-newTotal))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.options.WriteConcurrency)
	for _, u := range updates {
		ad := *u.Row
		value := u.Value
		g.Go(func() error {
			col.set(&ad, value)
			ad.RecomputeDerived()
			fields := map[string]interface{}{
				string(metric):        columnValue(&ad, metric),
				"ctr":                 ad.CTR,
				"cost_per_conversion": ad.CostPerConversion,
			}
			werr := c.repo.UpdateAdFields(ctx, ad.ID, fields)
			c.metrics.RecordRedistributionWrite(string(metric), werr == nil)

			mu.Lock()
			defer mu.Unlock()
			if werr != nil {
				c.logger.Error("Failed to write redistributed value", "id", ad.ID, "metric", metric, "error", werr)
				result.Failed = append(result.Failed, ad.ID)
			} else {
				result.Applied = append(result.Applied, ad.ID)
			}
			// Rows are independent, so one failure never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Applied)
	sort.Strings(result.Failed)

	c.logger.Info("Aggregate redistributed",
		"metric", metric,
		"requested", newTotal,
		"total", result.Total,
		"applied", len(result.Applied),
		"failed", len(result.Failed))

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d ads not updated", models.ErrPartialUpdate, len(result.Failed), len(updates))
	}
	return result, nil
}

func columnValue(ad *models.Ad, metric models.AggregateMetric) interface{} {
	switch metric {
	case models.MetricImpressions:
		return ad.Impressions
	case models.MetricClicks:
		return ad.Clicks
	case models.MetricConversions:
		return ad.Conversions
	default:
		return ad.Revenue
	}
}
