package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/validation"
)

func (c *Console) Settings(ctx context.Context) (*models.AppSettings, error) {
	return c.settingsOrDefault(ctx)
}

// SaveSettings replaces the settings row. An empty contact email clears it.
func (c *Console) SaveSettings(ctx context.Context, settings models.AppSettings) (*models.AppSettings, error) {
	settings.ContactEmail = strings.TrimSpace(settings.ContactEmail)
	settings.CompanyName = strings.TrimSpace(settings.CompanyName)
	if settings.Currency == "" {
		settings.Currency = models.CurrencyINR
	}
	if !settings.Currency.Valid() {
		return nil, fmt.Errorf("%w: currency %q", models.ErrInvalidValue, settings.Currency)
	}
	if settings.ContactEmail != "" {
		if err := validation.ValidateEmail(settings.ContactEmail); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidValue, err)
		}
	}

	settings.ID = 1
	if err := c.repo.SaveSettings(ctx, &settings); err != nil {
		c.logger.Error("Failed to save settings", "error", err)
		return nil, err
	}
	return &settings, nil
}

func (c *Console) settingsOrDefault(ctx context.Context) (*models.AppSettings, error) {
	settings, err := c.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Currency.Valid() {
		settings.Currency = models.DefaultSettings().Currency
	}
	return settings, nil
}
