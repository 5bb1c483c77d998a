package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/validation"
)

// ListSessions returns the most recent logins, newest first.
func (c *Console) ListSessions(ctx context.Context) ([]*models.LoginSession, error) {
	return c.repo.ListSessions(ctx, c.options.SessionListLimit)
}

func (c *Console) ListBannedIPs(ctx context.Context) ([]*models.BannedIP, error) {
	return c.repo.ListBannedIPs(ctx)
}

// BanIP blocks ip. Banning an address again refreshes its reason and
// reactivates it.
func (c *Console) BanIP(ctx context.Context, ip, reason, bannedBy string) (*models.BannedIP, error) {
	normalized, err := validation.ValidateAndNormalizeIP(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidValue, err)
	}
	ban := &models.BannedIP{
		IPAddress: normalized,
		Reason:    nonEmpty(reason),
		BannedBy:  nonEmpty(bannedBy),
		BannedAt:  c.now().UTC(),
		IsActive:  true,
	}
	if err := c.repo.UpsertBan(ctx, ban); err != nil {
		c.logger.Error("Failed to ban ip", "ip", normalized, "error", err)
		return nil, err
	}
	c.logger.Info("IP banned", "ip", normalized, "by", bannedBy)
	return ban, nil
}

func (c *Console) UnbanIP(ctx context.Context, ip string) error {
	normalized, err := validation.ValidateAndNormalizeIP(ip)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidValue, err)
	}
	if err := c.repo.DeactivateBan(ctx, normalized); err != nil {
		c.logger.Error("Failed to unban ip", "ip", normalized, "error", err)
		return err
	}
	c.logger.Info("IP unbanned", "ip", normalized)
	return nil
}

// IsBanned returns the active ban for ip, or nil. Unparseable addresses are
// never banned.
func (c *Console) IsBanned(ctx context.Context, ip string) (*models.BannedIP, error) {
	normalized, err := validation.ValidateAndNormalizeIP(ip)
	if err != nil {
		return nil, nil
	}
	return c.repo.GetActiveBan(ctx, normalized)
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
