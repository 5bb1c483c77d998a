package console

import (
	"context"

	"github.com/campaigndesk/campaigndesk/internal/models"
)

func (c *Console) BillingSummary(ctx context.Context) (*models.BillingAccount, error) {
	return c.repo.GetBillingAccount(ctx)
}

func (c *Console) PatchBilling(ctx context.Context, patch models.BillingPatch) (*models.BillingAccount, error) {
	fields, err := models.BillingPatchFields(patch)
	if err != nil {
		return nil, err
	}
	account, err := c.repo.UpdateBillingAccount(ctx, fields)
	if err != nil {
		c.logger.Error("Failed to update billing account", "error", err)
		return nil, err
	}
	return account, nil
}

// ListStatements returns the billing history, newest month first.
func (c *Console) ListStatements(ctx context.Context) ([]*models.MonthlyStatement, error) {
	return c.repo.ListStatements(ctx)
}

// CreateStatement adds a month. A second statement for the same month
// fails with models.ErrConflict.
func (c *Console) CreateStatement(ctx context.Context, st *models.MonthlyStatement) (*models.MonthlyStatement, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	st.ID = ""
	if err := c.repo.CreateStatement(ctx, st); err != nil {
		c.logger.Error("Failed to create statement", "year", st.Year, "month", st.Month, "error", err)
		return nil, err
	}
	return st, nil
}

func (c *Console) UpdateStatement(ctx context.Context, id string, st *models.MonthlyStatement) (*models.MonthlyStatement, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	existing, err := c.repo.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}
	st.ID = existing.ID
	st.CreatedAt = existing.CreatedAt
	if err := c.repo.SaveStatement(ctx, st); err != nil {
		c.logger.Error("Failed to update statement", "id", id, "error", err)
		return nil, err
	}
	return st, nil
}

func (c *Console) DeleteStatement(ctx context.Context, id string) error {
	if err := c.repo.DeleteStatement(ctx, id); err != nil {
		c.logger.Error("Failed to delete statement", "id", id, "error", err)
		return err
	}
	return nil
}
