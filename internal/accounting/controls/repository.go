package controls

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

type Repository interface {
	Resolve(ctx context.Context, companyID int64) (Controls, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Resolve prefers the company row over the global (company_id IS NULL) row.
func (r *repository) Resolve(ctx context.Context, companyID int64) (Controls, error) {
	var c Controls
	err := r.db.QueryRow(ctx, `SELECT company_id, backdating_days, future_posting_days, allow_soft_closed, fx_gain_account_id, fx_loss_account_id, retained_earnings_account_id, created_at, updated_at
FROM accounting_controls WHERE company_id=$1 OR company_id IS NULL
ORDER BY company_id NULLS LAST LIMIT 1`, companyID).
		Scan(&c.CompanyID, &c.BackdatingDaysAllowed, &c.FuturePostingDaysAllowed, &c.AllowSoftClosedPostings, &c.FXGainAccountID, &c.FXLossAccountID, &c.RetainedEarningsAccountID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Controls{}, shared.ErrAccountNotConfigured
		}
		return Controls{}, err
	}
	return c, nil
}
