package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

type Repository interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Account, error)
	ResolveMapping(ctx context.Context, companyID int64, purpose Purpose) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, root_type, is_group, is_active, parent_id, created_at, updated_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.RootType, &a.IsGroup, &a.IsActive, &a.ParentID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT id, code, name, root_type, is_group, is_active, parent_id, created_at, updated_at FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.RootType, &a.IsGroup, &a.IsActive, &a.ParentID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrInvalidAccount
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) GetMany(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, root_type, is_group, is_active, parent_id, created_at, updated_at FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.RootType, &a.IsGroup, &a.IsActive, &a.ParentID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// ResolveMapping prefers the company-specific row and falls back to the
// global (company_id IS NULL) row.
func (r *repository) ResolveMapping(ctx context.Context, companyID int64, purpose Purpose) (int64, error) {
	var accountID int64
	err := r.db.QueryRow(ctx, `SELECT account_id FROM account_mappings
WHERE purpose=$1 AND (company_id=$2 OR company_id IS NULL)
ORDER BY company_id NULLS LAST LIMIT 1`, purpose, companyID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrAccountNotConfigured
		}
		return 0, err
	}
	return accountID, nil
}
