package numbering

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository wraps counter access in a transaction so the row lock spans the
// whole read-increment-write cycle.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// GetFormatForUpdate locks the company-specific row, falling back to the
	// global (company_id IS NULL) row when none exists.
	GetFormatForUpdate(ctx context.Context, documentType string, companyID int64) (Format, error)
	UpdateCounter(ctx context.Context, id int64, current int64, lastResetKey string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return shared.MapLockError(db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	}))
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetFormatForUpdate(ctx context.Context, documentType string, companyID int64) (Format, error) {
	f, err := r.lockFormat(ctx, `SELECT id, document_type, company_id, prefix, pattern, current_number, starting_number, min_digits, reset_frequency, last_reset_key, created_at, updated_at
FROM number_formats WHERE document_type=$1 AND company_id=$2 FOR UPDATE`, documentType, companyID)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Format{}, err
	}
	f, err = r.lockFormat(ctx, `SELECT id, document_type, company_id, prefix, pattern, current_number, starting_number, min_digits, reset_frequency, last_reset_key, created_at, updated_at
FROM number_formats WHERE document_type=$1 AND company_id IS NULL FOR UPDATE`, documentType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Format{}, shared.ErrFormatNotFound
		}
		return Format{}, err
	}
	return f, nil
}

func (r *txRepository) lockFormat(ctx context.Context, query string, args ...any) (Format, error) {
	var f Format
	err := r.tx.QueryRow(ctx, query, args...).
		Scan(&f.ID, &f.DocumentType, &f.CompanyID, &f.Prefix, &f.Pattern, &f.CurrentNumber, &f.StartingNumber, &f.MinDigits, &f.Reset, &f.LastResetKey, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Format{}, err
	}
	return f, nil
}

func (r *txRepository) UpdateCounter(ctx context.Context, id int64, current int64, lastResetKey string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE number_formats SET current_number=$2, last_reset_key=$3, updated_at=NOW() WHERE id=$1`, id, current, lastResetKey)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrFormatNotFound
	}
	return nil
}
