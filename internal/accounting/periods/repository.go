package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, periodID int64) (FiscalPeriod, error)
	FindByDate(ctx context.Context, companyID int64, date time.Time) (FiscalPeriod, error)
	List(ctx context.Context, companyID int64) ([]FiscalPeriod, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. Status
// transitions always go through GetForUpdate first so the period row lock
// serializes concurrent closes.
type TxRepository interface {
	GetForUpdate(ctx context.Context, periodID int64) (FiscalPeriod, error)
	UpdateStatus(ctx context.Context, periodID int64, status PeriodStatus, actorID int64, at time.Time) error
	SetClosingEntry(ctx context.Context, periodID int64, entryID int64) error
	// ActivityByAccount sums posted GL movement per account strictly within
	// the window, filtered to the given root types.
	ActivityByAccount(ctx context.Context, companyID int64, start, end time.Time, rootTypes []string) ([]AccountActivity, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, company_id, name, start_date, end_date, status, soft_closed_by, soft_closed_at, closed_by, closed_at, closing_entry_id, created_at, updated_at`

func scanPeriod(row pgx.Row) (FiscalPeriod, error) {
	var p FiscalPeriod
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.SoftClosedBy, &p.SoftClosedAt, &p.ClosedBy, &p.ClosedAt, &p.ClosingEntryID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) Get(ctx context.Context, periodID int64) (FiscalPeriod, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, shared.ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

// FindByDate returns the period covering the date regardless of status;
// callers decide whether the status admits postings.
func (r *repository) FindByDate(ctx context.Context, companyID int64, date time.Time) (FiscalPeriod, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE company_id=$1 AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, companyID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, shared.ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, companyID int64) ([]FiscalPeriod, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE company_id=$1 ORDER BY start_date`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return shared.MapLockError(db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	}))
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, periodID int64) (FiscalPeriod, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1 FOR UPDATE`, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, shared.ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, periodID int64, status PeriodStatus, actorID int64, at time.Time) error {
	var cmd pgconn.CommandTag
	var err error
	switch status {
	case PeriodStatusSoftClosed:
		cmd, err = r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, soft_closed_by=$3, soft_closed_at=$4, updated_at=NOW() WHERE id=$1`, periodID, status, actorID, at)
	case PeriodStatusHardClosed:
		cmd, err = r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, closed_by=$3, closed_at=$4, updated_at=NOW() WHERE id=$1`, periodID, status, actorID, at)
	default:
		cmd, err = r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, soft_closed_by=NULL, soft_closed_at=NULL, updated_at=NOW() WHERE id=$1`, periodID, status)
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) SetClosingEntry(ctx context.Context, periodID int64, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET closing_entry_id=$2, updated_at=NOW() WHERE id=$1 AND closing_entry_id IS NULL`, periodID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyClosed
	}
	return nil
}

func (r *txRepository) ActivityByAccount(ctx context.Context, companyID int64, start, end time.Time, rootTypes []string) ([]AccountActivity, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.account_id, a.code, a.root_type, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM gl_lines l
JOIN journal_entries e ON e.id = l.je_id
JOIN accounts a ON a.id = l.account_id
WHERE e.company_id=$1 AND e.docstatus=1 AND e.posting_date BETWEEN $2 AND $3 AND a.root_type = ANY($4)
GROUP BY l.account_id, a.code, a.root_type
ORDER BY a.code`, companyID, start, end, rootTypes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.AccountID, &a.AccountCode, &a.RootType, &a.TotalDebit, &a.TotalCredit); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
