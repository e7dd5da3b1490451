package fx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// ErrRateNotFound indicates no rate could be resolved through any fallback.
var ErrRateNotFound = errors.New("accounting: exchange rate not found")

type Repository interface {
	// ResolveRate applies the fallback chain: exact-date direct, exact-date
	// inverse, latest direct on or before the date, latest inverse.
	ResolveRate(ctx context.Context, from, to string, on time.Time) (float64, error)
	// ForeignExposures aggregates posted GL activity per asset/liability
	// account and foreign currency up to the cutoff date.
	ForeignExposures(ctx context.Context, companyID int64, baseCurrency string, asOf time.Time) ([]AccountExposure, error)
	RevaluationExists(ctx context.Context, periodID int64, currency string) (bool, error)
	InsertRevaluation(ctx context.Context, periodID int64, currency string, entryID int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ResolveRate(ctx context.Context, from, to string, on time.Time) (float64, error) {
	var rate float64
	// Exact-date direct.
	err := r.db.QueryRow(ctx, `SELECT rate FROM fx_rates WHERE from_currency=$1 AND to_currency=$2 AND rate_date=$3`, from, to, on).Scan(&rate)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	// Exact-date inverse.
	err = r.db.QueryRow(ctx, `SELECT rate FROM fx_rates WHERE from_currency=$1 AND to_currency=$2 AND rate_date=$3`, to, from, on).Scan(&rate)
	if err == nil {
		if rate == 0 {
			return 0, ErrRateNotFound
		}
		return 1 / rate, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	// Latest direct on or before.
	err = r.db.QueryRow(ctx, `SELECT rate FROM fx_rates WHERE from_currency=$1 AND to_currency=$2 AND rate_date<=$3 ORDER BY rate_date DESC LIMIT 1`, from, to, on).Scan(&rate)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	// Latest inverse on or before.
	err = r.db.QueryRow(ctx, `SELECT rate FROM fx_rates WHERE from_currency=$1 AND to_currency=$2 AND rate_date<=$3 ORDER BY rate_date DESC LIMIT 1`, to, from, on).Scan(&rate)
	if err == nil {
		if rate == 0 {
			return 0, ErrRateNotFound
		}
		return 1 / rate, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrRateNotFound
	}
	return 0, err
}

func (r *repository) ForeignExposures(ctx context.Context, companyID int64, baseCurrency string, asOf time.Time) ([]AccountExposure, error) {
	rows, err := r.db.Query(ctx, `SELECT l.account_id, a.code, l.currency,
COALESCE(SUM(l.debit_fc - l.credit_fc),0), COALESCE(SUM(l.debit - l.credit),0)
FROM gl_lines l
JOIN journal_entries e ON e.id = l.je_id
JOIN accounts a ON a.id = l.account_id
WHERE e.company_id=$1 AND e.docstatus=1 AND e.posting_date<=$2
  AND l.currency<>'' AND l.currency<>$3
  AND a.root_type IN ('ASSET','LIABILITY')
GROUP BY l.account_id, a.code, l.currency
HAVING ABS(COALESCE(SUM(l.debit_fc - l.credit_fc),0)) > 0.005
ORDER BY a.code`, companyID, asOf, baseCurrency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountExposure
	for rows.Next() {
		var e AccountExposure
		if err := rows.Scan(&e.AccountID, &e.AccountCode, &e.Currency, &e.BalanceFC, &e.BookValueBase); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) RevaluationExists(ctx context.Context, periodID int64, currency string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM fx_revaluations WHERE period_id=$1 AND currency=$2)`, periodID, currency).Scan(&exists)
	return exists, err
}

func (r *repository) InsertRevaluation(ctx context.Context, periodID int64, currency string, entryID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `INSERT INTO fx_revaluations (period_id, currency, je_id, created_at) VALUES ($1,$2,$3,$4)`, periodID, currency, entryID, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicateRevaluation
		}
		return err
	}
	return nil
}
