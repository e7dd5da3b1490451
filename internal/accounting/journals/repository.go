package journals

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	Get(ctx context.Context, entryID int64) (JournalEntry, error)
	// GetBySourceRef resolves the entry a source document produced, through
	// its source link.
	GetBySourceRef(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error)
	VoucherExists(ctx context.Context, voucherType VoucherType, voucherNo string) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertJournalEntry(ctx context.Context, in PostingInput, number string, totalDebit, totalCredit float64) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	// LinkSource stamps the source document so it cannot be re-posted. The
	// unique constraint on (module, ref) is the idempotency guard.
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetForUpdate(ctx context.Context, entryID int64) (JournalEntry, []GLLine, error)
	UpdateDocStatus(ctx context.Context, entryID int64, status DocStatus) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, number, company_id, posting_date, voucher_type, voucher_no, total_debit, total_credit, docstatus, source_module, source_ref, remark, reversal_of, posted_by, posted_at, created_at, updated_at`

const qualifiedEntryColumns = `je.id, je.number, je.company_id, je.posting_date, je.voucher_type, je.voucher_no, je.total_debit, je.total_credit, je.docstatus, je.source_module, je.source_ref, je.remark, je.reversal_of, je.posted_by, je.posted_at, je.created_at, je.updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	// posted_by is NULL for system-generated entries.
	var postedBy *int64
	err := row.Scan(&e.ID, &e.Number, &e.CompanyID, &e.PostingDate, &e.VoucherType, &e.VoucherNo, &e.TotalDebit, &e.TotalCredit, &e.DocStatus, &e.SourceModule, &e.SourceRef, &e.Remark, &e.ReversalOf, &postedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if postedBy != nil {
		e.PostedBy = *postedBy
	}
	return e, nil
}

func (r *repository) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) GetBySourceRef(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+qualifiedEntryColumns+` FROM journal_entries je
JOIN source_links sl ON sl.je_id = je.id WHERE sl.module=$1 AND sl.ref_id=$2`, module, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) VoucherExists(ctx context.Context, voucherType VoucherType, voucherNo string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_entries WHERE voucher_type=$1 AND voucher_no=$2 AND docstatus=1)`, voucherType, voucherNo).Scan(&exists)
	return exists, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return shared.MapLockError(db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	}))
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput, number string, totalDebit, totalCredit float64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (number, company_id, posting_date, voucher_type, voucher_no, total_debit, total_credit, docstatus, source_module, source_ref, remark, reversal_of, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8,$9,$10,$11,$12) RETURNING id, posted_at, created_at, updated_at`,
		number, in.CompanyID, in.PostingDate, in.VoucherType, in.VoucherNo, toNumeric(totalDebit), toNumeric(totalCredit), in.SourceModule, in.SourceRef, in.Remark, nullIntPtr(in.ReversalOf), nullInt(in.PostedBy))
	entry := JournalEntry{
		Number:       number,
		CompanyID:    in.CompanyID,
		PostingDate:  in.PostingDate,
		VoucherType:  in.VoucherType,
		VoucherNo:    in.VoucherNo,
		TotalDebit:   totalDebit,
		TotalCredit:  totalCredit,
		DocStatus:    DocStatusPosted,
		SourceModule: in.SourceModule,
		SourceRef:    in.SourceRef,
		Remark:       in.Remark,
		ReversalOf:   in.ReversalOf,
		PostedBy:     in.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO gl_lines (je_id, account_id, party_type, party_id, cost_center_id, currency, debit, credit, debit_fc, credit_fc, exchange_rate)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			entryID, line.AccountID, line.PartyType, nullIntPtr(line.PartyID), nullIntPtr(line.CostCenterID), line.Currency,
			toNumeric(line.Debit), toNumeric(line.Credit), toNumeric(line.DebitFC), toNumeric(line.CreditFC), line.ExchangeRate); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, je_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrAlreadyPosted
		}
		return err
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, entryID int64) (JournalEntry, []GLLine, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, shared.ErrJournalNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, je_id, account_id, party_type, party_id, cost_center_id, currency, debit, credit, debit_fc, credit_fc, exchange_rate, created_at, updated_at
FROM gl_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []GLLine
	for rows.Next() {
		var line GLLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.PartyType, &line.PartyID, &line.CostCenterID, &line.Currency, &line.Debit, &line.Credit, &line.DebitFC, &line.CreditFC, &line.ExchangeRate, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

func (r *txRepository) UpdateDocStatus(ctx context.Context, entryID int64, status DocStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET docstatus=$2, updated_at=NOW() WHERE id=$1`, entryID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

// Helpers
func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullIntPtr(val *int64) any {
	if val == nil || *val == 0 {
		return nil
	}
	return *val
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
