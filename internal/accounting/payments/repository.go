package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// ErrPaymentNotFound indicates a missing payment.
var ErrPaymentNotFound = errors.New("accounting: payment not found")

// ErrDocumentNotFound indicates a missing settleable document.
var ErrDocumentNotFound = errors.New("accounting: document not found")

// ErrAllocationNotFound indicates a missing allocation record.
var ErrAllocationNotFound = errors.New("accounting: allocation not found")

type Repository interface {
	GetPayment(ctx context.Context, paymentID int64) (Payment, error)
	ListAllocations(ctx context.Context, paymentID int64) ([]Allocation, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. Payment and
// document rows are always locked before any settlement arithmetic; locking
// documents in ascending id order keeps concurrent batches deadlock-free.
type TxRepository interface {
	GetPaymentForUpdate(ctx context.Context, paymentID int64) (Payment, error)
	GetDocumentsForUpdate(ctx context.Context, documentIDs []int64) (map[int64]OutstandingDocument, error)
	// ListOutstandingForUpdate locks and returns the party's unsettled
	// documents ordered oldest first.
	ListOutstandingForUpdate(ctx context.Context, companyID int64, partyType PartyType, partyID int64) ([]OutstandingDocument, error)
	InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error)
	GetAllocationForUpdate(ctx context.Context, allocationID int64) (Allocation, error)
	DeleteAllocation(ctx context.Context, allocationID int64) error
	UpdateDocumentSettlement(ctx context.Context, documentID int64, paid, outstanding float64, status DocumentStatus) error
	UpdatePaymentAllocation(ctx context.Context, paymentID int64, totalAllocated, unallocated float64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const paymentColumns = `id, number, kind, company_id, party_type, party_id, currency, conversion_rate, amount, total_allocated, unallocated_amount, paid_at, created_at, updated_at`
const documentColumns = `id, document_type, number, company_id, party_type, party_id, currency, conversion_rate, grand_total, paid_amount, outstanding_amount, status, document_date, created_at, updated_at`
const allocationColumns = `id, payment_id, document_id, allocated, discount, write_off, conversion_rate, gain_loss, allocated_base, discount_base, write_off_base, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.Number, &p.Kind, &p.CompanyID, &p.PartyType, &p.PartyID, &p.Currency, &p.ConversionRate, &p.Amount, &p.TotalAllocated, &p.UnallocatedAmount, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanDocument(row pgx.Row) (OutstandingDocument, error) {
	var d OutstandingDocument
	err := row.Scan(&d.ID, &d.DocumentType, &d.Number, &d.CompanyID, &d.PartyType, &d.PartyID, &d.Currency, &d.ConversionRate, &d.GrandTotal, &d.PaidAmount, &d.OutstandingAmount, &d.Status, &d.DocumentDate, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func scanAllocation(row pgx.Row) (Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.PaymentID, &a.DocumentID, &a.Allocated, &a.Discount, &a.WriteOff, &a.ConversionRate, &a.GainLoss, &a.AllocatedBase, &a.DiscountBase, &a.WriteOffBase, &a.CreatedAt)
	return a, err
}

func (r *repository) GetPayment(ctx context.Context, paymentID int64) (Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) ListAllocations(ctx context.Context, paymentID int64) ([]Allocation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+allocationColumns+` FROM payment_allocations WHERE payment_id=$1 ORDER BY id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
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

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, paymentID int64) (Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *txRepository) GetDocumentsForUpdate(ctx context.Context, documentIDs []int64) (map[int64]OutstandingDocument, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM outstanding_documents WHERE id = ANY($1) ORDER BY id FOR UPDATE`, documentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]OutstandingDocument, len(documentIDs))
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

func (r *txRepository) ListOutstandingForUpdate(ctx context.Context, companyID int64, partyType PartyType, partyID int64) ([]OutstandingDocument, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM outstanding_documents
WHERE company_id=$1 AND party_type=$2 AND party_id=$3 AND outstanding_amount > 0 AND status <> 'PAID'
ORDER BY document_date, id FOR UPDATE`, companyID, partyType, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutstandingDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO payment_allocations (payment_id, document_id, allocated, discount, write_off, conversion_rate, gain_loss, allocated_base, discount_base, write_off_base)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		alloc.PaymentID, alloc.DocumentID, toNumeric(alloc.Allocated), toNumeric(alloc.Discount), toNumeric(alloc.WriteOff),
		alloc.ConversionRate, toNumeric(alloc.GainLoss), toNumeric(alloc.AllocatedBase), toNumeric(alloc.DiscountBase), toNumeric(alloc.WriteOffBase))
	if err := row.Scan(&alloc.ID, &alloc.CreatedAt); err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

func (r *txRepository) GetAllocationForUpdate(ctx context.Context, allocationID int64) (Allocation, error) {
	a, err := scanAllocation(r.tx.QueryRow(ctx, `SELECT `+allocationColumns+` FROM payment_allocations WHERE id=$1 FOR UPDATE`, allocationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	return a, nil
}

func (r *txRepository) DeleteAllocation(ctx context.Context, allocationID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM payment_allocations WHERE id=$1`, allocationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAllocationNotFound
	}
	return nil
}

func (r *txRepository) UpdateDocumentSettlement(ctx context.Context, documentID int64, paid, outstanding float64, status DocumentStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE outstanding_documents SET paid_amount=$2, outstanding_amount=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		documentID, toNumeric(paid), toNumeric(outstanding), status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) UpdatePaymentAllocation(ctx context.Context, paymentID int64, totalAllocated, unallocated float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payments SET total_allocated=$2, unallocated_amount=$3, updated_at=NOW() WHERE id=$1`,
		paymentID, toNumeric(totalAllocated), toNumeric(unallocated))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
