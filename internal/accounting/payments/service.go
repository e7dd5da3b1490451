package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// allocationNamespace seeds the deterministic source ref for settlement
// adjustment entries, so each allocation posts its GL adjustments at most
// once even across retries.
var allocationNamespace = uuid.MustParse("c8f5a9e2-1d73-4b6a-9e42-7f0c3a5d8b16")

const allocationSourceModule = "PAYMENT_ALLOCATION"

// PosterPort posts settlement adjustment entries through the ledger poster
// and reverses them when an allocation is removed.
type PosterPort interface {
	Post(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
	Reverse(ctx context.Context, in journals.ReverseInput) (journals.JournalEntry, error)
	GetBySourceRef(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error)
}

// AccountPort resolves mapped posting accounts by purpose.
type AccountPort interface {
	Resolve(ctx context.Context, companyID int64, purpose accounts.Purpose) (accounts.AccountRef, error)
}

// AuditPort records allocation events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts allocation activity.
type MetricsPort interface {
	AllocationsApplied(n int)
	AllocationRemoved()
}

// AllocationRequest asks for one document settlement within a batch.
type AllocationRequest struct {
	DocumentID int64
	Allocated  float64
	Discount   float64
	WriteOff   float64
}

// Engine applies payments against outstanding documents with strict
// non-overdraw guarantees. Every mutation happens under exclusive row locks
// on the payment and each target document, inside a single transaction, so
// concurrent batches cannot double-spend a payment or double-settle a
// document.
type Engine struct {
	repo     Repository
	accounts AccountPort
	poster   PosterPort
	audit    AuditPort
	metrics  MetricsPort
	now      func() time.Time
}

func NewEngine(repo Repository, accountPort AccountPort, poster PosterPort, audit AuditPort) *Engine {
	return &Engine{repo: repo, accounts: accountPort, poster: poster, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// WithMetrics attaches an optional metrics sink.
func (e *Engine) WithMetrics(m MetricsPort) {
	e.metrics = m
}

// Allocate settles the requested documents against the payment. Validation
// runs against the locked snapshot before any mutation; one bad request
// aborts the entire batch.
func (e *Engine) Allocate(ctx context.Context, paymentID int64, requests []AllocationRequest) ([]Allocation, error) {
	if len(requests) == 0 {
		return nil, errors.New("accounting: at least one allocation required")
	}
	seen := make(map[int64]bool, len(requests))
	ids := make([]int64, 0, len(requests))
	for _, req := range requests {
		if req.DocumentID == 0 {
			return nil, errors.New("accounting: allocation document id required")
		}
		if req.Allocated <= 0 {
			return nil, errors.New("accounting: allocation amount must be positive")
		}
		if req.Discount < 0 || req.WriteOff < 0 {
			return nil, errors.New("accounting: discount and write-off must be non-negative")
		}
		if seen[req.DocumentID] {
			return nil, fmt.Errorf("accounting: document %d listed twice in batch", req.DocumentID)
		}
		seen[req.DocumentID] = true
		ids = append(ids, req.DocumentID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var created []Allocation
	var payment Payment
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		docs, err := tx.GetDocumentsForUpdate(ctx, ids)
		if err != nil {
			return err
		}

		var totalRequested float64
		for _, req := range requests {
			doc, ok := docs[req.DocumentID]
			if !ok {
				return fmt.Errorf("%w: id %d", ErrDocumentNotFound, req.DocumentID)
			}
			if doc.PartyType != payment.PartyType || doc.PartyID != payment.PartyID {
				return fmt.Errorf("accounting: document %s does not belong to payment party", doc.Number)
			}
			if doc.Status == DocumentStatusPaid || doc.OutstandingAmount <= shared.Tolerance {
				return fmt.Errorf("%w: %s", shared.ErrAlreadyReconciled, doc.Number)
			}
			if req.Allocated+req.Discount+req.WriteOff > doc.OutstandingAmount+shared.Tolerance {
				return fmt.Errorf("%w: document %s outstanding %.2f", shared.ErrOverAllocation, doc.Number, doc.OutstandingAmount)
			}
			totalRequested += req.Allocated
		}
		if totalRequested > payment.UnallocatedAmount+shared.Tolerance {
			return fmt.Errorf("%w: payment %s unallocated %.2f", shared.ErrOverAllocation, payment.Number, payment.UnallocatedAmount)
		}

		created, err = e.applyBatch(ctx, tx, payment, docs, requests)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := e.postAdjustments(ctx, payment, created); err != nil {
		return nil, err
	}
	e.recordAudit(ctx, "payment.allocate", paymentID, map[string]any{"allocations": len(created)})
	if e.metrics != nil {
		e.metrics.AllocationsApplied(len(created))
	}
	return created, nil
}

// AutoAllocate settles the party's outstanding documents oldest first,
// greedily, until the payment's unallocated balance or the document list is
// exhausted.
func (e *Engine) AutoAllocate(ctx context.Context, paymentID int64) ([]Allocation, error) {
	var created []Allocation
	var payment Payment
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.UnallocatedAmount <= shared.Tolerance {
			return nil
		}
		outstanding, err := tx.ListOutstandingForUpdate(ctx, payment.CompanyID, payment.PartyType, payment.PartyID)
		if err != nil {
			return err
		}
		remaining := payment.UnallocatedAmount
		var requests []AllocationRequest
		docs := make(map[int64]OutstandingDocument, len(outstanding))
		for _, doc := range outstanding {
			if remaining <= shared.Tolerance {
				break
			}
			amount := math.Min(remaining, doc.OutstandingAmount)
			requests = append(requests, AllocationRequest{DocumentID: doc.ID, Allocated: round2(amount)})
			docs[doc.ID] = doc
			remaining = round2(remaining - amount)
		}
		if len(requests) == 0 {
			return nil
		}
		created, err = e.applyBatch(ctx, tx, payment, docs, requests)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := e.postAdjustments(ctx, payment, created); err != nil {
		return nil, err
	}
	e.recordAudit(ctx, "payment.auto_allocate", paymentID, map[string]any{"allocations": len(created)})
	if e.metrics != nil && len(created) > 0 {
		e.metrics.AllocationsApplied(len(created))
	}
	return created, nil
}

// Remove reverses the settlement on the target document, restores the freed
// amount to the payment, and deletes the allocation record, under the same
// locks Allocate takes.
func (e *Engine) Remove(ctx context.Context, allocationID int64) error {
	var paymentID int64
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc, err := tx.GetAllocationForUpdate(ctx, allocationID)
		if err != nil {
			return err
		}
		payment, err := tx.GetPaymentForUpdate(ctx, alloc.PaymentID)
		if err != nil {
			return err
		}
		docs, err := tx.GetDocumentsForUpdate(ctx, []int64{alloc.DocumentID})
		if err != nil {
			return err
		}
		doc, ok := docs[alloc.DocumentID]
		if !ok {
			return fmt.Errorf("%w: id %d", ErrDocumentNotFound, alloc.DocumentID)
		}

		settled := alloc.Allocated + alloc.Discount + alloc.WriteOff
		paid := round2(doc.PaidAmount - settled)
		outstanding := round2(doc.OutstandingAmount + settled)
		if err := tx.UpdateDocumentSettlement(ctx, doc.ID, paid, outstanding, settlementStatus(outstanding, doc.GrandTotal)); err != nil {
			return err
		}
		totalAllocated := round2(payment.TotalAllocated - alloc.Allocated)
		unallocated := round2(payment.UnallocatedAmount + alloc.Allocated)
		if err := tx.UpdatePaymentAllocation(ctx, payment.ID, totalAllocated, unallocated); err != nil {
			return err
		}
		paymentID = payment.ID
		return tx.DeleteAllocation(ctx, allocationID)
	})
	if err != nil {
		return err
	}
	if err := e.reverseAdjustment(ctx, allocationID); err != nil {
		return err
	}
	e.recordAudit(ctx, "payment.allocation.remove", paymentID, map[string]any{"allocation_id": allocationID})
	if e.metrics != nil {
		e.metrics.AllocationRemoved()
	}
	return nil
}

// applyBatch performs the already-validated settlement arithmetic. Requests
// are applied in the order listed.
func (e *Engine) applyBatch(ctx context.Context, tx TxRepository, payment Payment, docs map[int64]OutstandingDocument, requests []AllocationRequest) ([]Allocation, error) {
	created := make([]Allocation, 0, len(requests))
	totalAllocated := payment.TotalAllocated
	unallocated := payment.UnallocatedAmount
	for _, req := range requests {
		doc := docs[req.DocumentID]
		alloc := Allocation{
			PaymentID:      payment.ID,
			DocumentID:     doc.ID,
			Allocated:      round2(req.Allocated),
			Discount:       round2(req.Discount),
			WriteOff:       round2(req.WriteOff),
			ConversionRate: payment.ConversionRate,
			GainLoss:       round2(req.Allocated * (payment.ConversionRate - doc.ConversionRate)),
			AllocatedBase:  round2(req.Allocated * payment.ConversionRate),
			DiscountBase:   round2(req.Discount * payment.ConversionRate),
			WriteOffBase:   round2(req.WriteOff * payment.ConversionRate),
		}
		inserted, err := tx.InsertAllocation(ctx, alloc)
		if err != nil {
			return nil, err
		}
		created = append(created, inserted)

		settled := alloc.Allocated + alloc.Discount + alloc.WriteOff
		paid := round2(doc.PaidAmount + settled)
		outstanding := round2(doc.OutstandingAmount - settled)
		if err := tx.UpdateDocumentSettlement(ctx, doc.ID, paid, outstanding, settlementStatus(outstanding, doc.GrandTotal)); err != nil {
			return nil, err
		}
		totalAllocated = round2(totalAllocated + alloc.Allocated)
		unallocated = round2(unallocated - alloc.Allocated)
	}
	if err := tx.UpdatePaymentAllocation(ctx, payment.ID, totalAllocated, unallocated); err != nil {
		return nil, err
	}
	return created, nil
}

// postAdjustments posts the GL entry carrying each allocation's discount,
// write-off, and realized FX difference. The entry lands after the settlement
// transaction commits; the deterministic source ref makes a retry after a
// crash idempotent, so a duplicate post is treated as success.
func (e *Engine) postAdjustments(ctx context.Context, payment Payment, created []Allocation) error {
	for _, alloc := range created {
		lines, err := e.adjustmentLines(ctx, payment, alloc)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			continue
		}
		_, err = e.poster.Post(ctx, journals.PostingInput{
			CompanyID:    payment.CompanyID,
			PostingDate:  e.now(),
			VoucherType:  journals.VoucherTypePayment,
			VoucherNo:    fmt.Sprintf("%s-ADJ-%d", payment.Number, alloc.ID),
			SourceModule: allocationSourceModule,
			SourceRef:    allocationRef(alloc.ID),
			Remark:       fmt.Sprintf("Settlement adjustments for payment %s", payment.Number),
			Lines:        lines,
		})
		if err != nil && !errors.Is(err, shared.ErrAlreadyPosted) {
			return err
		}
	}
	return nil
}

// adjustmentLines builds the balanced legs for one allocation. The control
// account side follows the party: receivables credit when a customer balance
// shrinks, payables debit when a supplier balance shrinks. Allocations with
// no discount, write-off, or FX difference produce no entry.
func (e *Engine) adjustmentLines(ctx context.Context, payment Payment, alloc Allocation) ([]journals.LineInput, error) {
	discount, writeOff, gainLoss := alloc.DiscountBase, alloc.WriteOffBase, alloc.GainLoss
	if discount <= shared.Tolerance && writeOff <= shared.Tolerance && math.Abs(gainLoss) <= shared.Tolerance {
		return nil, nil
	}

	supplier := payment.PartyType == PartyTypeSupplier
	controlPurpose := accounts.PurposeReceivable
	partyType := journals.PartyTypeCustomer
	if supplier {
		controlPurpose = accounts.PurposePayable
		partyType = journals.PartyTypeSupplier
	}
	control, err := e.accounts.Resolve(ctx, payment.CompanyID, controlPurpose)
	if err != nil {
		return nil, err
	}
	partyID := payment.PartyID
	controlLine := func(debit, credit float64) journals.LineInput {
		return journals.LineInput{AccountID: control.ID, PartyType: &partyType, PartyID: &partyID, Debit: debit, Credit: credit}
	}

	var lines []journals.LineInput
	appendAdjustment := func(purpose accounts.Purpose, amount float64) error {
		acct, err := e.accounts.Resolve(ctx, payment.CompanyID, purpose)
		if err != nil {
			return err
		}
		if supplier {
			lines = append(lines, controlLine(amount, 0), journals.LineInput{AccountID: acct.ID, Credit: amount})
		} else {
			lines = append(lines, journals.LineInput{AccountID: acct.ID, Debit: amount}, controlLine(0, amount))
		}
		return nil
	}
	if discount > shared.Tolerance {
		if err := appendAdjustment(accounts.PurposeDiscountAllowed, discount); err != nil {
			return nil, err
		}
	}
	if writeOff > shared.Tolerance {
		if err := appendAdjustment(accounts.PurposeWriteOff, writeOff); err != nil {
			return nil, err
		}
	}
	if math.Abs(gainLoss) > shared.Tolerance {
		amount := math.Abs(gainLoss)
		// A payment rate above the document rate realizes a gain on a
		// receivable but a loss on a payable.
		gain := gainLoss > 0
		if supplier {
			gain = !gain
		}
		if gain {
			acct, err := e.accounts.Resolve(ctx, payment.CompanyID, accounts.PurposeFXGain)
			if err != nil {
				return nil, err
			}
			lines = append(lines, controlLine(amount, 0), journals.LineInput{AccountID: acct.ID, Credit: amount})
		} else {
			acct, err := e.accounts.Resolve(ctx, payment.CompanyID, accounts.PurposeFXLoss)
			if err != nil {
				return nil, err
			}
			lines = append(lines, journals.LineInput{AccountID: acct.ID, Debit: amount}, controlLine(0, amount))
		}
	}
	return lines, nil
}

// reverseAdjustment negates the allocation's adjustment entry, if one was
// posted. Allocations without adjustments have no entry to reverse.
func (e *Engine) reverseAdjustment(ctx context.Context, allocationID int64) error {
	entry, err := e.poster.GetBySourceRef(ctx, allocationSourceModule, allocationRef(allocationID))
	if err != nil {
		if errors.Is(err, shared.ErrJournalNotFound) {
			return nil
		}
		return err
	}
	_, err = e.poster.Reverse(ctx, journals.ReverseInput{EntryID: entry.ID, Reason: fmt.Sprintf("allocation %d removed", allocationID)})
	if errors.Is(err, shared.ErrNotPosted) {
		return nil
	}
	return err
}

func allocationRef(allocationID int64) uuid.UUID {
	return uuid.NewSHA1(allocationNamespace, []byte(fmt.Sprintf("payment-alloc-%d", allocationID)))
}

func settlementStatus(outstanding, grandTotal float64) DocumentStatus {
	switch {
	case outstanding <= shared.Tolerance:
		return DocumentStatusPaid
	case outstanding < grandTotal:
		return DocumentStatusPartiallyPaid
	default:
		return DocumentStatusUnpaid
	}
}

func (e *Engine) recordAudit(ctx context.Context, action string, paymentID int64, meta map[string]any) {
	if e.audit == nil {
		return
	}
	_ = e.audit.Record(ctx, internalShared.AuditLog{
		Action:   action,
		Entity:   "payment",
		EntityID: fmt.Sprintf("%d", paymentID),
		Meta:     meta,
		At:       e.now(),
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
