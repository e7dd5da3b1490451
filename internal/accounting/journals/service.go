package journals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-erp/meridian-erp/internal/accounting/numbering"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// entryNumberType is the numbering series journal entry numbers draw from,
// independent of the voucher type.
const entryNumberType = "JOURNAL"

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// NumberPort issues the entry number from the document number generator.
type NumberPort interface {
	Next(ctx context.Context, in numbering.NextInput) (string, error)
}

// MetricsPort counts posting activity.
type MetricsPort interface {
	JournalPosted(voucherType string)
	JournalReversed()
	ObservePostDuration(d time.Duration)
}

// Service is the ledger poster: it converts already-validated business
// documents into balanced journal entries and supports full reversal.
// Journal entries are created and cancelled here and nowhere else.
type Service struct {
	repo      Repository
	validator *Validator
	audit     AuditPort
	numbers   NumberPort
	metrics   MetricsPort
	now       func() time.Time
}

func NewService(repo Repository, validator *Validator, audit AuditPort) *Service {
	return &Service{repo: repo, validator: validator, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches an optional metrics sink.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// WithNumbers attaches the entry number generator. Without it entries are
// stored with an empty number, which only in-memory tests accept.
func (s *Service) WithNumbers(n NumberPort) {
	s.numbers = n
}

// Get loads a journal entry header.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.Get(ctx, entryID)
}

// GetBySourceRef loads the entry a source document produced, if any. Callers
// use it to recover from interrupted multi-step workflows: the deterministic
// source ref re-derives the entry their crashed predecessor posted.
func (s *Service) GetBySourceRef(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	return s.repo.GetBySourceRef(ctx, module, ref)
}

// Post validates and persists a new journal entry atomically. Any validator
// failure aborts the whole operation; the entry and its lines either all
// commit or none do. Re-posting the same source ref fails with
// ErrAlreadyPosted before any GL line becomes visible.
func (s *Service) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	started := s.now()
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	debit, credit := in.Totals()
	if math.Abs(debit-credit) > shared.Tolerance {
		// Never silently corrected.
		return JournalEntry{}, fmt.Errorf("%w: debit %.2f credit %.2f", shared.ErrUnbalanced, debit, credit)
	}
	violations, err := s.validator.Validate(ctx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(violations) > 0 {
		return JournalEntry{}, &ValidationFailedError{Violations: violations}
	}
	number, err := s.issueNumber(ctx, in.CompanyID, in.PostingDate)
	if err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertJournalEntry(ctx, in, number, debit, credit)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, in.SourceModule, in.SourceRef, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toGLLines(inserted.ID, in.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, in.PostedBy, "journal.post", entry.ID, map[string]any{
		"voucher_type":  string(entry.VoucherType),
		"source_module": in.SourceModule,
		"source_ref":    in.SourceRef.String(),
		"total":         entry.TotalDebit,
	})
	if s.metrics != nil {
		s.metrics.JournalPosted(string(entry.VoucherType))
		s.metrics.ObservePostDuration(s.now().Sub(started))
	}
	return entry, nil
}

// Reverse emits a compensating entry with every line's debit and credit
// swapped and cancels the original. Partial reversal is not supported; the
// reversal amount set always equals the original's.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, errors.New("accounting: entry id required")
	}
	// Pre-read so the reversal's number is issued before the entry locks are
	// taken. The locked re-read below stays authoritative for the status.
	header, err := s.repo.Get(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if header.DocStatus != DocStatusPosted {
		return JournalEntry{}, shared.ErrNotPosted
	}
	postingDate := in.PostingDate
	if postingDate.IsZero() {
		postingDate = header.PostingDate
	}
	number, err := s.issueNumber(ctx, header.CompanyID, postingDate)
	if err != nil {
		return JournalEntry{}, err
	}
	var reversal JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := tx.GetForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if original.DocStatus != DocStatusPosted {
			return shared.ErrNotPosted
		}
		posting := PostingInput{
			CompanyID:    original.CompanyID,
			PostingDate:  postingDate,
			VoucherType:  original.VoucherType,
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceRef:    uuid.New(),
			Remark:       reversalRemark(in.Reason, original.ID),
			PostedBy:     in.ActorID,
			ReversalOf:   &original.ID,
			// Reversals are system-level corrections and may land in a
			// soft-closed period.
			AllowSoftClosed: true,
			Lines:           reverseLines(lines),
		}
		violations, err := s.validator.Validate(ctx, posting)
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			return &ValidationFailedError{Violations: violations}
		}
		inserted, err := tx.InsertJournalEntry(ctx, posting, number, original.TotalCredit, original.TotalDebit)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, posting.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, posting.SourceModule, posting.SourceRef, inserted.ID); err != nil {
			return err
		}
		if err := tx.UpdateDocStatus(ctx, original.ID, DocStatusCancelled); err != nil {
			return err
		}
		inserted.Lines = toGLLines(inserted.ID, posting.Lines, s.now())
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, in.ActorID, "journal.reverse", in.EntryID, map[string]any{
		"reversal_id": reversal.ID,
		"reason":      in.Reason,
	})
	if s.metrics != nil {
		s.metrics.JournalReversed()
	}
	return reversal, nil
}

// issueNumber draws the next entry number from the JOURNAL series. The
// counter commits independently of the posting transaction, so a failed post
// leaves a gap in the series, never a duplicate.
func (s *Service) issueNumber(ctx context.Context, companyID int64, postingDate time.Time) (string, error) {
	if s.numbers == nil {
		return "", nil
	}
	return s.numbers.Next(ctx, numbering.NextInput{
		DocumentType: entryNumberType,
		CompanyID:    companyID,
		AsOf:         postingDate,
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}

func reverseLines(lines []GLLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:    line.AccountID,
			PartyType:    line.PartyType,
			PartyID:      line.PartyID,
			CostCenterID: line.CostCenterID,
			Currency:     line.Currency,
			Debit:        line.Credit,
			Credit:       line.Debit,
			DebitFC:      line.CreditFC,
			CreditFC:     line.DebitFC,
			ExchangeRate: line.ExchangeRate,
		})
	}
	return out
}

func toGLLines(entryID int64, lines []LineInput, ts time.Time) []GLLine {
	out := make([]GLLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, GLLine{
			JournalID:    entryID,
			AccountID:    line.AccountID,
			PartyType:    line.PartyType,
			PartyID:      line.PartyID,
			CostCenterID: line.CostCenterID,
			Currency:     line.Currency,
			Debit:        line.Debit,
			Credit:       line.Credit,
			DebitFC:      line.DebitFC,
			CreditFC:     line.CreditFC,
			ExchangeRate: line.ExchangeRate,
			CreatedAt:    ts,
			UpdatedAt:    ts,
		})
	}
	return out
}

func reversalRemark(reason string, originalID int64) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("Reversal of JE %d", originalID)
}
