package periods

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/accounting/controls"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// closeNamespace seeds the deterministic source ref for closing entries, so
// the source-link unique constraint enforces one closing entry per period
// even if two close runs race.
var closeNamespace = uuid.MustParse("6f1f42d8-9d14-4b3e-8f10-2a1f6a9c7b55")

// PosterPort posts the closing journal entry through the ledger poster and
// looks up previously posted entries by source reference.
type PosterPort interface {
	Post(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
	GetBySourceRef(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error)
}

// ControlsPort resolves the retained earnings account for a company.
type ControlsPort interface {
	Resolve(ctx context.Context, companyID int64) (controls.Controls, error)
}

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// LeasePort serializes multi-transaction close workflows across workers.
type LeasePort interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Manager owns fiscal period lifecycle: posting-date validation, the
// OPEN/SOFT_CLOSED/HARD_CLOSED state machine, and year-end closing entries.
type Manager struct {
	repo     Repository
	poster   PosterPort
	controls ControlsPort
	audit    AuditPort
	lease    LeasePort
	now      func() time.Time
}

func NewManager(repo Repository, poster PosterPort, controls ControlsPort, audit AuditPort) *Manager {
	return &Manager{repo: repo, poster: poster, controls: controls, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (m *Manager) WithNow(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// WithLease attaches the optional cross-worker lease.
func (m *Manager) WithLease(lease LeasePort) {
	m.lease = lease
}

// Get returns a single fiscal period.
func (m *Manager) Get(ctx context.Context, periodID int64) (FiscalPeriod, error) {
	return m.repo.Get(ctx, periodID)
}

// List returns all periods for a company ordered by start date.
func (m *Manager) List(ctx context.Context, companyID int64) ([]FiscalPeriod, error) {
	return m.repo.List(ctx, companyID)
}

// ValidatePostingDate resolves the period covering the date and checks that
// its status admits postings.
func (m *Manager) ValidatePostingDate(ctx context.Context, companyID int64, date time.Time, allowSoftClosed bool) (FiscalPeriod, error) {
	period, err := m.repo.FindByDate(ctx, companyID, date)
	if err != nil {
		return FiscalPeriod{}, err
	}
	switch period.Status {
	case PeriodStatusOpen:
		return period, nil
	case PeriodStatusSoftClosed:
		if allowSoftClosed {
			return period, nil
		}
		return FiscalPeriod{}, fmt.Errorf("%w: period %d soft-closed", shared.ErrPeriodClosed, period.ID)
	default:
		return FiscalPeriod{}, fmt.Errorf("%w: period %d hard-closed", shared.ErrPeriodClosed, period.ID)
	}
}

// PeriodForDate implements the journal validator's period gate.
func (m *Manager) PeriodForDate(ctx context.Context, companyID int64, date time.Time) (journals.PeriodInfo, error) {
	period, err := m.repo.FindByDate(ctx, companyID, date)
	if err != nil {
		return journals.PeriodInfo{}, err
	}
	return journals.PeriodInfo{
		ID:        period.ID,
		StartDate: period.StartDate,
		EndDate:   period.EndDate,
		Status:    string(period.Status),
	}, nil
}

// CloseInput bundles parameters for a close transition.
type CloseInput struct {
	PeriodID int64
	Hard     bool
	ActorID  int64
}

// Close moves a period to SOFT_CLOSED or HARD_CLOSED. A hard-closed period
// rejects every further transition.
func (m *Manager) Close(ctx context.Context, in CloseInput) (FiscalPeriod, error) {
	if in.ActorID == 0 {
		return FiscalPeriod{}, errors.New("accounting: actor required")
	}
	target := PeriodStatusSoftClosed
	if in.Hard {
		target = PeriodStatusHardClosed
	}
	period, err := m.transition(ctx, in.PeriodID, target, in.ActorID)
	if err != nil {
		return FiscalPeriod{}, err
	}
	m.recordAudit(ctx, in.ActorID, "period.close", period.ID, map[string]any{"hard": in.Hard})
	return period, nil
}

// Reopen reverts a soft-closed period to OPEN. Hard-closed periods are
// terminal and never reopen.
func (m *Manager) Reopen(ctx context.Context, periodID, actorID int64) (FiscalPeriod, error) {
	if actorID == 0 {
		return FiscalPeriod{}, errors.New("accounting: actor required")
	}
	period, err := m.transition(ctx, periodID, PeriodStatusOpen, actorID)
	if err != nil {
		return FiscalPeriod{}, err
	}
	m.recordAudit(ctx, actorID, "period.reopen", period.ID, nil)
	return period, nil
}

func (m *Manager) transition(ctx context.Context, periodID int64, target PeriodStatus, actorID int64) (FiscalPeriod, error) {
	var period FiscalPeriod
	err := m.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if current.Status == PeriodStatusHardClosed {
			return fmt.Errorf("%w: period %d hard-closed", shared.ErrPeriodClosed, periodID)
		}
		if err := internalShared.ValidatePeriodTransition(string(current.Status), string(target)); err != nil {
			return err
		}
		if current.Status != target {
			if err := tx.UpdateStatus(ctx, periodID, target, actorID, m.now()); err != nil {
				return err
			}
		}
		period = current
		period.Status = target
		return nil
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	return period, nil
}

// GenerateClosingInput identifies the period to close out.
type GenerateClosingInput struct {
	PeriodID int64
	ActorID  int64
}

// GenerateClosingEntries zeroes Income and Expense into Retained Earnings
// for GL activity strictly within the period window. The entry is balanced
// by construction and still passes the full journal validator. At most one
// closing entry exists per period.
func (m *Manager) GenerateClosingEntries(ctx context.Context, in GenerateClosingInput) (journals.JournalEntry, error) {
	release, err := m.acquireLease(ctx, internalShared.FinanceLockKey(in.PeriodID))
	if err != nil {
		return journals.JournalEntry{}, err
	}
	defer release()

	period, err := m.repo.Get(ctx, in.PeriodID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if period.ClosingEntryID != nil {
		return journals.JournalEntry{}, shared.ErrAlreadyClosed
	}
	policy, err := m.controls.Resolve(ctx, period.CompanyID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if policy.RetainedEarningsAccountID == 0 {
		return journals.JournalEntry{}, fmt.Errorf("%w: retained earnings", shared.ErrAccountNotConfigured)
	}

	var lines []journals.LineInput
	var netIncome float64
	err = m.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		activity, err := tx.ActivityByAccount(ctx, period.CompanyID, period.StartDate, period.EndDate,
			[]string{string(accounts.RootTypeIncome), string(accounts.RootTypeExpense)})
		if err != nil {
			return err
		}
		lines, netIncome = buildClosingLines(activity)
		return nil
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if len(lines) == 0 {
		return journals.JournalEntry{}, fmt.Errorf("accounting: period %d has no income or expense activity to close", period.ID)
	}
	if netIncome = round2(netIncome); netIncome > shared.Tolerance {
		lines = append(lines, journals.LineInput{AccountID: policy.RetainedEarningsAccountID, Credit: netIncome})
	} else if netIncome < -shared.Tolerance {
		lines = append(lines, journals.LineInput{AccountID: policy.RetainedEarningsAccountID, Debit: -netIncome})
	}

	ref := uuid.NewSHA1(closeNamespace, []byte(fmt.Sprintf("period-close-%d", period.ID)))
	entry, err := m.poster.Post(ctx, journals.PostingInput{
		CompanyID:       period.CompanyID,
		PostingDate:     period.EndDate,
		VoucherType:     journals.VoucherTypePeriodClose,
		SourceModule:    "PERIOD_CLOSE",
		SourceRef:       ref,
		Remark:          fmt.Sprintf("Closing entry for %s", period.Name),
		PostedBy:        in.ActorID,
		AllowSoftClosed: true,
		Lines:           lines,
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyPosted) {
			// A prior run posted the entry but crashed before linking it to
			// the period. Recover the entry through its source reference and
			// backfill the link; only a missing entry means a true duplicate.
			recovered, lookupErr := m.poster.GetBySourceRef(ctx, "PERIOD_CLOSE", ref)
			if lookupErr != nil {
				return journals.JournalEntry{}, shared.ErrAlreadyClosed
			}
			if err := m.linkClosingEntry(ctx, period.ID, recovered.ID); err != nil && !errors.Is(err, shared.ErrAlreadyClosed) {
				return journals.JournalEntry{}, err
			}
			return recovered, nil
		}
		return journals.JournalEntry{}, err
	}

	if err := m.linkClosingEntry(ctx, period.ID, entry.ID); err != nil {
		return journals.JournalEntry{}, err
	}
	m.recordAudit(ctx, in.ActorID, "period.generate_closing", period.ID, map[string]any{
		"entry_id":   entry.ID,
		"net_income": netIncome,
	})
	return entry, nil
}

// buildClosingLines debits net-credit income accounts and credits net-debit
// expense accounts, returning the net income the retained earnings line must
// absorb. Nets below tolerance are skipped.
func buildClosingLines(activity []AccountActivity) ([]journals.LineInput, float64) {
	var lines []journals.LineInput
	var netIncome float64
	for _, a := range activity {
		switch a.RootType {
		case string(accounts.RootTypeIncome):
			net := round2(a.TotalCredit - a.TotalDebit)
			if math.Abs(net) <= shared.Tolerance {
				continue
			}
			if net > 0 {
				lines = append(lines, journals.LineInput{AccountID: a.AccountID, Debit: net})
			} else {
				lines = append(lines, journals.LineInput{AccountID: a.AccountID, Credit: -net})
			}
			netIncome += net
		case string(accounts.RootTypeExpense):
			net := round2(a.TotalDebit - a.TotalCredit)
			if math.Abs(net) <= shared.Tolerance {
				continue
			}
			if net > 0 {
				lines = append(lines, journals.LineInput{AccountID: a.AccountID, Credit: net})
			} else {
				lines = append(lines, journals.LineInput{AccountID: a.AccountID, Debit: -net})
			}
			netIncome -= net
		}
	}
	return lines, netIncome
}

func (m *Manager) linkClosingEntry(ctx context.Context, periodID, entryID int64) error {
	return m.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, periodID); err != nil {
			return err
		}
		return tx.SetClosingEntry(ctx, periodID, entryID)
	})
}

func (m *Manager) acquireLease(ctx context.Context, key string) (func(), error) {
	if m.lease == nil {
		return func() {}, nil
	}
	return m.lease.Acquire(ctx, key, 2*time.Minute)
}

func (m *Manager) recordAudit(ctx context.Context, actorID int64, action string, periodID int64, meta map[string]any) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fiscal_period",
		EntityID: fmt.Sprintf("%d", periodID),
		Meta:     meta,
		At:       m.now(),
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
