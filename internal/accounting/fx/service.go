package fx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/accounting/controls"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

var revalNamespace = uuid.MustParse("a3c1df26-4c52-4f2e-9a71-58b0de6e1c09")

// PeriodPort loads fiscal periods.
type PeriodPort interface {
	Get(ctx context.Context, periodID int64) (periods.FiscalPeriod, error)
}

// PosterPort posts the revaluation entry through the ledger poster and looks
// up previously posted entries by source reference.
type PosterPort interface {
	Post(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
	GetBySourceRef(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error)
}

// ControlsPort resolves the configured FX gain/loss accounts.
type ControlsPort interface {
	Resolve(ctx context.Context, companyID int64) (controls.Controls, error)
}

// AuditPort records revaluation events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// LeasePort serializes apply runs across workers.
type LeasePort interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Engine computes unrealized FX gain/loss on foreign-denominated balances as
// of a period end and posts the adjustment through the ledger poster.
type Engine struct {
	repo     Repository
	periods  PeriodPort
	poster   PosterPort
	controls ControlsPort
	audit    AuditPort
	lease    LeasePort
	now      func() time.Time
}

func NewEngine(repo Repository, periodPort PeriodPort, poster PosterPort, controlsPort ControlsPort, audit AuditPort) *Engine {
	return &Engine{repo: repo, periods: periodPort, poster: poster, controls: controlsPort, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// WithLease attaches the optional cross-worker lease.
func (e *Engine) WithLease(lease LeasePort) {
	e.lease = lease
}

// Preview computes the revaluation without posting anything. Accounts whose
// rate cannot be resolved are skipped, not failed; differences below
// tolerance are ignored.
func (e *Engine) Preview(ctx context.Context, periodID int64, baseCurrency string) (RevaluationSummary, error) {
	period, err := e.periods.Get(ctx, periodID)
	if err != nil {
		return RevaluationSummary{}, err
	}
	exposures, err := e.repo.ForeignExposures(ctx, period.CompanyID, baseCurrency, period.EndDate)
	if err != nil {
		return RevaluationSummary{}, err
	}

	summary := RevaluationSummary{PeriodID: periodID, AsOf: period.EndDate, BaseCurrency: baseCurrency}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, exposure := range exposures {
		g.Go(func() error {
			rate, err := e.repo.ResolveRate(gctx, exposure.Currency, baseCurrency, period.EndDate)
			if err != nil {
				if errors.Is(err, ErrRateNotFound) {
					mu.Lock()
					summary.SkippedAccounts = append(summary.SkippedAccounts, exposure.AccountID)
					mu.Unlock()
					return nil
				}
				return err
			}
			revalued := round2(exposure.BalanceFC * rate)
			gainLoss := round2(revalued - exposure.BookValueBase)
			if math.Abs(gainLoss) < shared.Tolerance {
				return nil
			}
			mu.Lock()
			summary.Lines = append(summary.Lines, RevaluationLine{
				AccountID:   exposure.AccountID,
				AccountCode: exposure.AccountCode,
				Currency:    exposure.Currency,
				BalanceFC:   exposure.BalanceFC,
				BookValue:   exposure.BookValueBase,
				Rate:        rate,
				Revalued:    revalued,
				GainLoss:    gainLoss,
			})
			if gainLoss > 0 {
				summary.TotalGain = round2(summary.TotalGain + gainLoss)
			} else {
				summary.TotalLoss = round2(summary.TotalLoss - gainLoss)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RevaluationSummary{}, err
	}
	sort.Slice(summary.Lines, func(i, j int) bool { return summary.Lines[i].AccountCode < summary.Lines[j].AccountCode })
	sort.Slice(summary.SkippedAccounts, func(i, j int) bool { return summary.SkippedAccounts[i] < summary.SkippedAccounts[j] })
	return summary, nil
}

// ApplyInput bundles parameters for posting a revaluation.
type ApplyInput struct {
	PeriodID     int64
	ActorID      int64
	BaseCurrency string
}

// Apply posts the revaluation adjustment. One revaluation is allowed per
// period and currency; hard-closed periods reject the run.
func (e *Engine) Apply(ctx context.Context, in ApplyInput) (journals.JournalEntry, error) {
	release, err := e.acquireLease(ctx, internalShared.RevaluationLockKey(in.PeriodID, in.BaseCurrency))
	if err != nil {
		return journals.JournalEntry{}, err
	}
	defer release()

	period, err := e.periods.Get(ctx, in.PeriodID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if period.Status == periods.PeriodStatusHardClosed {
		return journals.JournalEntry{}, fmt.Errorf("%w: period %d hard-closed", shared.ErrPeriodClosed, period.ID)
	}
	policy, err := e.controls.Resolve(ctx, period.CompanyID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if policy.FXGainAccountID == 0 || policy.FXLossAccountID == 0 {
		return journals.JournalEntry{}, fmt.Errorf("%w: fx gain/loss", shared.ErrAccountNotConfigured)
	}
	exists, err := e.repo.RevaluationExists(ctx, in.PeriodID, in.BaseCurrency)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if exists {
		return journals.JournalEntry{}, shared.ErrDuplicateRevaluation
	}

	summary, err := e.Preview(ctx, in.PeriodID, in.BaseCurrency)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if len(summary.Lines) == 0 {
		return journals.JournalEntry{}, fmt.Errorf("accounting: period %d has no revaluation differences for %s", in.PeriodID, in.BaseCurrency)
	}

	var lines []journals.LineInput
	for _, line := range summary.Lines {
		// The adjustment moves base value only; the foreign balance is
		// unchanged, so the FC amounts stay zero while the currency tag
		// keeps the line inside future exposure calculations.
		if line.GainLoss > 0 {
			lines = append(lines,
				journals.LineInput{AccountID: line.AccountID, Currency: line.Currency, ExchangeRate: line.Rate, Debit: line.GainLoss},
				journals.LineInput{AccountID: policy.FXGainAccountID, Credit: line.GainLoss},
			)
		} else {
			lines = append(lines,
				journals.LineInput{AccountID: line.AccountID, Currency: line.Currency, ExchangeRate: line.Rate, Credit: -line.GainLoss},
				journals.LineInput{AccountID: policy.FXLossAccountID, Debit: -line.GainLoss},
			)
		}
	}

	ref := uuid.NewSHA1(revalNamespace, []byte(fmt.Sprintf("reval-%d-%s", in.PeriodID, in.BaseCurrency)))
	entry, err := e.poster.Post(ctx, journals.PostingInput{
		CompanyID:       period.CompanyID,
		PostingDate:     period.EndDate,
		VoucherType:     journals.VoucherTypeFXRevaluation,
		SourceModule:    "FX_REVALUATION",
		SourceRef:       ref,
		Remark:          fmt.Sprintf("FX revaluation for %s as of %s", period.Name, period.EndDate.Format("2006-01-02")),
		PostedBy:        in.ActorID,
		AllowSoftClosed: true,
		Lines:           lines,
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyPosted) {
			// A prior run posted the entry but crashed before recording the
			// revaluation. Recover the entry through its source reference and
			// backfill the record; only a missing entry means a true duplicate.
			entry, lookupErr := e.poster.GetBySourceRef(ctx, "FX_REVALUATION", ref)
			if lookupErr != nil {
				return journals.JournalEntry{}, shared.ErrDuplicateRevaluation
			}
			if err := e.repo.InsertRevaluation(ctx, in.PeriodID, in.BaseCurrency, entry.ID, e.now()); err != nil && !errors.Is(err, shared.ErrDuplicateRevaluation) {
				return journals.JournalEntry{}, err
			}
			return entry, nil
		}
		return journals.JournalEntry{}, err
	}
	if err := e.repo.InsertRevaluation(ctx, in.PeriodID, in.BaseCurrency, entry.ID, e.now()); err != nil {
		return journals.JournalEntry{}, err
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "fx.revaluation.apply",
			Entity:   "fiscal_period",
			EntityID: fmt.Sprintf("%d", in.PeriodID),
			Meta: map[string]any{
				"entry_id":   entry.ID,
				"currency":   in.BaseCurrency,
				"total_gain": summary.TotalGain,
				"total_loss": summary.TotalLoss,
			},
			At: e.now(),
		})
	}
	return entry, nil
}

func (e *Engine) acquireLease(ctx context.Context, key string) (func(), error) {
	if e.lease == nil {
		return func() {}, nil
	}
	return e.lease.Acquire(ctx, key, 2*time.Minute)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
