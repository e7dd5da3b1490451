package journals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/accounting/controls"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Violation codes reported by the validator.
const (
	CodeTooFewLines    = "TOO_FEW_LINES"
	CodeUnbalanced     = "UNBALANCED"
	CodeInvalidAccount = "INVALID_ACCOUNT"
	CodeInvalidAmount  = "INVALID_AMOUNT"
	CodePeriodNotFound = "PERIOD_NOT_FOUND"
	CodePeriodClosed   = "PERIOD_CLOSED"
	CodeBackdating     = "BACKDATING_LIMIT"
	CodeFutureDating   = "FUTURE_POSTING_LIMIT"
	CodeDuplicate      = "DUPLICATE_VOUCHER"
)

// ValidationError is a single structural or policy violation. Line is the
// zero-based line index, or -1 for entry-level violations.
type ValidationError struct {
	Code    string
	Message string
	Line    int
}

func (e ValidationError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("%s (line %d): %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationFailedError carries every violation found, so callers see all
// problems at once instead of fixing them one by one.
type ValidationFailedError struct {
	Violations []ValidationError
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return "accounting: validation failed: " + strings.Join(msgs, "; ")
}

// PeriodInfo is the slice of fiscal-period state the validator needs.
type PeriodInfo struct {
	ID        int64
	StartDate time.Time
	EndDate   time.Time
	Status    string
}

// PeriodGate resolves the fiscal period covering a posting date.
type PeriodGate interface {
	PeriodForDate(ctx context.Context, companyID int64, date time.Time) (PeriodInfo, error)
}

// AccountLookup loads accounts for postability checks.
type AccountLookup interface {
	LookupMany(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
}

// ControlsPort resolves the effective posting policy for a company.
type ControlsPort interface {
	Resolve(ctx context.Context, companyID int64) (controls.Controls, error)
}

// VoucherLookup reports whether an external voucher reference is taken.
type VoucherLookup interface {
	VoucherExists(ctx context.Context, voucherType VoucherType, voucherNo string) (bool, error)
}

// Validator is the pre-commit gate for journal entries. It never mutates
// anything; it accumulates violations over in-memory state plus read-only
// lookups.
type Validator struct {
	accounts AccountLookup
	periods  PeriodGate
	controls ControlsPort
	vouchers VoucherLookup
	now      func() time.Time
}

func NewValidator(accounts AccountLookup, periods PeriodGate, controls ControlsPort, vouchers VoucherLookup) *Validator {
	return &Validator{accounts: accounts, periods: periods, controls: controls, vouchers: vouchers, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (v *Validator) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Validate runs every check and returns the full violation list. The second
// return value reports infrastructure failures only; an entry that merely
// breaks the rules yields violations and a nil error.
func (v *Validator) Validate(ctx context.Context, in PostingInput) ([]ValidationError, error) {
	var violations []ValidationError

	if len(in.Lines) < 2 {
		violations = append(violations, ValidationError{Code: CodeTooFewLines, Message: "journal requires at least two lines", Line: -1})
	}

	debit, credit := in.Totals()
	if math.Abs(debit-credit) > shared.Tolerance {
		violations = append(violations, ValidationError{
			Code:    CodeUnbalanced,
			Message: fmt.Sprintf("total debit %.2f does not equal total credit %.2f", debit, credit),
			Line:    -1,
		})
	}

	lineViolations, err := v.checkLines(ctx, in.Lines)
	if err != nil {
		return nil, err
	}
	violations = append(violations, lineViolations...)

	periodViolations, err := v.checkPeriod(ctx, in)
	if err != nil {
		return nil, err
	}
	violations = append(violations, periodViolations...)

	dateViolations, err := v.checkDatingPolicy(ctx, in)
	if err != nil {
		return nil, err
	}
	violations = append(violations, dateViolations...)

	if in.VoucherNo != "" && v.vouchers != nil {
		taken, err := v.vouchers.VoucherExists(ctx, in.VoucherType, in.VoucherNo)
		if err != nil {
			return nil, err
		}
		if taken {
			violations = append(violations, ValidationError{
				Code:    CodeDuplicate,
				Message: fmt.Sprintf("voucher %s/%s already used", in.VoucherType, in.VoucherNo),
				Line:    -1,
			})
		}
	}

	return violations, nil
}

func (v *Validator) checkLines(ctx context.Context, lines []LineInput) ([]ValidationError, error) {
	var violations []ValidationError
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.AccountID != 0 {
			ids = append(ids, line.AccountID)
		}
	}
	var loaded map[int64]accounts.Account
	if len(ids) > 0 {
		var err error
		loaded, err = v.accounts.LookupMany(ctx, ids)
		if err != nil {
			return nil, err
		}
	}
	for idx, line := range lines {
		account, ok := loaded[line.AccountID]
		switch {
		case !ok:
			violations = append(violations, ValidationError{Code: CodeInvalidAccount, Message: fmt.Sprintf("account %d does not exist", line.AccountID), Line: idx})
		case !account.IsActive:
			violations = append(violations, ValidationError{Code: CodeInvalidAccount, Message: fmt.Sprintf("account %s is disabled", account.Code), Line: idx})
		case account.IsGroup:
			violations = append(violations, ValidationError{Code: CodeInvalidAccount, Message: fmt.Sprintf("account %s is a group account", account.Code), Line: idx})
		}
		if line.Debit < 0 || line.Credit < 0 {
			violations = append(violations, ValidationError{Code: CodeInvalidAmount, Message: "debit and credit must each be non-negative", Line: idx})
		}
		if (line.Debit == 0) == (line.Credit == 0) {
			violations = append(violations, ValidationError{Code: CodeInvalidAmount, Message: "exactly one of debit and credit must be non-zero", Line: idx})
		}
	}
	return violations, nil
}

func (v *Validator) checkPeriod(ctx context.Context, in PostingInput) ([]ValidationError, error) {
	period, err := v.periods.PeriodForDate(ctx, in.CompanyID, in.PostingDate)
	if err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			return []ValidationError{{
				Code:    CodePeriodNotFound,
				Message: fmt.Sprintf("no fiscal period covers %s", in.PostingDate.Format("2006-01-02")),
				Line:    -1,
			}}, nil
		}
		return nil, err
	}
	switch period.Status {
	case internalShared.PeriodStatusOpen:
	case internalShared.PeriodStatusSoftClosed:
		if !in.AllowSoftClosed {
			return []ValidationError{{
				Code:    CodePeriodClosed,
				Message: fmt.Sprintf("period %d is soft-closed", period.ID),
				Line:    -1,
			}}, nil
		}
	default:
		return []ValidationError{{
			Code:    CodePeriodClosed,
			Message: fmt.Sprintf("period %d is closed", period.ID),
			Line:    -1,
		}}, nil
	}
	return nil, nil
}

func (v *Validator) checkDatingPolicy(ctx context.Context, in PostingInput) ([]ValidationError, error) {
	policy, err := v.controls.Resolve(ctx, in.CompanyID)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotConfigured) {
			// No controls row anywhere means no dating policy to enforce.
			return nil, nil
		}
		return nil, err
	}
	today := truncateDay(v.now())
	posting := truncateDay(in.PostingDate)
	if posting.Before(today) {
		days := int(today.Sub(posting).Hours() / 24)
		if days > policy.BackdatingDaysAllowed {
			return []ValidationError{{
				Code:    CodeBackdating,
				Message: fmt.Sprintf("posting date is %d days in the past, limit is %d", days, policy.BackdatingDaysAllowed),
				Line:    -1,
			}}, nil
		}
	}
	if posting.After(today) {
		days := int(posting.Sub(today).Hours() / 24)
		if days > policy.FuturePostingDaysAllowed {
			return []ValidationError{{
				Code:    CodeFutureDating,
				Message: fmt.Sprintf("posting date is %d days ahead, limit is %d", days, policy.FuturePostingDaysAllowed),
				Line:    -1,
			}}, nil
		}
	}
	return nil, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
