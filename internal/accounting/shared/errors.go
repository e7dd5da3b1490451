package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUnbalanced indicates debit != credit beyond tolerance.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidAccount indicates a line references a missing, disabled, or group account.
	ErrInvalidAccount = errors.New("accounting: account not postable")
	// ErrPeriodNotFound indicates no fiscal period covers the posting date.
	ErrPeriodNotFound = errors.New("accounting: no fiscal period covers date")
	// ErrPeriodClosed indicates the covering period does not accept postings.
	ErrPeriodClosed = errors.New("accounting: period closed for posting")
	// ErrBackdatingLimit indicates the posting date is older than policy allows.
	ErrBackdatingLimit = errors.New("accounting: posting date exceeds backdating window")
	// ErrFuturePostingLimit indicates the posting date is further ahead than policy allows.
	ErrFuturePostingLimit = errors.New("accounting: posting date exceeds future-posting window")
	// ErrDuplicateVoucher indicates the external voucher reference is already used.
	ErrDuplicateVoucher = errors.New("accounting: voucher reference already used")

	// ErrAlreadyPosted indicates the source document already produced a journal entry.
	ErrAlreadyPosted = errors.New("accounting: source document already posted")
	// ErrNotPosted indicates the entry is not in posted status.
	ErrNotPosted = errors.New("accounting: journal entry not posted")
	// ErrAlreadyClosed indicates a closing entry already exists for the period.
	ErrAlreadyClosed = errors.New("accounting: period already has a closing entry")
	// ErrAlreadyReconciled indicates the allocation target is fully settled.
	ErrAlreadyReconciled = errors.New("accounting: document already fully settled")
	// ErrDuplicateRevaluation indicates a revaluation exists for the period and currency.
	ErrDuplicateRevaluation = errors.New("accounting: revaluation already exists for period and currency")

	// ErrLockTimeout indicates row lock acquisition timed out; safe to retry.
	ErrLockTimeout = errors.New("accounting: lock acquisition timed out")

	// ErrAccountNotConfigured indicates a required control account is not mapped.
	ErrAccountNotConfigured = errors.New("accounting: control account not configured")
	// ErrFormatNotFound indicates no numbering format exists for the document type.
	ErrFormatNotFound = errors.New("accounting: number format not found")
	// ErrSequenceExhausted indicates the counter exceeded its digit-width ceiling.
	ErrSequenceExhausted = errors.New("accounting: sequence exhausted for number format")

	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrOverAllocation indicates an allocation batch would overdraw a payment or document.
	ErrOverAllocation = errors.New("accounting: allocation exceeds available amount")
)

// Tolerance is the maximum permitted drift between total debit and total
// credit of a journal entry, in currency units.
const Tolerance = 0.01

// MapLockError converts row-lock contention (lock_not_available, deadlock
// detected) into ErrLockTimeout so callers can retry. Every other error
// passes through unchanged.
func MapLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "55P03" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	}
	return err
}
