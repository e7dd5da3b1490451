package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LineInput describes a journal line for a posting request. Debit and Credit
// are base-currency amounts; DebitFC/CreditFC carry the document-currency
// amounts for foreign-denominated lines.
type LineInput struct {
	AccountID    int64
	PartyType    *PartyType
	PartyID      *int64
	CostCenterID *int64
	Currency     string
	Debit        float64
	Credit       float64
	DebitFC      float64
	CreditFC     float64
	ExchangeRate float64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	CompanyID   int64
	PostingDate time.Time
	VoucherType VoucherType
	// VoucherNo is the optional external reference; when set it must be
	// unique per voucher type.
	VoucherNo    string
	SourceModule string
	// SourceRef is the idempotency key: one journal entry per source ref.
	SourceRef uuid.UUID
	Remark    string
	PostedBy  int64
	// ReversalOf links a reversal entry back to the entry it negates.
	ReversalOf *int64
	// AllowSoftClosed permits posting into soft-closed periods for
	// system-level corrections.
	AllowSoftClosed bool
	Lines           []LineInput
}

// Validate performs structural sanity checks. Business rules are owned by the
// Validator, which accumulates all violations instead of stopping at one.
func (in PostingInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("accounting: company required")
	}
	if in.PostingDate.IsZero() {
		return errors.New("accounting: posting date required")
	}
	if in.VoucherType == "" {
		return errors.New("accounting: voucher type required")
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceRef == uuid.Nil {
		return errors.New("accounting: source ref required")
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
	}
	return nil
}

// Totals sums base-currency debits and credits.
func (in PostingInput) Totals() (debit, credit float64) {
	for _, line := range in.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	return debit, credit
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Reason  string
	// PostingDate defaults to the original entry's date when zero.
	PostingDate time.Time
}
