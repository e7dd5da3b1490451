package journals

import (
	"time"

	"github.com/google/uuid"
)

// DocStatus enumerates journal lifecycle values. Posted entries are immutable
// except for the single transition to cancelled.
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusPosted    DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

// VoucherType classifies the business origin of an entry.
type VoucherType string

const (
	VoucherTypeJournal       VoucherType = "JOURNAL"
	VoucherTypeBank          VoucherType = "BANK"
	VoucherTypeCreditNote    VoucherType = "CREDIT_NOTE"
	VoucherTypePayment       VoucherType = "PAYMENT"
	VoucherTypeFXRevaluation VoucherType = "FX_REVALUATION"
	VoucherTypePeriodClose   VoucherType = "PERIOD_CLOSE"
)

// PartyType tags the counterparty on a GL line.
type PartyType string

const (
	PartyTypeCustomer PartyType = "CUSTOMER"
	PartyTypeSupplier PartyType = "SUPPLIER"
	PartyTypeEmployee PartyType = "EMPLOYEE"
)

// JournalEntry is one atomic, balanced unit of ledger change.
type JournalEntry struct {
	ID           int64
	Number       string
	CompanyID    int64
	PostingDate  time.Time
	VoucherType  VoucherType
	VoucherNo    string
	TotalDebit   float64
	TotalCredit  float64
	DocStatus    DocStatus
	SourceModule string
	SourceRef    uuid.UUID
	Remark       string
	ReversalOf   *int64
	PostedBy     int64
	PostedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []GLLine
}

// GLLine is one leg of a journal entry. Debit and credit amounts are in base
// currency; the FC pair carries the document-currency amounts when the line
// is denominated in a foreign currency.
type GLLine struct {
	ID           int64
	JournalID    int64
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
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
