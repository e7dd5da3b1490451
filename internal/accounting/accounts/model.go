package accounts

import "time"

// RootType enumerates CoA categories.
type RootType string

const (
	RootTypeAsset     RootType = "ASSET"
	RootTypeLiability RootType = "LIABILITY"
	RootTypeEquity    RootType = "EQUITY"
	RootTypeIncome    RootType = "INCOME"
	RootTypeExpense   RootType = "EXPENSE"
)

// Account models a chart of accounts node. Group accounts structure the tree
// and never receive postings.
type Account struct {
	ID        int64
	Code      string
	Name      string
	RootType  RootType
	IsGroup   bool
	IsActive  bool
	ParentID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Postable reports whether the account may appear on a journal line.
func (a Account) Postable() bool {
	return a.ID != 0 && a.IsActive && !a.IsGroup
}

// AccountRef is the resolved, immutable reference stored on GL lines.
type AccountRef struct {
	ID   int64
	Code string
}

// Purpose names a posting role resolved against company account mappings.
type Purpose string

const (
	PurposeReceivable       Purpose = "RECEIVABLE"
	PurposePayable          Purpose = "PAYABLE"
	PurposeIncome           Purpose = "INCOME"
	PurposeExpense          Purpose = "EXPENSE"
	PurposeTax              Purpose = "TAX"
	PurposeBank             Purpose = "BANK"
	PurposeFXGain           Purpose = "FX_GAIN"
	PurposeFXLoss           Purpose = "FX_LOSS"
	PurposeRetainedEarnings Purpose = "RETAINED_EARNINGS"
	PurposeDiscountAllowed  Purpose = "DISCOUNT_ALLOWED"
	PurposeWriteOff         Purpose = "WRITE_OFF"
)

// AccountMapping links a posting purpose to a ledger account. A row with
// CompanyID nil is the global fallback.
type AccountMapping struct {
	CompanyID *int64
	Purpose   Purpose
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
