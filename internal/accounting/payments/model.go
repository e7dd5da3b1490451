package payments

import "time"

// PaymentKind distinguishes money received from money paid out.
type PaymentKind string

const (
	PaymentKindReceive PaymentKind = "RECEIVE"
	PaymentKindPay     PaymentKind = "PAY"
)

// PartyType tags the counterparty of a payment or document.
type PartyType string

const (
	PartyTypeCustomer PartyType = "CUSTOMER"
	PartyTypeSupplier PartyType = "SUPPLIER"
)

// DocumentType enumerates settleable document kinds.
type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "INVOICE"
	DocumentTypeBill       DocumentType = "BILL"
	DocumentTypeCreditNote DocumentType = "CREDIT_NOTE"
	DocumentTypeDebitNote  DocumentType = "DEBIT_NOTE"
)

// DocumentStatus tracks settlement progress.
type DocumentStatus string

const (
	DocumentStatusUnpaid        DocumentStatus = "UNPAID"
	DocumentStatusPartiallyPaid DocumentStatus = "PARTIALLY_PAID"
	DocumentStatusPaid          DocumentStatus = "PAID"
)

// Payment is a customer or supplier payment with a running unallocated
// balance. Settlement arithmetic happens only under the payment row lock.
type Payment struct {
	ID                int64
	Number            string
	Kind              PaymentKind
	CompanyID         int64
	PartyType         PartyType
	PartyID           int64
	Currency          string
	ConversionRate    float64
	Amount            float64
	TotalAllocated    float64
	UnallocatedAmount float64
	PaidAt            time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OutstandingDocument is a settleable document seen from the allocation
// engine: an invoice, bill, credit note, or debit note with a remaining
// outstanding amount.
type OutstandingDocument struct {
	ID                int64
	DocumentType      DocumentType
	Number            string
	CompanyID         int64
	PartyType         PartyType
	PartyID           int64
	Currency          string
	ConversionRate    float64
	GrandTotal        float64
	PaidAmount        float64
	OutstandingAmount float64
	Status            DocumentStatus
	DocumentDate      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Allocation links a payment to exactly one settled document.
type Allocation struct {
	ID             int64
	PaymentID      int64
	DocumentID     int64
	Allocated      float64
	Discount       float64
	WriteOff       float64
	ConversionRate float64
	// GainLoss is the realized FX difference in base currency:
	// allocated * (payment rate - document rate).
	GainLoss      float64
	AllocatedBase float64
	DiscountBase  float64
	WriteOffBase  float64
	CreatedAt     time.Time
}
