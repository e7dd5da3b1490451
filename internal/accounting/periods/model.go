package periods

import (
	"time"

	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// PeriodStatus enumerates valid period states. OPEN and SOFT_CLOSED are
// reversible; HARD_CLOSED is terminal.
type PeriodStatus string

const (
	PeriodStatusOpen       PeriodStatus = internalShared.PeriodStatusOpen
	PeriodStatusSoftClosed PeriodStatus = internalShared.PeriodStatusSoftClosed
	PeriodStatusHardClosed PeriodStatus = internalShared.PeriodStatusHardClosed
)

// FiscalPeriod is a non-overlapping date window scoped to a company.
type FiscalPeriod struct {
	ID             int64
	CompanyID      int64
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	Status         PeriodStatus
	SoftClosedBy   *int64
	SoftClosedAt   *time.Time
	ClosedBy       *int64
	ClosedAt       *time.Time
	ClosingEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Covers reports whether the date falls inside the period window, inclusive.
func (p FiscalPeriod) Covers(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// AccountActivity aggregates posted GL movement for one account within a
// period window.
type AccountActivity struct {
	AccountID   int64
	AccountCode string
	RootType    string
	TotalDebit  float64
	TotalCredit float64
}
