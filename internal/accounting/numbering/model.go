package numbering

import (
	"fmt"
	"time"
)

// ResetFrequency controls when a counter restarts.
type ResetFrequency string

const (
	ResetNever     ResetFrequency = "NEVER"
	ResetYearly    ResetFrequency = "YEARLY"
	ResetQuarterly ResetFrequency = "QUARTERLY"
	ResetMonthly   ResetFrequency = "MONTHLY"
)

// Format is the per document-type counter row. A row with CompanyID nil is
// the global fallback used when no company-specific row exists.
type Format struct {
	ID             int64
	DocumentType   string
	CompanyID      *int64
	Prefix         string
	Pattern        string
	CurrentNumber  int64
	StartingNumber int64
	MinDigits      int
	Reset          ResetFrequency
	LastResetKey   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PeriodKey derives the reset bucket for a date. An empty key means the
// counter never resets.
func (f Format) PeriodKey(asOf time.Time) string {
	switch f.Reset {
	case ResetYearly:
		return fmt.Sprintf("%04d", asOf.Year())
	case ResetQuarterly:
		return fmt.Sprintf("%04d-Q%d", asOf.Year(), quarterOf(asOf))
	case ResetMonthly:
		return fmt.Sprintf("%04d-%02d", asOf.Year(), int(asOf.Month()))
	default:
		return ""
	}
}

func quarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}
