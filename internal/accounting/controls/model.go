package controls

import "time"

// Controls is the per-company posting policy. A row with CompanyID nil is the
// global default returned when no company-specific row exists.
type Controls struct {
	CompanyID                 *int64
	BackdatingDaysAllowed     int
	FuturePostingDaysAllowed  int
	AllowSoftClosedPostings   bool
	FXGainAccountID           int64
	FXLossAccountID           int64
	RetainedEarningsAccountID int64
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}
