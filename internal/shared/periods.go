package shared

import "errors"

// Period statuses reused outside the accounting module. OPEN and SOFT_CLOSED
// are reversible; HARD_CLOSED is terminal.
const (
	PeriodStatusOpen       = "OPEN"
	PeriodStatusSoftClosed = "SOFT_CLOSED"
	PeriodStatusHardClosed = "HARD_CLOSED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// ValidatePeriodTransition checks transitions according to policy.
func ValidatePeriodTransition(current, target string) error {
	if current == target {
		return nil
	}
	switch current {
	case PeriodStatusOpen:
		if target == PeriodStatusSoftClosed || target == PeriodStatusHardClosed {
			return nil
		}
	case PeriodStatusSoftClosed:
		if target == PeriodStatusOpen || target == PeriodStatusHardClosed {
			return nil
		}
	case PeriodStatusHardClosed:
		// Terminal.
	}
	return ErrInvalidPeriodTransition
}
