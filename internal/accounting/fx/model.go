package fx

import "time"

// Rate is one exchange-rate observation: 1 unit of FromCurrency equals Rate
// units of ToCurrency on RateDate.
type Rate struct {
	ID           int64
	FromCurrency string
	ToCurrency   string
	RateDate     time.Time
	Rate         float64
	CreatedAt    time.Time
}

// AccountExposure is the foreign-currency position of one account: the
// foreign balance still on the books and its recorded base-currency value.
type AccountExposure struct {
	AccountID     int64
	AccountCode   string
	Currency      string
	BalanceFC     float64
	BookValueBase float64
}

// RevaluationLine is the computed adjustment for one exposed account.
type RevaluationLine struct {
	AccountID   int64
	AccountCode string
	Currency    string
	BalanceFC   float64
	BookValue   float64
	Rate        float64
	Revalued    float64
	GainLoss    float64
}

// RevaluationSummary is the read-only preview of a revaluation run.
// SkippedAccounts lists accounts with no resolvable rate; they are excluded
// from the run rather than failing it.
type RevaluationSummary struct {
	PeriodID        int64
	AsOf            time.Time
	BaseCurrency    string
	Lines           []RevaluationLine
	TotalGain       float64
	TotalLoss       float64
	SkippedAccounts []int64
}
