package numbering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpandTokens(t *testing.T) {
	asOf := time.Date(2024, time.November, 3, 0, 0, 0, 0, time.UTC)
	f := Format{Prefix: "PAY", MinDigits: 3}

	cases := []struct {
		pattern string
		want    string
	}{
		{"{PREFIX}-{YYYY}{MM}-{####}", "PAY-202411-0007"},
		{"{PREFIX}/{YY}/{DD}/{###}", "PAY/24/03/007"},
		{"{FY}-{Q}-{#}", "FY2024-4-007"},
		{"{COMPANY}-{BRANCH}-{####}", "ACME-JKT-0007"},
		{"{PREFIX}-", "PAY-007"},
	}
	for _, tc := range cases {
		f.Pattern = tc.pattern
		got := f.Expand(7, asOf, TokenContext{CompanyCode: "ACME", BranchCode: "JKT"})
		require.Equal(t, tc.want, got, "pattern %s", tc.pattern)
	}
}

func TestPeriodKeyPerFrequency(t *testing.T) {
	asOf := time.Date(2024, time.August, 20, 0, 0, 0, 0, time.UTC)

	require.Equal(t, "", Format{Reset: ResetNever}.PeriodKey(asOf))
	require.Equal(t, "2024", Format{Reset: ResetYearly}.PeriodKey(asOf))
	require.Equal(t, "2024-Q3", Format{Reset: ResetQuarterly}.PeriodKey(asOf))
	require.Equal(t, "2024-08", Format{Reset: ResetMonthly}.PeriodKey(asOf))
}

func TestCeiling(t *testing.T) {
	require.EqualValues(t, 9999, Format{Pattern: "X-{####}"}.Ceiling())
	require.EqualValues(t, 99999, Format{Pattern: "X-{####}", MinDigits: 5}.Ceiling())
	require.EqualValues(t, 999, Format{Pattern: "X-", MinDigits: 3}.Ceiling())
}
