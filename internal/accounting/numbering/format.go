package numbering

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var hashRun = regexp.MustCompile(`\{#+\}`)

// TokenContext supplies caller-provided values for pattern tokens.
type TokenContext struct {
	CompanyCode string
	BranchCode  string
}

// Expand substitutes pattern tokens and the zero-padded sequence placeholder.
// The sequence width is the larger of the hash run length and the configured
// minimum digits.
func (f Format) Expand(seq int64, asOf time.Time, tc TokenContext) string {
	out := f.Pattern
	replacements := []struct{ token, value string }{
		{"{PREFIX}", f.Prefix},
		{"{YYYY}", fmt.Sprintf("%04d", asOf.Year())},
		{"{YY}", fmt.Sprintf("%02d", asOf.Year()%100)},
		{"{MM}", fmt.Sprintf("%02d", int(asOf.Month()))},
		{"{DD}", fmt.Sprintf("%02d", asOf.Day())},
		{"{FY}", fiscalYearLabel(asOf)},
		{"{Q}", fmt.Sprintf("%d", quarterOf(asOf))},
		{"{COMPANY}", tc.CompanyCode},
		{"{BRANCH}", tc.BranchCode},
	}
	for _, r := range replacements {
		out = strings.ReplaceAll(out, r.token, r.value)
	}
	if !hashRun.MatchString(out) {
		// No placeholder: append the sequence at the configured minimum width.
		return out + fmt.Sprintf("%0*d", f.MinDigits, seq)
	}
	return hashRun.ReplaceAllStringFunc(out, func(match string) string {
		return fmt.Sprintf("%0*d", f.SequenceWidth(match), seq)
	})
}

// SequenceWidth returns the zero-pad width for a hash placeholder like {####}.
func (f Format) SequenceWidth(placeholder string) int {
	width := strings.Count(placeholder, "#")
	if f.MinDigits > width {
		width = f.MinDigits
	}
	return width
}

// Ceiling is the largest sequence value the pattern can represent without
// widening beyond its digit placeholder.
func (f Format) Ceiling() int64 {
	match := hashRun.FindString(f.Pattern)
	if match == "" {
		// No placeholder: the sequence is appended raw, so only the
		// configured minimum bounds it.
		match = "{" + strings.Repeat("#", f.MinDigits) + "}"
	}
	width := f.SequenceWidth(match)
	ceiling := int64(1)
	for i := 0; i < width; i++ {
		ceiling *= 10
	}
	return ceiling - 1
}

func fiscalYearLabel(asOf time.Time) string {
	return fmt.Sprintf("FY%04d", asOf.Year())
}
