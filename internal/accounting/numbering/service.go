package numbering

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// MetricsPort counts issued numbers.
type MetricsPort interface {
	NumberIssued(documentType string)
}

// Generator issues unique, format-driven document numbers. The counter row is
// the sole source of truth; it is always locked before incrementing, so two
// concurrent callers never observe the same value.
type Generator struct {
	repo    Repository
	metrics MetricsPort
}

func NewGenerator(repo Repository) *Generator {
	return &Generator{repo: repo}
}

// WithMetrics attaches an optional metrics sink.
func (g *Generator) WithMetrics(m MetricsPort) {
	g.metrics = m
}

// NextInput identifies the counter and supplies token values.
type NextInput struct {
	DocumentType string
	CompanyID    int64
	AsOf         time.Time
	Tokens       TokenContext
}

// Next issues the next number for (document type, company) as of a date.
// When the reset bucket rolls over the counter restarts from its starting
// number. The whole read-increment-write cycle runs under the row lock.
func (g *Generator) Next(ctx context.Context, in NextInput) (string, error) {
	if in.DocumentType == "" {
		return "", errors.New("numbering: document type required")
	}
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	var issued string
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		format, err := tx.GetFormatForUpdate(ctx, in.DocumentType, in.CompanyID)
		if err != nil {
			return err
		}
		current := format.CurrentNumber
		resetKey := format.LastResetKey
		if key := format.PeriodKey(asOf); key != "" && key != format.LastResetKey {
			current = format.StartingNumber - 1
			resetKey = key
		}
		next := current + 1
		if next > format.Ceiling() {
			return shared.ErrSequenceExhausted
		}
		if err := tx.UpdateCounter(ctx, format.ID, next, resetKey); err != nil {
			return err
		}
		issued = format.Expand(next, asOf, in.Tokens)
		return nil
	})
	if err != nil {
		return "", err
	}
	if g.metrics != nil {
		g.metrics.NumberIssued(in.DocumentType)
	}
	return issued, nil
}
