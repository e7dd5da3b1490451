package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// driftTolerance matches the posting tolerance; entries beyond it are
// corrupt, not rounding noise.
const driftTolerance = 0.01

// IntegrityMetrics reports scan results.
type IntegrityMetrics interface {
	SetIntegrityDrift(n int)
}

// GLIntegrityScanner cross-checks stored journal totals against their line
// sums. Posting keeps these consistent inside one transaction, so any drift
// means out-of-band writes or corruption and is worth paging on.
type GLIntegrityScanner struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics IntegrityMetrics
}

func NewGLIntegrityScanner(pool *pgxpool.Pool, logger *slog.Logger, metrics IntegrityMetrics) *GLIntegrityScanner {
	return &GLIntegrityScanner{pool: pool, logger: logger, metrics: metrics}
}

// DriftedEntry is one journal whose totals disagree with its lines.
type DriftedEntry struct {
	EntryID     int64
	Number      string
	TotalDebit  float64
	TotalCredit float64
	LineDebit   float64
	LineCredit  float64
}

const glIntegrityScanQuery = `
	SELECT je.id, je.number, je.total_debit, je.total_credit,
	       COALESCE(SUM(l.debit), 0) AS line_debit,
	       COALESCE(SUM(l.credit), 0) AS line_credit
	FROM journal_entries je
	JOIN gl_lines l ON l.je_id = je.id
	WHERE je.docstatus = 1
	GROUP BY je.id, je.number, je.total_debit, je.total_credit
	HAVING ABS(je.total_debit - COALESCE(SUM(l.debit), 0)) > $1
	    OR ABS(je.total_credit - COALESCE(SUM(l.credit), 0)) > $1
	    OR ABS(je.total_debit - je.total_credit) > $1
	ORDER BY je.id
	LIMIT $2`

// Scan returns up to limit posted entries whose stored totals drift from the
// line sums or whose stored debit and credit totals disagree.
func (s *GLIntegrityScanner) Scan(ctx context.Context, limit int) ([]DriftedEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, glIntegrityScanQuery, driftTolerance, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifted []DriftedEntry
	for rows.Next() {
		var d DriftedEntry
		if err := rows.Scan(&d.EntryID, &d.Number, &d.TotalDebit, &d.TotalCredit, &d.LineDebit, &d.LineCredit); err != nil {
			return nil, err
		}
		drifted = append(drifted, d)
	}
	return drifted, rows.Err()
}

// HandleTask processes TaskGLIntegrityScan tasks.
func (s *GLIntegrityScanner) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload GLIntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	drifted, err := s.Scan(ctx, payload.BatchSize)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetIntegrityDrift(len(drifted))
	}
	if s.logger != nil {
		for _, d := range drifted {
			s.logger.Error("journal totals drift from line sums",
				slog.Int64("entry_id", d.EntryID),
				slog.String("number", d.Number),
				slog.Float64("total_debit", d.TotalDebit),
				slog.Float64("line_debit", d.LineDebit),
				slog.Float64("total_credit", d.TotalCredit),
				slog.Float64("line_credit", d.LineCredit))
		}
		s.logger.Info("GL integrity scan finished", slog.Int("drifted", len(drifted)))
	}
	return nil
}
