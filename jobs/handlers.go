package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// IdempotencyCleanupHandler prunes aged idempotency keys.
type IdempotencyCleanupHandler struct {
	store  *internalShared.IdempotencyStore
	logger *slog.Logger
	retain time.Duration
}

func NewIdempotencyCleanupHandler(store *internalShared.IdempotencyStore, logger *slog.Logger, retain time.Duration) *IdempotencyCleanupHandler {
	return &IdempotencyCleanupHandler{store: store, logger: logger, retain: retain}
}

// HandleTask processes TaskIdempotencyCleanup tasks.
func (h *IdempotencyCleanupHandler) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retain := payload.RetainFor
	if retain <= 0 {
		retain = h.retain
	}
	if err := h.store.Cleanup(ctx, retain); err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Info("idempotency cleanup finished", slog.Duration("retain", retain))
	}
	return nil
}

// FXRevaluationHandler runs a period-end revaluation in the background.
type FXRevaluationHandler struct {
	engine *fx.Engine
	logger *slog.Logger
}

func NewFXRevaluationHandler(engine *fx.Engine, logger *slog.Logger) *FXRevaluationHandler {
	return &FXRevaluationHandler{engine: engine, logger: logger}
}

// HandleTask processes TaskFXRevaluation tasks. A duplicate revaluation is a
// success: the first run already produced the adjustment.
func (h *FXRevaluationHandler) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload FXRevaluationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	entry, err := h.engine.Apply(ctx, fx.ApplyInput{
		PeriodID:     payload.PeriodID,
		ActorID:      payload.ActorID,
		BaseCurrency: payload.BaseCurrency,
	})
	switch {
	case errors.Is(err, shared.ErrDuplicateRevaluation):
		if h.logger != nil {
			h.logger.Info("revaluation already applied", slog.Int64("period_id", payload.PeriodID))
		}
		return nil
	case errors.Is(err, shared.ErrLockTimeout), errors.Is(err, internalShared.ErrLeaseHeld):
		// Retryable: another worker holds the period.
		return err
	case err != nil:
		return err
	}
	if h.logger != nil {
		h.logger.Info("revaluation posted",
			slog.Int64("period_id", payload.PeriodID),
			slog.String("number", entry.Number))
	}
	return nil
}
