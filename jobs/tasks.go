package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrityScan verifies posted entries against their line sums.
	TaskGLIntegrityScan = "gl:integrity_scan"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskFXRevaluation runs a period-end revaluation for one company.
	TaskFXRevaluation = "fx:revaluation"
)

// GLIntegrityScanPayload bounds one scan run.
type GLIntegrityScanPayload struct {
	BatchSize int `json:"batch_size"`
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	RetainFor time.Duration `json:"retain_for"`
}

// FXRevaluationPayload identifies the revaluation target.
type FXRevaluationPayload struct {
	PeriodID     int64  `json:"period_id"`
	BaseCurrency string `json:"base_currency"`
	ActorID      int64  `json:"actor_id"`
}

// NewGLIntegrityScanTask constructs the scan task.
func NewGLIntegrityScanTask(payload GLIntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrityScan, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewFXRevaluationTask constructs the revaluation task.
func NewFXRevaluationTask(payload FXRevaluationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFXRevaluation, data), nil
}
