package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyPurger deletes idempotency keys older than a cutoff.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob purges idempotency keys past their retention.
type IdempotencyCleanupJob struct {
	Store  KeyPurger
	Logger *slog.Logger
}

// Handle purges keys older than the payload's retention.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	payload := IdempotencyCleanupPayload{RetentionHours: 72}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	tracker := defaultJobMetrics.Track(TaskIdempotencyCleanup)
	err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err == nil && j.Logger != nil {
		j.Logger.Info("idempotency keys purged", slog.Int("retention_hours", payload.RetentionHours))
	}
	return tracker.End(err)
}
