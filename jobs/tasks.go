package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance carries integrity checks and cleanup.
	QueueMaintenance = "maintenance"
	// TaskReconcileAuto runs automatic reconciliation over pending bank transactions.
	TaskReconcileAuto = "reconciliation:auto"
	// TaskLedgerIntegrity scans the ledger for unbalanced or orphaned postings.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// AutoReconcilePayload scopes one batch run. With TransactionIDs set only
// those transactions are considered; otherwise up to Limit pending ones.
type AutoReconcilePayload struct {
	Limit          int     `json:"limit,omitempty"`
	TransactionIDs []int64 `json:"transaction_ids,omitempty"`
}

// NewAutoReconcileTask builds a batch task for payload.
func NewAutoReconcileTask(payload AutoReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileAuto, data, asynq.Timeout(15*time.Minute)), nil
}

// NewLedgerIntegrityTask builds the integrity check task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds a cleanup task for retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
