package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/reconciler/internal/banking"
	jobmetrics "github.com/odyssey-erp/reconciler/internal/jobs"
	"github.com/odyssey-erp/reconciler/internal/reconciliation"
	"github.com/odyssey-erp/reconciler/internal/training"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Reconciler is the slice of the reconciliation service a batch run needs.
type Reconciler interface {
	Get(ctx context.Context, id int64) (banking.Transaction, error)
	List(ctx context.Context, filter banking.Filter) ([]banking.Transaction, error)
	AutoReconcile(ctx context.Context, tx banking.Transaction, snap *training.Snapshot) (reconciliation.AutoResult, error)
}

// PatternSource hands out pattern snapshots.
type PatternSource interface {
	Snapshot(ctx context.Context) (*training.Snapshot, error)
}

// BatchLocker keeps two schedulers from running the same batch. The lock is
// refreshed at a third of BatchTTL while the run lasts.
type BatchLocker interface {
	ClaimBatch(ctx context.Context) (banking.Lease, bool, error)
	BatchTTL() time.Duration
}

// AutoReconcileStats counts per-outcome results of one batch run.
type AutoReconcileStats struct {
	Processed         int  `json:"processed"`
	Reconciled        int  `json:"reconciled"`
	NeedsReview       int  `json:"needs_review"`
	Failed            int  `json:"failed"`
	AlreadyReconciled int  `json:"already_reconciled"`
	Claimed           int  `json:"claimed"`
	Skipped           bool `json:"skipped,omitempty"`
}

func (s *AutoReconcileStats) add(outcome reconciliation.Outcome) {
	s.Processed++
	switch outcome {
	case reconciliation.OutcomePosted:
		s.Reconciled++
	case reconciliation.OutcomeQuestion:
		s.NeedsReview++
	case reconciliation.OutcomeAlreadyMatched:
		s.AlreadyReconciled++
	case reconciliation.OutcomeClaimed:
		s.Claimed++
	default:
		s.Failed++
	}
}

// AutoReconcileJob runs automatic reconciliation over pending transactions.
// One pattern snapshot is taken per run so every transaction in the batch
// is judged by the same rules.
type AutoReconcileJob struct {
	Service     Reconciler
	Patterns    PatternSource
	Locks       BatchLocker
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	Limit       int
}

// Handle decodes the payload and runs one batch.
func (j *AutoReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("auto reconcile: handler not configured")
	}
	var payload AutoReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run executes one batch. Per-transaction failures are counted, not
// returned; only failing to start the batch is an error.
func (j *AutoReconcileJob) Run(ctx context.Context, payload AutoReconcilePayload) (stats AutoReconcileStats, err error) {
	tracker := j.metrics().Track(TaskReconcileAuto)
	defer func() { err = tracker.End(err) }()
	logger := j.logger()
	start := time.Now()

	if j.Locks != nil {
		lease, ok, lockErr := j.Locks.ClaimBatch(ctx)
		if lockErr != nil {
			return stats, lockErr
		}
		if !ok {
			logger.Info("another batch is running, skipping")
			stats.Skipped = true
			return stats, nil
		}
		defer func() {
			if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
				logger.Warn("release batch lock", slog.Any("error", relErr))
			}
		}()
		stop := keepLease(ctx, lease, j.Locks.BatchTTL()/3, logger)
		defer stop()
	}

	var snap *training.Snapshot
	if j.Patterns != nil {
		if snap, err = j.Patterns.Snapshot(ctx); err != nil {
			return stats, err
		}
	}
	txs, err := j.pending(ctx, payload)
	if err != nil {
		return stats, err
	}
	logger.Info("starting auto reconciliation",
		slog.Int("transactions", len(txs)),
		slog.Int64("pattern_version", snapshotVersion(snap)))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(j.concurrency())
	for _, tx := range txs {
		g.Go(func() error {
			res, runErr := j.Service.AutoReconcile(ctx, tx, snap)
			if runErr != nil {
				logger.Error("auto reconcile transaction",
					slog.Int64("transaction_id", tx.ID),
					slog.String("outcome", string(res.Outcome)),
					slog.Any("error", runErr))
				res.Outcome = reconciliation.OutcomeFailed
			}
			mu.Lock()
			stats.add(res.Outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("completed auto reconciliation",
		slog.Int("processed", stats.Processed),
		slog.Int("reconciled", stats.Reconciled),
		slog.Int("needs_review", stats.NeedsReview),
		slog.Int("failed", stats.Failed),
		slog.Int("already_reconciled", stats.AlreadyReconciled),
		slog.Int("claimed", stats.Claimed),
		slog.Duration("duration", time.Since(start)))
	return stats, ctx.Err()
}

func (j *AutoReconcileJob) pending(ctx context.Context, payload AutoReconcilePayload) ([]banking.Transaction, error) {
	if len(payload.TransactionIDs) == 0 {
		limit := payload.Limit
		if limit <= 0 {
			limit = j.Limit
		}
		return j.Service.List(ctx, banking.Filter{State: banking.StatePending, Limit: limit})
	}
	out := make([]banking.Transaction, 0, len(payload.TransactionIDs))
	for _, id := range payload.TransactionIDs {
		tx, err := j.Service.Get(ctx, id)
		if errors.Is(err, banking.ErrTransactionNotFound) {
			j.logger().Warn("transaction not found", slog.Int64("transaction_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func snapshotVersion(snap *training.Snapshot) int64 {
	if snap == nil {
		return 0
	}
	return snap.Version
}

func (j *AutoReconcileJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return 4
}

func (j *AutoReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconcileAuto))
	}
	return slog.Default().With(slog.String("job", TaskReconcileAuto))
}

func (j *AutoReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// keepLease refreshes lease every interval until the returned stop func is
// called. stop waits for the refresher to exit.
func keepLease(ctx context.Context, lease banking.Lease, every time.Duration, logger *slog.Logger) func() {
	if every <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lease.Refresh(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("refresh batch lock", slog.Any("error", err))
					if errors.Is(err, banking.ErrLeaseLost) {
						return
					}
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
