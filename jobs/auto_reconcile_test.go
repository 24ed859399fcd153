package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reconciler/internal/banking"
	jobmetrics "github.com/odyssey-erp/reconciler/internal/jobs"
	"github.com/odyssey-erp/reconciler/internal/reconciliation"
	"github.com/odyssey-erp/reconciler/internal/training"
)

type stubReconciler struct {
	mu        sync.Mutex
	txs       []banking.Transaction
	outcomes  map[int64]reconciliation.Outcome
	fail      map[int64]bool
	snapshots map[*training.Snapshot]int
	listed    banking.Filter
	during    func(tx banking.Transaction)
}

func (s *stubReconciler) Get(ctx context.Context, id int64) (banking.Transaction, error) {
	for _, tx := range s.txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return banking.Transaction{}, banking.ErrTransactionNotFound
}

func (s *stubReconciler) List(ctx context.Context, filter banking.Filter) ([]banking.Transaction, error) {
	s.listed = filter
	return s.txs, nil
}

func (s *stubReconciler) AutoReconcile(ctx context.Context, tx banking.Transaction, snap *training.Snapshot) (reconciliation.AutoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap]++
	if s.during != nil {
		s.during(tx)
	}
	if s.fail[tx.ID] {
		return reconciliation.AutoResult{Outcome: reconciliation.OutcomeFailed}, errors.New("boom")
	}
	return reconciliation.AutoResult{Outcome: s.outcomes[tx.ID]}, nil
}

type countingPatterns struct{ calls int }

func (c *countingPatterns) Snapshot(ctx context.Context) (*training.Snapshot, error) {
	c.calls++
	return training.NewSnapshot(int64(c.calls), nil), nil
}

func pendingTxs(ids ...int64) []banking.Transaction {
	out := make([]banking.Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, banking.Transaction{ID: id, Amount: decimal.NewFromInt(10)})
	}
	return out
}

func newStubReconciler(ids ...int64) *stubReconciler {
	return &stubReconciler{
		txs:       pendingTxs(ids...),
		outcomes:  map[int64]reconciliation.Outcome{},
		fail:      map[int64]bool{},
		snapshots: map[*training.Snapshot]int{},
	}
}

func TestAutoReconcileJobCountsOutcomes(t *testing.T) {
	svc := newStubReconciler(1, 2, 3, 4, 5, 6)
	svc.outcomes[1] = reconciliation.OutcomePosted
	svc.outcomes[2] = reconciliation.OutcomePosted
	svc.outcomes[3] = reconciliation.OutcomeQuestion
	svc.outcomes[4] = reconciliation.OutcomeAlreadyMatched
	svc.outcomes[5] = reconciliation.OutcomeClaimed
	svc.fail[6] = true
	patterns := &countingPatterns{}

	job := &AutoReconcileJob{
		Service:     svc,
		Patterns:    patterns,
		Metrics:     jobmetrics.NewMetrics(prometheus.NewRegistry()),
		Concurrency: 3,
		Limit:       50,
	}
	stats, err := job.Run(context.Background(), AutoReconcilePayload{})
	require.NoError(t, err)
	require.Equal(t, AutoReconcileStats{Processed: 6, Reconciled: 2, NeedsReview: 1, Failed: 1, AlreadyReconciled: 1, Claimed: 1}, stats)
	require.Equal(t, 1, patterns.calls, "one snapshot per batch")
	require.Len(t, svc.snapshots, 1)
	require.Equal(t, banking.Filter{State: banking.StatePending, Limit: 50}, svc.listed)
}

func TestAutoReconcileJobSelectedTransactions(t *testing.T) {
	svc := newStubReconciler(1, 2, 3)
	svc.outcomes[2] = reconciliation.OutcomePosted
	job := &AutoReconcileJob{Service: svc, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	stats, err := job.Run(context.Background(), AutoReconcilePayload{TransactionIDs: []int64{2, 99}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Processed)
	require.Equal(t, 1, stats.Reconciled)
}

func TestAutoReconcileJobSkipsWhenBatchLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	claims := banking.NewClaims(client, time.Minute)

	held, ok, err := claims.ClaimBatch(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	svc := newStubReconciler(1)
	svc.outcomes[1] = reconciliation.OutcomePosted
	job := &AutoReconcileJob{Service: svc, Locks: claims, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	stats, err := job.Run(context.Background(), AutoReconcilePayload{})
	require.NoError(t, err)
	require.True(t, stats.Skipped)
	require.Zero(t, stats.Processed)

	require.NoError(t, held.Release(context.Background()))
	stats, err = job.Run(context.Background(), AutoReconcilePayload{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Reconciled)

	_, ok, err = claims.ClaimBatch(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "batch lock released after the run")
}

func TestAutoReconcileJobKeepsBatchLockDuringLongRun(t *testing.T) {
	claims := banking.NewClaims(nil, time.Minute).WithBatchTTL(60 * time.Millisecond)

	var stolen bool
	svc := newStubReconciler(1)
	svc.outcomes[1] = reconciliation.OutcomePosted
	svc.during = func(banking.Transaction) {
		time.Sleep(200 * time.Millisecond)
		_, stolen, _ = claims.ClaimBatch(context.Background())
	}
	job := &AutoReconcileJob{Service: svc, Locks: claims, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	stats, err := job.Run(context.Background(), AutoReconcilePayload{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Reconciled)
	require.False(t, stolen, "batch lock lapsed while the run was still going")

	_, ok, err := claims.ClaimBatch(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

type stubIntegrity struct {
	unbalanced []int64
	err        error
}

func (s stubIntegrity) UnbalancedEntries(ctx context.Context) ([]int64, error) {
	return s.unbalanced, s.err
}
func (s stubIntegrity) InconsistentTransactions(ctx context.Context) ([]int64, error) {
	return nil, nil
}
func (s stubIntegrity) OrphanedEntries(ctx context.Context) ([]int64, error) { return nil, nil }

func TestLedgerIntegrityJob(t *testing.T) {
	job := &LedgerIntegrityJob{Store: stubIntegrity{unbalanced: []int64{7}}, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Equal(t, []int64{7}, report.UnbalancedEntries)

	job.Store = stubIntegrity{err: errors.New("db down")}
	_, err = job.Run(context.Background())
	require.Error(t, err)
}
