package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/reconciler/internal/jobs"
)

type stubIntegrityStore struct {
	unbalanced, inconsistent, orphaned []int64
	err                                error
}

func (s stubIntegrityStore) UnbalancedEntries(context.Context) ([]int64, error) {
	return s.unbalanced, s.err
}

func (s stubIntegrityStore) InconsistentTransactions(context.Context) ([]int64, error) {
	return s.inconsistent, nil
}

func (s stubIntegrityStore) OrphanedEntries(context.Context) ([]int64, error) {
	return s.orphaned, nil
}

func TestLedgerIntegrityReportsFindings(t *testing.T) {
	job := &LedgerIntegrityJob{
		Store:   stubIntegrityStore{unbalanced: []int64{7}, orphaned: []int64{9, 11}},
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Equal(t, []int64{7}, report.UnbalancedEntries)
	require.Empty(t, report.InconsistentTransactions)
	require.Equal(t, []int64{9, 11}, report.OrphanedEntries)
}

func TestLedgerIntegrityCleanAndFailures(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())

	report, err := (&LedgerIntegrityJob{Store: stubIntegrityStore{}, Metrics: metrics}).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Clean())

	_, err = (&LedgerIntegrityJob{Store: stubIntegrityStore{err: errors.New("boom")}, Metrics: metrics}).Run(context.Background())
	require.Error(t, err)

	_, err = (&LedgerIntegrityJob{}).Run(context.Background())
	require.Error(t, err)
}

type recordingPurger struct {
	olderThan time.Duration
}

func (p *recordingPurger) Cleanup(_ context.Context, olderThan time.Duration) error {
	p.olderThan = olderThan
	return nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	purger := &recordingPurger{}
	job := &IdempotencyCleanupJob{Store: purger}

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, purger.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 72*time.Hour, purger.olderThan)

	err = job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
