package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reconciler/internal/banking"
	"github.com/odyssey-erp/reconciler/internal/reconciliation"
	"github.com/odyssey-erp/reconciler/internal/training"
	"github.com/odyssey-erp/reconciler/jobs"
)

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

func TestIntegrityCommandClean(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewIntegrityCLI(stubIntegrity{}, nil).CheckCommand(context.Background(), IntegrityOptions{Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "consistent")
	require.Empty(t, stderr.String())
}

func TestIntegrityCommandJSONIssues(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewIntegrityCLI(stubIntegrity{unbalanced: []int64{7, 9}}, nil).CheckCommand(context.Background(), IntegrityOptions{
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitIssuesFound, code)

	var summary struct {
		OK         bool    `json:"ok"`
		Unbalanced []int64 `json:"unbalanced_entries"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, []int64{7, 9}, summary.Unbalanced)
}

func TestIntegrityCommandStoreError(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := NewIntegrityCLI(stubIntegrity{err: errors.New("connection refused")}, nil).CheckCommand(context.Background(), IntegrityOptions{
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "connection refused")
}

type stubReconciler struct {
	outcomes map[int64]reconciliation.Outcome
}

func (s stubReconciler) Get(ctx context.Context, id int64) (banking.Transaction, error) {
	if _, ok := s.outcomes[id]; !ok {
		return banking.Transaction{}, banking.ErrTransactionNotFound
	}
	return banking.Transaction{ID: id, Amount: decimal.NewFromInt(10)}, nil
}

func (s stubReconciler) List(ctx context.Context, filter banking.Filter) ([]banking.Transaction, error) {
	var out []banking.Transaction
	for id := range s.outcomes {
		out = append(out, banking.Transaction{ID: id, Amount: decimal.NewFromInt(10)})
	}
	return out, nil
}

func (s stubReconciler) AutoReconcile(ctx context.Context, tx banking.Transaction, snap *training.Snapshot) (reconciliation.AutoResult, error) {
	outcome := s.outcomes[tx.ID]
	if outcome == reconciliation.OutcomeFailed {
		return reconciliation.AutoResult{Outcome: outcome}, errors.New("boom")
	}
	return reconciliation.AutoResult{Outcome: outcome}, nil
}

func TestAutoCommandSelectedTransactions(t *testing.T) {
	job := &jobs.AutoReconcileJob{Service: stubReconciler{outcomes: map[int64]reconciliation.Outcome{
		1: reconciliation.OutcomePosted,
		2: reconciliation.OutcomeQuestion,
	}}}
	stdout := new(bytes.Buffer)
	code := NewAutoCLI(job).RunCommand(context.Background(), AutoOptions{
		TransactionIDs: []int64{1, 2, 404},
		JSONOutput:     true,
		Stdout:         stdout,
		Stderr:         new(bytes.Buffer),
	})
	require.Zero(t, code)

	var stats jobs.AutoReconcileStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, 2, stats.Processed)
	require.Equal(t, 1, stats.Reconciled)
	require.Equal(t, 1, stats.NeedsReview)
}

func TestAutoCommandReportsFailures(t *testing.T) {
	job := &jobs.AutoReconcileJob{Service: stubReconciler{outcomes: map[int64]reconciliation.Outcome{
		1: reconciliation.OutcomeFailed,
	}}}
	stdout := new(bytes.Buffer)
	code := NewAutoCLI(job).RunCommand(context.Background(), AutoOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitIssuesFound, code)
	require.Contains(t, stdout.String(), "1 failed")
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskReconcileAuto, TriggerOptions{TransactionIDs: []int64{3}})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskReconcileAuto, task.Type())
	require.JSONEq(t, `{"transaction_ids":[3]}`, string(task.Payload()))

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, TriggerOptions{Retention: 48 * time.Hour})
	require.NoError(t, err)
	require.JSONEq(t, `{"retention_hours":48}`, string(task.Payload()))

	_, err = BuildTask("reports:refresh", TriggerOptions{})
	require.Error(t, err)
}

func TestQueueForRoutesMaintenanceTasks(t *testing.T) {
	require.Equal(t, jobs.QueueDefault, QueueFor(jobs.TaskReconcileAuto))
	require.Equal(t, jobs.QueueMaintenance, QueueFor(jobs.TaskLedgerIntegrity))
	require.Equal(t, jobs.QueueMaintenance, QueueFor(jobs.TaskIdempotencyCleanup))
}
