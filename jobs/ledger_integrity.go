package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/odyssey-erp/reconciler/internal/jobs"
)

// IntegrityReport lists ledger rows breaking a posting invariant.
type IntegrityReport struct {
	UnbalancedEntries        []int64 `json:"unbalanced_entries"`
	InconsistentTransactions []int64 `json:"inconsistent_transactions"`
	OrphanedEntries          []int64 `json:"orphaned_entries"`
}

// Clean reports whether nothing was found.
func (r IntegrityReport) Clean() bool {
	return len(r.UnbalancedEntries) == 0 && len(r.InconsistentTransactions) == 0 && len(r.OrphanedEntries) == 0
}

// IntegrityStore runs the ledger consistency queries.
type IntegrityStore interface {
	UnbalancedEntries(ctx context.Context) ([]int64, error)
	InconsistentTransactions(ctx context.Context) ([]int64, error)
	OrphanedEntries(ctx context.Context) ([]int64, error)
}

// LedgerIntegrityJob checks that every entry balances, that matched
// transactions point at an entry and that bank entries still have their
// transaction. Findings are logged and counted; the ledger is not modified.
type LedgerIntegrityJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle runs the check for asynq.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Run(ctx)
	return err
}

// Run collects every kind of inconsistency. Findings are logged, not returned as errors.
func (j *LedgerIntegrityJob) Run(ctx context.Context) (report IntegrityReport, err error) {
	if j == nil || j.Store == nil {
		return report, errors.New("ledger integrity: store not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskLedgerIntegrity)
	defer func() { err = tracker.End(err) }()
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskLedgerIntegrity))
	start := time.Now()

	if report.UnbalancedEntries, err = j.Store.UnbalancedEntries(ctx); err != nil {
		return report, err
	}
	if report.InconsistentTransactions, err = j.Store.InconsistentTransactions(ctx); err != nil {
		return report, err
	}
	if report.OrphanedEntries, err = j.Store.OrphanedEntries(ctx); err != nil {
		return report, err
	}

	for kind, ids := range map[string][]int64{
		"unbalanced_entry":         report.UnbalancedEntries,
		"inconsistent_transaction": report.InconsistentTransactions,
		"orphaned_entry":           report.OrphanedEntries,
	} {
		if len(ids) == 0 {
			continue
		}
		metrics.AddIntegrityIssues(kind, len(ids))
		logger.Error("ledger integrity violation", slog.String("kind", kind), slog.Any("ids", ids))
	}
	logger.Info("ledger integrity check completed", slog.Bool("clean", report.Clean()), slog.Duration("duration", time.Since(start)))
	return report, nil
}

type pgIntegrityStore struct {
	pool *pgxpool.Pool
}

// NewIntegrityStore runs the integrity queries against pool.
func NewIntegrityStore(pool *pgxpool.Pool) IntegrityStore {
	return &pgIntegrityStore{pool: pool}
}

func (s *pgIntegrityStore) UnbalancedEntries(ctx context.Context) ([]int64, error) {
	return s.ids(ctx, `SELECT je_id FROM journal_lines GROUP BY je_id
HAVING ABS(SUM(debit) - SUM(credit)) > 0.01 OR COUNT(*) < 2 ORDER BY je_id`)
}

func (s *pgIntegrityStore) InconsistentTransactions(ctx context.Context) ([]int64, error) {
	return s.ids(ctx, `SELECT t.id FROM bank_transactions t
LEFT JOIN journal_entries e ON e.id = t.journal_entry_id
WHERE t.matched <> (t.journal_entry_id IS NOT NULL) OR (t.journal_entry_id IS NOT NULL AND e.id IS NULL)
ORDER BY t.id`)
}

func (s *pgIntegrityStore) OrphanedEntries(ctx context.Context) ([]int64, error) {
	return s.ids(ctx, `SELECT e.id FROM journal_entries e
LEFT JOIN bank_transactions t ON t.journal_entry_id = e.id
WHERE e.reference_type = 'bank_transaction' AND t.id IS NULL ORDER BY e.id`)
}

func (s *pgIntegrityStore) ids(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
