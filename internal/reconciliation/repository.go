package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/journals"
	"github.com/odyssey-erp/reconciler/internal/banking"
	"github.com/odyssey-erp/reconciler/internal/platform/db"
	"github.com/odyssey-erp/reconciler/internal/targets"
	"github.com/odyssey-erp/reconciler/internal/training"
)

// Repository opens the database transactions reconciliation writes in.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is everything a posting or unmatch touches.
type TxRepository interface {
	LockTransaction(ctx context.Context, id int64) (banking.Transaction, error)
	MarkMatched(ctx context.Context, id, entryID int64) error
	ClearMatch(ctx context.Context, id int64) error
	InsertJournalEntry(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []journals.PostingLineInput) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetJournalWithLines(ctx context.Context, entryID int64) (journals.JournalEntry, error)
	DeleteJournalEntry(ctx context.Context, entryID int64) error
	ApplyPayment(ctx context.Context, t targets.Type, id int64, amount decimal.Decimal, date time.Time) error
	IncrementPatternUsage(ctx context.Context, id int64) error
	IncrementEntityUsage(ctx context.Context, id int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed posting repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

type (
	bankStore     = banking.TxStore
	journalStore  = journals.TxStore
	targetStore   = targets.TxStore
	trainingStore = training.TxStore
)

// txStore composes the per-package stores over one pgx transaction.
type txStore struct {
	*bankStore
	*journalStore
	*targetStore
	*trainingStore
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, txStore{
			bankStore:     banking.NewTxStore(tx),
			journalStore:  journals.NewTxStore(tx),
			targetStore:   targets.NewTxStore(tx),
			trainingStore: training.NewTxStore(tx),
		})
	})
}
