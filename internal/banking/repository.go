package banking

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
)

// Filter narrows transaction listings.
type Filter struct {
	State State
	Limit int
}

// Repository reads bank transactions outside of posting transactions.
type Repository interface {
	Get(ctx context.Context, id int64) (Transaction, error)
	List(ctx context.Context, filter Filter) ([]Transaction, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed bank transaction repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const txColumns = `id, bank_account_code, date, description, amount, matched, journal_entry_id, version, imported_at`

func scanTransaction(row pgx.Row, t *Transaction) error {
	return row.Scan(&t.ID, &t.BankAccountCode, &t.Date, &t.Description, &t.Amount, &t.Matched, &t.JournalEntryID, &t.Version, &t.ImportedAt)
}

func (r *repository) Get(ctx context.Context, id int64) (Transaction, error) {
	var t Transaction
	if err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM bank_transactions WHERE id=$1`, id), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `SELECT ` + txColumns + ` FROM bank_transactions`
	args := []any{limit}
	switch filter.State {
	case StatePending:
		query += ` WHERE matched = false`
	case StateMatched:
		query += ` WHERE matched = true`
	}
	query += ` ORDER BY date ASC, id ASC LIMIT $1`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TxStore exposes row-locking operations bound to an open transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore locks and updates bank transactions inside tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// LockTransaction reads the row under FOR UPDATE so the matched flag cannot
// change until commit.
func (s *TxStore) LockTransaction(ctx context.Context, id int64) (Transaction, error) {
	var t Transaction
	if err := scanTransaction(s.tx.QueryRow(ctx, `SELECT `+txColumns+` FROM bank_transactions WHERE id=$1 FOR UPDATE`, id), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

// MarkMatched links entryID, failing with *shared.ConcurrentMatchError when
// the row is already matched.
func (s *TxStore) MarkMatched(ctx context.Context, id, entryID int64) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE bank_transactions SET matched = true, journal_entry_id = $2, version = version + 1, updated_at = NOW()
WHERE id = $1 AND matched = false`, id, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &shared.ConcurrentMatchError{TransactionID: id}
	}
	return nil
}

// ClearMatch returns the row to pending.
func (s *TxStore) ClearMatch(ctx context.Context, id int64) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE bank_transactions SET matched = false, journal_entry_id = NULL, version = version + 1, updated_at = NOW()
WHERE id = $1 AND matched = true`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotMatched
	}
	return nil
}
