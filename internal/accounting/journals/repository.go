package journals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
)

// Repository encapsulates read-side DB operations for journals.
type Repository interface {
	List(ctx context.Context, limit int) ([]JournalEntry, error)
	Get(ctx context.Context, id int64) (JournalEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed journal reader.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, number, date, competence_date, description, document_type, reference_type, reference_id, source_module, source_id, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row, e *JournalEntry) error {
	return row.Scan(&e.ID, &e.Number, &e.Date, &e.CompetenceDate, &e.Description, &e.DocumentType, &e.ReferenceType, &e.ReferenceID, &e.SourceModule, &e.SourceID, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
}

func (r *repository) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		entry, err = NewTxStore(tx).GetJournalWithLines(ctx, id)
		return err
	})
	return entry, err
}

// TxStore exposes journal writes bound to an open transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore writes journal rows inside tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// InsertJournalEntry stores the entry header.
func (s *TxStore) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, competence_date, description, document_type, reference_type, reference_id, source_module, source_id, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, number, posted_at, created_at, updated_at`,
		in.Date, in.CompetenceDate, in.Description, in.DocumentType, in.ReferenceType, in.ReferenceID, in.SourceModule, in.SourceID, in.PostedBy)
	entry := JournalEntry{
		Date:           in.Date,
		CompetenceDate: in.CompetenceDate,
		Description:    in.Description,
		DocumentType:   in.DocumentType,
		ReferenceType:  in.ReferenceType,
		ReferenceID:    in.ReferenceID,
		SourceModule:   in.SourceModule,
		SourceID:       in.SourceID,
		PostedBy:       in.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// InsertJournalLines stores the lines of entryID.
func (s *TxStore) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_lines (je_id, account_id, debit, credit, memo) VALUES ($1,$2,$3,$4,$5)`,
			entryID, line.AccountID, line.Debit.StringFixed(2), line.Credit.StringFixed(2), line.Memo)
	}
	return s.tx.SendBatch(ctx, batch).Close()
}

// LinkSource ties entryID to its source, or returns shared.ErrSourceConflict.
func (s *TxStore) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, je_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_source_links" {
			return shared.ErrSourceConflict
		}
		return err
	}
	return nil
}

// GetJournalWithLines loads an entry and its lines.
func (s *TxStore) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	if err := scanEntry(s.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID), &entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := s.tx.Query(ctx, `SELECT l.id, l.je_id, l.account_id, a.code, l.debit, l.credit, l.memo, l.created_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id WHERE l.je_id=$1 ORDER BY l.id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.AccountCode, &line.Debit, &line.Credit, &line.Memo, &line.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// DeleteJournalEntry removes the entry, its source link and (by cascade) its lines.
func (s *TxStore) DeleteJournalEntry(ctx context.Context, entryID int64) error {
	if _, err := s.tx.Exec(ctx, `DELETE FROM source_links WHERE je_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := s.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}
