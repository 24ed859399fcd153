package training

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/reconciler/internal/platform/db"
)

// Repository is the persistence port of the training subsystem.
type Repository interface {
	PatternSource
	ListQuestions(ctx context.Context, statuses []QuestionStatus, limit int) ([]PendingQuestion, error)
	GetQuestion(ctx context.Context, id int64) (PendingQuestion, error)
	ListEntities(ctx context.Context, limit int) ([]KnownEntity, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes writes available within a transaction.
type TxRepository interface {
	GetQuestionForUpdate(ctx context.Context, id int64) (PendingQuestion, error)
	FindQuestionByTransaction(ctx context.Context, transactionID int64) (PendingQuestion, error)
	InsertQuestion(ctx context.Context, q PendingQuestion) (PendingQuestion, error)
	UpdateQuestion(ctx context.Context, q PendingQuestion) error
	FindEntityByNormalized(ctx context.Context, normalized string) (KnownEntity, error)
	InsertEntity(ctx context.Context, e KnownEntity) (KnownEntity, error)
	IncrementEntityUsage(ctx context.Context, id int64, at time.Time) error
	InsertPattern(ctx context.Context, p ClassificationPattern) (ClassificationPattern, error)
	IncrementPatternUsage(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed training repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const patternColumns = `id, pattern, match_type, category, debit_account_code, credit_account_code, transaction_type, confidence, priority, source, usage_count, active, entity_id, created_at`

func scanPattern(row pgx.Row, p *ClassificationPattern) error {
	return row.Scan(&p.ID, &p.Pattern, &p.MatchType, &p.Category, &p.DebitAccountCode, &p.CreditAccountCode, &p.TransactionType, &p.Confidence, &p.Priority, &p.Source, &p.UsageCount, &p.Active, &p.EntityID, &p.CreatedAt)
}

const questionColumns = `id, bank_transaction_id, description, amount, transaction_date, transaction_type, question_type, question_text, ai_suggestion, ai_confidence, status, priority, answer, answered_by, answered_at, created_at`

func scanQuestion(row pgx.Row, q *PendingQuestion) error {
	var answer []byte
	if err := row.Scan(&q.ID, &q.BankTransactionID, &q.Description, &q.Amount, &q.TransactionDate, &q.TransactionType, &q.QuestionType, &q.QuestionText, &q.AISuggestion, &q.AIConfidence, &q.Status, &q.Priority, &answer, &q.AnsweredBy, &q.AnsweredAt, &q.CreatedAt); err != nil {
		return err
	}
	q.Answer = answer
	return nil
}

const entityColumns = `id, name_pattern, normalized_pattern, entity_type, display_name, document, relationship, notes, usage_count, last_used_at, created_at`

func scanEntity(row pgx.Row, e *KnownEntity) error {
	return row.Scan(&e.ID, &e.NamePattern, &e.NormalizedPattern, &e.EntityType, &e.DisplayName, &e.Document, &e.Relationship, &e.Notes, &e.UsageCount, &e.LastUsedAt, &e.CreatedAt)
}

func (r *repository) ListActivePatterns(ctx context.Context) ([]ClassificationPattern, error) {
	rows, err := r.db.Query(ctx, `SELECT `+patternColumns+` FROM classification_patterns WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClassificationPattern
	for rows.Next() {
		var p ClassificationPattern
		if err := scanPattern(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) ListQuestions(ctx context.Context, statuses []QuestionStatus, limit int) ([]PendingQuestion, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if len(statuses) == 0 {
		statuses = []QuestionStatus{QuestionPending}
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.db.Query(ctx, `SELECT `+questionColumns+` FROM pending_questions WHERE status = ANY($1)
ORDER BY (status = 'pending') DESC, priority DESC, created_at ASC LIMIT $2`, names, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingQuestion
	for rows.Next() {
		var q PendingQuestion
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *repository) GetQuestion(ctx context.Context, id int64) (PendingQuestion, error) {
	var q PendingQuestion
	if err := scanQuestion(r.db.QueryRow(ctx, `SELECT `+questionColumns+` FROM pending_questions WHERE id=$1`, id), &q); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingQuestion{}, ErrQuestionNotFound
		}
		return PendingQuestion{}, err
	}
	return q, nil
}

func (r *repository) ListEntities(ctx context.Context, limit int) ([]KnownEntity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+entityColumns+` FROM known_entities ORDER BY usage_count DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KnownEntity
	for rows.Next() {
		var e KnownEntity
		if err := scanEntity(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// TxStore implements TxRepository over an open pgx transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore runs training writes inside tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// GetQuestionForUpdate loads and row-locks a question.
func (s *TxStore) GetQuestionForUpdate(ctx context.Context, id int64) (PendingQuestion, error) {
	var q PendingQuestion
	if err := scanQuestion(s.tx.QueryRow(ctx, `SELECT `+questionColumns+` FROM pending_questions WHERE id=$1 FOR UPDATE`, id), &q); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingQuestion{}, ErrQuestionNotFound
		}
		return PendingQuestion{}, err
	}
	return q, nil
}

// FindQuestionByTransaction returns the newest question raised for the
// transaction.
func (s *TxStore) FindQuestionByTransaction(ctx context.Context, transactionID int64) (PendingQuestion, error) {
	var q PendingQuestion
	err := scanQuestion(s.tx.QueryRow(ctx, `SELECT `+questionColumns+` FROM pending_questions WHERE bank_transaction_id=$1 ORDER BY id DESC LIMIT 1 FOR UPDATE`, transactionID), &q)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingQuestion{}, ErrQuestionNotFound
		}
		return PendingQuestion{}, err
	}
	return q, nil
}

// InsertQuestion stores a new question and returns it with its id.
func (s *TxStore) InsertQuestion(ctx context.Context, q PendingQuestion) (PendingQuestion, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO pending_questions (bank_transaction_id, description, amount, transaction_date, transaction_type, question_type, question_text, ai_suggestion, ai_confidence, status, priority)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at`,
		q.BankTransactionID, q.Description, q.Amount.StringFixed(2), q.TransactionDate, q.TransactionType, q.QuestionType, q.QuestionText, q.AISuggestion, q.AIConfidence, q.Status, q.Priority).
		Scan(&q.ID, &q.CreatedAt)
	return q, err
}

// UpdateQuestion writes status, answer and suggestion fields.
func (s *TxStore) UpdateQuestion(ctx context.Context, q PendingQuestion) error {
	var answer any
	if len(q.Answer) > 0 {
		answer = []byte(q.Answer)
	}
	cmd, err := s.tx.Exec(ctx, `UPDATE pending_questions SET status=$2, question_type=$3, question_text=$4, ai_suggestion=$5, ai_confidence=$6, priority=$7,
answer=$8, answered_by=$9, answered_at=$10, updated_at=NOW() WHERE id=$1`,
		q.ID, q.Status, q.QuestionType, q.QuestionText, q.AISuggestion, q.AIConfidence, q.Priority, answer, q.AnsweredBy, q.AnsweredAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// FindEntityByNormalized looks an entity up by its normalized pattern.
func (s *TxStore) FindEntityByNormalized(ctx context.Context, normalized string) (KnownEntity, error) {
	var e KnownEntity
	if err := scanEntity(s.tx.QueryRow(ctx, `SELECT `+entityColumns+` FROM known_entities WHERE normalized_pattern=$1`, normalized), &e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return KnownEntity{}, ErrEntityNotFound
		}
		return KnownEntity{}, err
	}
	return e, nil
}

// InsertEntity stores a new known entity.
func (s *TxStore) InsertEntity(ctx context.Context, e KnownEntity) (KnownEntity, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO known_entities (name_pattern, normalized_pattern, entity_type, display_name, document, relationship, notes, usage_count, last_used_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		e.NamePattern, e.NormalizedPattern, e.EntityType, e.DisplayName, e.Document, e.Relationship, e.Notes, e.UsageCount, e.LastUsedAt).
		Scan(&e.ID, &e.CreatedAt)
	return e, err
}

// IncrementEntityUsage bumps the counter in SQL so concurrent reuses never
// lose an update.
func (s *TxStore) IncrementEntityUsage(ctx context.Context, id int64, at time.Time) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE known_entities SET usage_count = usage_count + 1, last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// InsertPattern stores a learned pattern.
func (s *TxStore) InsertPattern(ctx context.Context, p ClassificationPattern) (ClassificationPattern, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO classification_patterns (pattern, match_type, category, debit_account_code, credit_account_code, transaction_type, confidence, priority, source, usage_count, active, entity_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at`,
		p.Pattern, p.MatchType, p.Category, p.DebitAccountCode, p.CreditAccountCode, p.TransactionType, p.Confidence, p.Priority, p.Source, p.UsageCount, p.Active, p.EntityID).
		Scan(&p.ID, &p.CreatedAt)
	return p, err
}

// IncrementPatternUsage bumps the counter in SQL so concurrent reuses never
// lose an update.
func (s *TxStore) IncrementPatternUsage(ctx context.Context, id int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE classification_patterns SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`, id)
	return err
}
