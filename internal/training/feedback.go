package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/banking"
	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
)

const (
	learnedPatternPriority   = 100
	learnedPatternConfidence = 1.0
)

// AccountResolver validates account codes chosen by a reviewer.
type AccountResolver interface {
	Postable(ctx context.Context, code string) (accounts.Account, error)
}

// Suggestion is the best low-confidence guess shown with a question.
type Suggestion struct {
	Text       string
	Confidence float64
}

// OpenQuestionInput describes a transaction that needs a human decision.
type OpenQuestionInput struct {
	Transaction  banking.Transaction
	QuestionType QuestionType
	Suggestion   *Suggestion
}

// AnswerInput is a reviewer's classification of a question.
type AnswerInput struct {
	EntityName        string `json:"entity_name,omitempty" validate:"omitempty,max=200"`
	EntityType        string `json:"entity_type,omitempty" validate:"omitempty,oneof=client supplier partner employee government bank other"`
	Document          string `json:"document,omitempty" validate:"omitempty,max=20"`
	Relationship      string `json:"relationship,omitempty" validate:"omitempty,max=100"`
	Notes             string `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Category          string `json:"category,omitempty" validate:"omitempty,max=100"`
	DebitAccountCode  string `json:"debit_account_code,omitempty" validate:"omitempty,max=30"`
	CreditAccountCode string `json:"credit_account_code,omitempty" validate:"omitempty,max=30"`
	SaveAsPattern     bool   `json:"save_as_pattern"`
	PatternText       string `json:"pattern_text,omitempty" validate:"omitempty,max=200"`
	AnsweredBy        string `json:"answered_by" validate:"required,max=100"`
}

// AnswerResult reports what an answer created or reused.
type AnswerResult struct {
	Question      PendingQuestion        `json:"question"`
	Entity        *KnownEntity           `json:"entity,omitempty"`
	EntityCreated bool                   `json:"entity_created"`
	Pattern       *ClassificationPattern `json:"pattern,omitempty"`
}

// FeedbackLoop turns reviewer answers into entities and patterns so the same
// description is classified automatically next time.
type FeedbackLoop struct {
	repo     Repository
	store    *Store
	accounts AccountResolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewFeedbackLoop wires question handling to the pattern store and chart of accounts.
func NewFeedbackLoop(repo Repository, store *Store, resolver AccountResolver, logger *slog.Logger) *FeedbackLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackLoop{repo: repo, store: store, accounts: resolver, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (f *FeedbackLoop) WithNow(now func() time.Time) {
	if now != nil {
		f.now = now
	}
}

// OpenQuestion raises a question for the transaction. A pending question for
// the same transaction is returned unchanged and a skipped one is reopened,
// so a transaction never carries two open questions. created reports whether
// a new row was inserted.
func (f *FeedbackLoop) OpenQuestion(ctx context.Context, in OpenQuestionInput) (PendingQuestion, bool, error) {
	tx := in.Transaction
	if tx.ID == 0 {
		return PendingQuestion{}, false, fmt.Errorf("%w: transaction required", ErrInvalidAnswer)
	}
	qType := in.QuestionType
	if qType == "" {
		qType = QuestionWhatIs
	}
	var (
		question PendingQuestion
		created  bool
	)
	err := f.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		existing, err := repo.FindQuestionByTransaction(ctx, tx.ID)
		switch {
		case err == nil && existing.Status == QuestionPending:
			question = existing
			return nil
		case err == nil && existing.Status == QuestionSkipped:
			existing.Status = QuestionPending
			existing.QuestionType = qType
			existing.QuestionText = questionText(qType, tx, in.Suggestion)
			applySuggestion(&existing, in.Suggestion)
			if err := repo.UpdateQuestion(ctx, existing); err != nil {
				return err
			}
			question = existing
			return nil
		case err != nil && !errors.Is(err, ErrQuestionNotFound):
			return err
		}
		q := PendingQuestion{
			BankTransactionID: tx.ID,
			Description:       tx.Description,
			Amount:            tx.Amount,
			TransactionDate:   tx.Date,
			TransactionType:   tx.Direction(),
			QuestionType:      qType,
			QuestionText:      questionText(qType, tx, in.Suggestion),
			Status:            QuestionPending,
			Priority:          questionPriority(tx.Magnitude()),
		}
		applySuggestion(&q, in.Suggestion)
		inserted, err := repo.InsertQuestion(ctx, q)
		if err != nil {
			return err
		}
		question = inserted
		created = true
		return nil
	})
	if err != nil {
		return PendingQuestion{}, false, err
	}
	return question, created, nil
}

// Answer records the reviewer's classification in one transaction: the
// entity is resolved or created, a pattern is optionally learned, and the
// question is closed with the answer payload.
func (f *FeedbackLoop) Answer(ctx context.Context, questionID int64, in AnswerInput) (AnswerResult, error) {
	if strings.TrimSpace(in.AnsweredBy) == "" {
		return AnswerResult{}, fmt.Errorf("%w: answered_by required", ErrInvalidAnswer)
	}
	for _, code := range []string{in.DebitAccountCode, in.CreditAccountCode} {
		if code == "" || f.accounts == nil {
			continue
		}
		if _, err := f.accounts.Postable(ctx, code); err != nil {
			return AnswerResult{}, err
		}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return AnswerResult{}, err
	}

	var result AnswerResult
	err = f.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		q, err := repo.GetQuestionForUpdate(ctx, questionID)
		if err != nil {
			return err
		}
		if !q.Open() {
			return ErrQuestionClosed
		}
		now := f.now()

		var entityID *int64
		if strings.TrimSpace(in.EntityName) != "" {
			entity, created, err := f.resolveEntity(ctx, repo, in, now)
			if err != nil {
				return err
			}
			result.Entity = &entity
			result.EntityCreated = created
			entityID = &entity.ID
		}

		if in.SaveAsPattern {
			pattern, err := f.learnPattern(ctx, repo, q, in, entityID)
			if err != nil {
				return err
			}
			result.Pattern = &pattern
		}

		q.Status = QuestionAnswered
		q.Answer = payload
		q.AnsweredBy = in.AnsweredBy
		q.AnsweredAt = &now
		if err := repo.UpdateQuestion(ctx, q); err != nil {
			return err
		}
		result.Question = q
		return nil
	})
	if err != nil {
		return AnswerResult{}, err
	}
	if result.Pattern != nil && f.store != nil {
		f.store.Invalidate(ctx)
	}
	f.logger.Info("question answered",
		slog.Int64("question_id", questionID),
		slog.Bool("pattern_learned", result.Pattern != nil),
		slog.Bool("entity_created", result.EntityCreated),
	)
	return result, nil
}

func (f *FeedbackLoop) resolveEntity(ctx context.Context, repo TxRepository, in AnswerInput, now time.Time) (KnownEntity, bool, error) {
	normalized := NormalizeEntityName(in.EntityName)
	if normalized == "" {
		return KnownEntity{}, false, fmt.Errorf("%w: entity name has no letters or digits", ErrInvalidAnswer)
	}
	existing, err := repo.FindEntityByNormalized(ctx, normalized)
	if err == nil {
		if err := repo.IncrementEntityUsage(ctx, existing.ID, now); err != nil {
			return KnownEntity{}, false, err
		}
		existing.UsageCount++
		existing.LastUsedAt = &now
		return existing, false, nil
	}
	if !errors.Is(err, ErrEntityNotFound) {
		return KnownEntity{}, false, err
	}
	entityType := in.EntityType
	if entityType == "" {
		entityType = "other"
	}
	created, err := repo.InsertEntity(ctx, KnownEntity{
		NamePattern:       strings.TrimSpace(in.EntityName),
		NormalizedPattern: normalized,
		EntityType:        entityType,
		DisplayName:       strings.TrimSpace(in.EntityName),
		Document:          in.Document,
		Relationship:      in.Relationship,
		Notes:             in.Notes,
		UsageCount:        1,
		LastUsedAt:        &now,
	})
	if err != nil {
		return KnownEntity{}, false, err
	}
	return created, true, nil
}

func (f *FeedbackLoop) learnPattern(ctx context.Context, repo TxRepository, q PendingQuestion, in AnswerInput, entityID *int64) (ClassificationPattern, error) {
	text := strings.TrimSpace(in.PatternText)
	if text == "" {
		text = ExtractPossibleName(q.Description)
	}
	p := ClassificationPattern{
		Pattern:           text,
		MatchType:         MatchContains,
		Category:          in.Category,
		DebitAccountCode:  in.DebitAccountCode,
		CreditAccountCode: in.CreditAccountCode,
		TransactionType:   q.TransactionType,
		Confidence:        learnedPatternConfidence,
		Priority:          learnedPatternPriority,
		Source:            SourceHuman,
		Active:            true,
		EntityID:          entityID,
	}
	if p.ContraAccount(q.TransactionType) == "" {
		return ClassificationPattern{}, fmt.Errorf("%w: contra account required for a %s pattern", ErrInvalidAnswer, q.TransactionType)
	}
	if err := p.Validate(); err != nil {
		return ClassificationPattern{}, err
	}
	return repo.InsertPattern(ctx, p)
}

// Skip parks a question; it is reopened the next time the transaction fails
// to classify.
func (f *FeedbackLoop) Skip(ctx context.Context, questionID int64, actor string) (PendingQuestion, error) {
	var out PendingQuestion
	err := f.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		q, err := repo.GetQuestionForUpdate(ctx, questionID)
		if err != nil {
			return err
		}
		if !q.Open() {
			return ErrQuestionClosed
		}
		q.Status = QuestionSkipped
		q.AnsweredBy = actor
		if err := repo.UpdateQuestion(ctx, q); err != nil {
			return err
		}
		out = q
		return nil
	})
	return out, err
}

// Pending lists open questions, pending before skipped.
func (f *FeedbackLoop) Pending(ctx context.Context, limit int) ([]PendingQuestion, error) {
	return f.repo.ListQuestions(ctx, []QuestionStatus{QuestionPending, QuestionSkipped}, limit)
}

// Get returns a question in any status.
func (f *FeedbackLoop) Get(ctx context.Context, id int64) (PendingQuestion, error) {
	return f.repo.GetQuestion(ctx, id)
}

func applySuggestion(q *PendingQuestion, s *Suggestion) {
	if s == nil {
		q.AISuggestion = ""
		q.AIConfidence = 0
		return
	}
	q.AISuggestion = s.Text
	q.AIConfidence = s.Confidence
}

func questionPriority(amount decimal.Decimal) int {
	switch {
	case amount.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		return 3
	case amount.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return 2
	default:
		return 1
	}
}

func questionText(t QuestionType, tx banking.Transaction, s *Suggestion) string {
	amount := moneyutil.FormatBRL(tx.Magnitude())
	kind := "recebimento"
	if !tx.IsReceipt() {
		kind = "pagamento"
	}
	switch t {
	case QuestionWhoIs:
		return fmt.Sprintf("Quem é a contraparte do %s de %s em %s (\"%s\")?", kind, amount, tx.Date.Format("02/01/2006"), tx.Description)
	case QuestionCategory:
		if s != nil && s.Text != "" {
			return fmt.Sprintf("Confirma \"%s\" para o %s de %s (\"%s\")?", s.Text, kind, amount, tx.Description)
		}
	}
	return fmt.Sprintf("O que é o %s de %s em %s (\"%s\")?", kind, amount, tx.Date.Format("02/01/2006"), tx.Description)
}
