// Package training stores what the firm has taught the system: description
// patterns mapped to accounts, known counterparties, and the open questions
// that collect new answers.
package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/banking"
)

var (
	ErrQuestionNotFound = errors.New("training: question not found")
	ErrQuestionClosed   = errors.New("training: question already answered")
	ErrEntityNotFound   = errors.New("training: entity not found")
	ErrInvalidPattern   = errors.New("training: invalid pattern")
	ErrInvalidAnswer    = errors.New("training: invalid answer")
)

// MatchType selects how a pattern is compared with a description.
type MatchType string

const (
	MatchContains MatchType = "contains"
	MatchExact    MatchType = "exact"
	MatchRegex    MatchType = "regex"
)

// Source records who authored a pattern.
type Source string

const (
	SourceHuman Source = "human"
	SourceAI    Source = "ai"
)

// ClassificationPattern maps descriptions to a debit/credit account pair.
// An empty TransactionType matches both directions.
type ClassificationPattern struct {
	ID                int64             `json:"id"`
	Pattern           string            `json:"pattern"`
	MatchType         MatchType         `json:"match_type"`
	Category          string            `json:"category,omitempty"`
	DebitAccountCode  string            `json:"debit_account_code,omitempty"`
	CreditAccountCode string            `json:"credit_account_code,omitempty"`
	TransactionType   banking.Direction `json:"transaction_type,omitempty"`
	Confidence        float64           `json:"confidence"`
	Priority          int               `json:"priority"`
	Source            Source            `json:"source"`
	UsageCount        int64             `json:"usage_count"`
	Active            bool              `json:"active"`
	EntityID          *int64            `json:"entity_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Compatible reports whether the pattern applies to transactions flowing in dir.
func (p ClassificationPattern) Compatible(dir banking.Direction) bool {
	return p.TransactionType == "" || p.TransactionType == dir
}

// ContraAccount returns the non-bank side for dir: receipts credit the
// contra account, payments debit it.
func (p ClassificationPattern) ContraAccount(dir banking.Direction) string {
	if dir == banking.DirectionCredit {
		return p.CreditAccountCode
	}
	return p.DebitAccountCode
}

// Validate checks the pattern text, match type, confidence range and that an
// account is set.
func (p ClassificationPattern) Validate() error {
	if strings.TrimSpace(p.Pattern) == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	switch p.MatchType {
	case MatchContains, MatchExact, MatchRegex:
	default:
		return fmt.Errorf("%w: match type %q", ErrInvalidPattern, p.MatchType)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.2f outside [0,1]", ErrInvalidPattern, p.Confidence)
	}
	if p.DebitAccountCode == "" && p.CreditAccountCode == "" {
		return fmt.Errorf("%w: no account", ErrInvalidPattern)
	}
	return nil
}

// KnownEntity is a recognized counterparty.
type KnownEntity struct {
	ID                int64      `json:"id"`
	NamePattern       string     `json:"name_pattern"`
	NormalizedPattern string     `json:"normalized_pattern"`
	EntityType        string     `json:"entity_type"`
	DisplayName       string     `json:"display_name"`
	Document          string     `json:"document,omitempty"`
	Relationship      string     `json:"relationship,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	UsageCount        int64      `json:"usage_count"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// QuestionType hints what the reviewer is asked.
type QuestionType string

const (
	QuestionWhatIs   QuestionType = "what_is"
	QuestionWhoIs    QuestionType = "who_is"
	QuestionCategory QuestionType = "category"
)

// QuestionStatus tracks a question lifecycle: pending -> answered | skipped.
// Skipped questions may be reopened.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
	QuestionSkipped  QuestionStatus = "skipped"
)

// PendingQuestion asks a human to classify a transaction the engine could not
// place with enough confidence.
type PendingQuestion struct {
	ID                int64             `json:"id"`
	BankTransactionID int64             `json:"bank_transaction_id"`
	Description       string            `json:"description"`
	Amount            decimal.Decimal   `json:"amount"`
	TransactionDate   time.Time         `json:"transaction_date"`
	TransactionType   banking.Direction `json:"transaction_type"`
	QuestionType      QuestionType      `json:"question_type"`
	QuestionText      string            `json:"question_text"`
	AISuggestion      string            `json:"ai_suggestion,omitempty"`
	AIConfidence      float64           `json:"ai_confidence,omitempty"`
	Status            QuestionStatus    `json:"status"`
	Priority          int               `json:"priority"`
	Answer            json.RawMessage   `json:"answer,omitempty"`
	AnsweredBy        string            `json:"answered_by,omitempty"`
	AnsweredAt        *time.Time        `json:"answered_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Open reports whether the question still awaits an answer. A skipped
// question is closed until the transaction raises it again.
func (q PendingQuestion) Open() bool {
	return q.Status == QuestionPending
}
