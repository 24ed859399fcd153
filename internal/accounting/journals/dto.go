package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
)

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID   int64
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date           time.Time
	CompetenceDate time.Time
	Description    string
	DocumentType   string
	ReferenceType  string
	ReferenceID    int64
	SourceModule   string
	SourceID       uuid.UUID
	PostedBy       string
	Lines          []PostingLineInput
}

// Totals sums both sides of the input lines.
func (in PostingInput) Totals() (debit, credit decimal.Decimal) {
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Validate ensures posting input meets minimum criteria. An unbalanced input
// yields *shared.PostingImbalanceError.
func (in PostingInput) Validate(eps decimal.Decimal) error {
	if in.Date.IsZero() {
		return errors.New("accounting: entry date required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("accounting: line %d cannot be both debit and credit", idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("accounting: line %d has no amount", idx)
		}
	}
	debit, credit := in.Totals()
	if !moneyutil.MoneyEqual(debit, credit, eps) {
		return &shared.PostingImbalanceError{Debit: debit, Credit: credit}
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("accounting: source id required")
	}
	return nil
}
