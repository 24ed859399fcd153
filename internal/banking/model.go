// Package banking holds imported bank statement lines and their
// reconciliation state.
package banking

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransactionNotFound indicates an unknown bank transaction id.
	ErrTransactionNotFound = errors.New("banking: transaction not found")
	// ErrNotMatched indicates an unmatch request for a pending transaction.
	ErrNotMatched = errors.New("banking: transaction is not matched")
	// ErrInconsistentMatch indicates matched and journal_entry_id disagree.
	ErrInconsistentMatch = errors.New("banking: matched flag and journal entry disagree")
)

// Direction distinguishes money in from money out.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// State is the reconciliation state of a transaction.
type State string

const (
	StatePending State = "pending"
	StateMatched State = "matched"
)

// Transaction is one imported statement line. Amount is signed: positive for
// receipts, negative for payments.
type Transaction struct {
	ID              int64           `json:"id"`
	BankAccountCode string          `json:"bank_account_code,omitempty"`
	Date            time.Time       `json:"date"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Matched         bool            `json:"matched"`
	JournalEntryID  *int64          `json:"journal_entry_id,omitempty"`
	Version         int64           `json:"version"`
	ImportedAt      time.Time       `json:"imported_at"`
}

// IsReceipt reports whether money came into the account.
func (t Transaction) IsReceipt() bool {
	return t.Amount.IsPositive()
}

// Direction returns credit for receipts and debit for payments.
func (t Transaction) Direction() Direction {
	if t.IsReceipt() {
		return DirectionCredit
	}
	return DirectionDebit
}

// Magnitude is the absolute transaction amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// State derives the reconciliation state from the matched flag.
func (t Transaction) State() State {
	if t.Matched {
		return StateMatched
	}
	return StatePending
}

// Validate checks that matched is true exactly when a journal entry is linked.
func (t Transaction) Validate() error {
	if t.Matched != (t.JournalEntryID != nil) {
		return ErrInconsistentMatch
	}
	return nil
}
