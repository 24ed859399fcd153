package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrSourceConflict indicates the source link already exists.
	ErrSourceConflict = errors.New("accounting: source link conflict")
	// ErrSyntheticAccount indicates a grouping account was used on a journal line.
	ErrSyntheticAccount = errors.New("accounting: synthetic account cannot receive postings")
	// ErrInactiveAccount indicates a disabled account was used on a journal line.
	ErrInactiveAccount = errors.New("accounting: account is inactive")

	// ErrImbalancedSplit indicates allocations do not cover the transaction amount.
	ErrImbalancedSplit = errors.New("accounting: split allocations do not match transaction amount")
	// ErrPostingImbalance indicates the built entry failed the balance check.
	ErrPostingImbalance = errors.New("accounting: posting imbalance")
	// ErrMissingAccount indicates an account code absent from the chart.
	ErrMissingAccount = errors.New("accounting: account not found")
	// ErrConcurrentMatch indicates the transaction was matched by someone else.
	ErrConcurrentMatch = errors.New("accounting: transaction already matched")
)

// ImbalancedSplitError reports allocations whose sum differs from the
// transaction amount.
type ImbalancedSplitError struct {
	Expected decimal.Decimal
	Got      decimal.Decimal
}

func (e *ImbalancedSplitError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrImbalancedSplit, e.Expected.StringFixed(2), e.Got.StringFixed(2))
}

func (e *ImbalancedSplitError) Unwrap() error { return ErrImbalancedSplit }

// PostingImbalanceError reports an entry whose debit and credit totals diverge.
type PostingImbalanceError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *PostingImbalanceError) Error() string {
	return fmt.Sprintf("%s: debit %s, credit %s", ErrPostingImbalance, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

func (e *PostingImbalanceError) Unwrap() error { return ErrPostingImbalance }

// MissingAccountError names the account code that could not be resolved.
type MissingAccountError struct {
	Code string
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingAccount, e.Code)
}

func (e *MissingAccountError) Unwrap() error { return ErrMissingAccount }

// ConcurrentMatchError names the bank transaction lost to a concurrent writer.
type ConcurrentMatchError struct {
	TransactionID int64
}

func (e *ConcurrentMatchError) Error() string {
	return fmt.Sprintf("%s: transaction %d", ErrConcurrentMatch, e.TransactionID)
}

func (e *ConcurrentMatchError) Unwrap() error { return ErrConcurrentMatch }
