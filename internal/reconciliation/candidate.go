// Package reconciliation links bank transactions to the ledger: strategies
// propose candidates, allocations are validated against the transaction, and
// a balanced journal entry is posted atomically.
package reconciliation

import (
	"errors"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/targets"
)

var (
	// ErrInvalidAllocation indicates an allocation that cannot be posted.
	ErrInvalidAllocation = errors.New("reconciliation: invalid allocation")
	// ErrInvalidTransition indicates a state change the machine does not allow.
	ErrInvalidTransition = errors.New("reconciliation: invalid state transition")
	// ErrClaimed indicates another worker holds the transaction lease.
	ErrClaimed = errors.New("reconciliation: transaction claimed by another worker")
	// ErrForbiddenRevenue indicates a partner or loan receipt classified as revenue.
	ErrForbiddenRevenue = errors.New("reconciliation: partner or loan receipt cannot be revenue")
	// ErrJustificationRequired indicates a generic account without justification.
	ErrJustificationRequired = errors.New("reconciliation: generic account requires justification")
)

// Source identifies the strategy that produced a candidate.
type Source string

const (
	SourceExactValue Source = "exact_value"
	SourceDocument   Source = "document"
	SourcePattern    Source = "pattern"
	SourceAI         Source = "ai"
	SourceManual     Source = "manual"
)

// MatchCandidate is one proposed way to explain a bank transaction.
type MatchCandidate struct {
	Source        Source          `json:"source"`
	TargetType    targets.Type    `json:"target_type"`
	TargetID      int64           `json:"target_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Confidence    float64         `json:"confidence"`
	ContraAccount string          `json:"contra_account,omitempty"`
	Description   string          `json:"description"`
	PatternID     *int64          `json:"pattern_id,omitempty"`
	EntityID      *int64          `json:"entity_id,omitempty"`
}

// key identifies the target a candidate points at. Manual account candidates
// have no target row and are keyed by their contra account.
func (c MatchCandidate) key() string {
	if c.TargetType == targets.TypeManualAccount {
		return string(c.TargetType) + ":" + c.ContraAccount
	}
	return string(c.TargetType) + ":" + strconv.FormatInt(c.TargetID, 10)
}

// Allocation converts the candidate into a single allocation.
func (c MatchCandidate) Allocation() Allocation {
	return Allocation{
		TargetType:    c.TargetType,
		TargetID:      c.TargetID,
		Amount:        c.Amount,
		ContraAccount: c.ContraAccount,
	}
}

// Allocation assigns part of a transaction to one target.
type Allocation struct {
	TargetType    targets.Type    `json:"target_type"`
	TargetID      int64           `json:"target_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	ContraAccount string          `json:"contra_account,omitempty"`
}

func (a Allocation) key() string {
	return MatchCandidate{TargetType: a.TargetType, TargetID: a.TargetID, ContraAccount: a.ContraAccount}.key()
}
