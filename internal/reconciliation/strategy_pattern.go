package reconciliation

import (
	"context"
	"fmt"

	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
)

// PatternClassificationStrategy classifies the transaction to the contra
// account of the first matching learned pattern in the request snapshot.
type PatternClassificationStrategy struct{}

// NewPatternClassificationStrategy matches against the request's pattern snapshot.
func NewPatternClassificationStrategy() *PatternClassificationStrategy {
	return &PatternClassificationStrategy{}
}

// Source tags candidates as pattern matches.
func (s *PatternClassificationStrategy) Source() Source { return SourcePattern }

// External is false; patterns are in memory.
func (s *PatternClassificationStrategy) External() bool { return false }

// Propose returns the highest precedence pattern matching the description
// and direction.
func (s *PatternClassificationStrategy) Propose(ctx context.Context, req Request) ([]MatchCandidate, error) {
	tx := req.Transaction
	dir := tx.Direction()
	p, ok := req.Patterns.Match(tx.Description, dir)
	if !ok {
		return nil, nil
	}
	contra := p.ContraAccount(dir)
	if contra == "" {
		return nil, nil
	}
	id := p.ID
	desc := fmt.Sprintf("Padrão #%d: %s", p.ID, p.Pattern)
	if p.Category != "" {
		desc += " (" + p.Category + ")"
	}
	return []MatchCandidate{{
		Source:        SourcePattern,
		TargetType:    targets.TypeManualAccount,
		Amount:        moneyutil.RoundMoney(tx.Magnitude()),
		Confidence:    p.Confidence,
		ContraAccount: contra,
		Description:   desc,
		PatternID:     &id,
		EntityID:      p.EntityID,
	}}, nil
}
