package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/banking"
	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
)

// SuggestionRequest is what the AI service is told about a transaction.
type SuggestionRequest struct {
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
	Date        time.Time         `json:"date"`
	Type        banking.Direction `json:"type"`
}

// Suggestion is one ranked answer from the AI service.
type Suggestion struct {
	TargetType    targets.Type    `json:"targetType"`
	TargetID      int64           `json:"targetId"`
	Amount        decimal.Decimal `json:"amount"`
	Confidence    float64         `json:"confidence"`
	Description   string          `json:"description"`
	ContraAccount string          `json:"contraAccount,omitempty"`
}

// Suggester is an external classification service.
type Suggester interface {
	Suggest(ctx context.Context, req SuggestionRequest) ([]Suggestion, error)
}

// AISuggestionStrategy asks an external service. Answers naming an unknown
// target type or lacking the account they need are dropped.
type AISuggestionStrategy struct {
	suggester Suggester
	timeout   time.Duration
}

// NewAISuggestionStrategy bounds every suggester call by timeout.
func NewAISuggestionStrategy(suggester Suggester, timeout time.Duration) *AISuggestionStrategy {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AISuggestionStrategy{suggester: suggester, timeout: timeout}
}

// Source tags candidates as AI suggestions.
func (s *AISuggestionStrategy) Source() Source { return SourceAI }

// External is true, so the generator skips it once a candidate clears the threshold.
func (s *AISuggestionStrategy) External() bool { return true }

// Propose turns suggestions into candidates. Errors are returned for the generator to log.
func (s *AISuggestionStrategy) Propose(ctx context.Context, req Request) ([]MatchCandidate, error) {
	if s.suggester == nil {
		return nil, nil
	}
	tx := req.Transaction
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	suggestions, err := s.suggester.Suggest(ctx, SuggestionRequest{
		Description: tx.Description,
		Amount:      tx.Amount,
		Date:        tx.Date,
		Type:        tx.Direction(),
	})
	if err != nil {
		return nil, err
	}
	amount := moneyutil.RoundMoney(tx.Magnitude())
	out := make([]MatchCandidate, 0, len(suggestions))
	for _, sg := range suggestions {
		if !sg.TargetType.Valid() {
			continue
		}
		if sg.TargetType == targets.TypeManualAccount && sg.ContraAccount == "" {
			continue
		}
		if sg.TargetType.Settleable() && sg.TargetID <= 0 {
			continue
		}
		if sg.Amount.IsZero() {
			sg.Amount = amount
		}
		out = append(out, MatchCandidate{
			Source:        SourceAI,
			TargetType:    sg.TargetType,
			TargetID:      sg.TargetID,
			Amount:        moneyutil.RoundMoney(sg.Amount.Abs()),
			Confidence:    sg.Confidence,
			ContraAccount: sg.ContraAccount,
			Description:   sg.Description,
		})
	}
	return out, nil
}
