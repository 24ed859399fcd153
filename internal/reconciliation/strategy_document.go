package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
)

const (
	documentTolerance          = 0.10
	documentFallbackConfidence = 0.6
)

// ClientDirectory resolves clients by tax id and lists their open invoices.
type ClientDirectory interface {
	FindClientByTaxID(ctx context.Context, taxID string) (targets.Client, error)
	OpenInvoicesForClient(ctx context.Context, clientID int64) ([]targets.OpenItem, error)
}

// DocumentExtractionStrategy reads a CPF/CNPJ from the description and
// matches the receipt against that client's open invoices.
type DocumentExtractionStrategy struct {
	clients ClientDirectory
	eps     decimal.Decimal
}

// NewDocumentExtractionStrategy resolves a tax id in the description to a client.
func NewDocumentExtractionStrategy(clients ClientDirectory, eps decimal.Decimal) *DocumentExtractionStrategy {
	return &DocumentExtractionStrategy{clients: clients, eps: eps}
}

// Source tags candidates as document matches.
func (s *DocumentExtractionStrategy) Source() Source { return SourceDocument }

// External is false.
func (s *DocumentExtractionStrategy) External() bool { return false }

// Propose picks the invoice nearest in amount within 10%: confidence 1.0 on
// an exact hit, falling linearly to 0.9 at the edge. Without one, the
// earliest due invoice is offered as a partial payment at 0.6.
func (s *DocumentExtractionStrategy) Propose(ctx context.Context, req Request) ([]MatchCandidate, error) {
	tx := req.Transaction
	if !tx.IsReceipt() {
		return nil, nil
	}
	taxID, ok := ExtractTaxID(tx.Description)
	if !ok {
		return nil, nil
	}
	client, err := s.clients.FindClientByTaxID(ctx, taxID)
	if errors.Is(err, targets.ErrClientNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	invoices, err := s.clients.OpenInvoicesForClient(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}

	amount := moneyutil.RoundMoney(tx.Magnitude())
	var (
		nearest  *targets.OpenItem
		bestDiff decimal.Decimal
	)
	for i := range invoices {
		outstanding := invoices[i].Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		diff := outstanding.Sub(amount).Abs()
		limit := outstanding.Mul(decimal.NewFromFloat(documentTolerance))
		if diff.GreaterThan(limit) && !moneyutil.MoneyEqual(outstanding, amount, s.eps) {
			continue
		}
		if nearest == nil || diff.LessThan(bestDiff) {
			nearest = &invoices[i]
			bestDiff = diff
		}
	}

	contra := client.ReceivableAccountCode
	if nearest != nil {
		confidence := 1.0
		if !moneyutil.MoneyEqual(nearest.Outstanding(), amount, s.eps) {
			ratio, _ := bestDiff.Div(nearest.Outstanding()).Float64()
			confidence = 1.0 - ratio
			if confidence < 1.0-documentTolerance {
				confidence = 1.0 - documentTolerance
			}
		}
		return []MatchCandidate{s.candidate(*nearest, client, contra, amount, confidence)}, nil
	}

	earliest := invoices[0]
	for _, inv := range invoices[1:] {
		if inv.DueDate.Before(earliest.DueDate) {
			earliest = inv
		}
	}
	return []MatchCandidate{s.candidate(earliest, client, contra, amount, documentFallbackConfidence)}, nil
}

func (s *DocumentExtractionStrategy) candidate(inv targets.OpenItem, client targets.Client, contra string, amount decimal.Decimal, confidence float64) MatchCandidate {
	if contra == "" {
		contra = inv.AccountCode
	}
	return MatchCandidate{
		Source:        SourceDocument,
		TargetType:    targets.TypeInvoice,
		TargetID:      inv.ID,
		Amount:        amount,
		Confidence:    confidence,
		ContraAccount: contra,
		Description:   fmt.Sprintf("Fatura #%d - %s (%s)", inv.ID, client.Name, client.TaxID),
	}
}
