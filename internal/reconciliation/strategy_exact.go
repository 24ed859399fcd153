package reconciliation

import (
	"context"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
	"github.com/odyssey-erp/reconciler/internal/training"
)

// OpenItemLister lists items with a balance still due.
type OpenItemLister interface {
	ListOpen(ctx context.Context, types ...targets.Type) ([]targets.OpenItem, error)
}

// ExactValueStrategy proposes open items whose outstanding amount equals the
// transaction magnitude. Receipts look at invoices, payments at expenses and
// payables.
type ExactValueStrategy struct {
	items OpenItemLister
	eps   decimal.Decimal
}

// NewExactValueStrategy matches open items whose balance equals the amount within eps.
func NewExactValueStrategy(items OpenItemLister, eps decimal.Decimal) *ExactValueStrategy {
	return &ExactValueStrategy{items: items, eps: eps}
}

// Source tags candidates as exact value matches.
func (s *ExactValueStrategy) Source() Source { return SourceExactValue }

// External is false.
func (s *ExactValueStrategy) External() bool { return false }

// Propose lists open items of the direction's target types whose outstanding
// balance equals the amount.
func (s *ExactValueStrategy) Propose(ctx context.Context, req Request) ([]MatchCandidate, error) {
	tx := req.Transaction
	types := []targets.Type{targets.TypeExpense, targets.TypePayable}
	if tx.IsReceipt() {
		types = []targets.Type{targets.TypeInvoice}
	}
	items, err := s.items.ListOpen(ctx, types...)
	if err != nil {
		return nil, err
	}
	amount := tx.Magnitude()
	type scored struct {
		item     targets.OpenItem
		distance int
	}
	name := training.Fold(training.ExtractPossibleName(tx.Description))
	var hits []scored
	for _, item := range items {
		if !moneyutil.MoneyEqual(item.Outstanding(), amount, s.eps) {
			continue
		}
		hits = append(hits, scored{item: item, distance: nameDistance(name, item.Counterparty)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	out := make([]MatchCandidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, MatchCandidate{
			Source:        SourceExactValue,
			TargetType:    h.item.Type,
			TargetID:      h.item.ID,
			Amount:        moneyutil.RoundMoney(amount),
			Confidence:    1.0,
			ContraAccount: h.item.AccountCode,
			Description:   describeItem(h.item),
		})
	}
	return out, nil
}

// nameDistance is the edit distance between the folded description name and
// the counterparty; an empty counterparty ranks last.
func nameDistance(name, counterparty string) int {
	folded := training.Fold(counterparty)
	if folded == "" {
		return int(^uint(0) >> 1)
	}
	return levenshtein.ComputeDistance(name, folded)
}

func describeItem(item targets.OpenItem) string {
	label := map[targets.Type]string{
		targets.TypeInvoice: "Fatura",
		targets.TypeExpense: "Despesa",
		targets.TypePayable: "Conta a pagar",
	}[item.Type]
	if item.Counterparty != "" {
		return fmt.Sprintf("%s #%d - %s", label, item.ID, item.Counterparty)
	}
	return fmt.Sprintf("%s #%d", label, item.ID)
}
