package reconciliation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
	"github.com/odyssey-erp/reconciler/internal/banking"
	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
)

// Mapping keys for default contra accounts.
const (
	MappingBank       = "bank"
	MappingReceivable = "invoice.receivable"
	MappingExpense    = "expense.default"
	MappingPayable    = "payable.default"
)

// ContraDefaults resolves mapping keys to account codes.
type ContraDefaults interface {
	AccountCode(ctx context.Context, key string) (string, error)
}

// SplitAllocator validates the allocations chosen for one transaction. Many
// targets may share one transaction; one target funded by several
// transactions is not modelled.
type SplitAllocator struct {
	defaults ContraDefaults
	eps      decimal.Decimal
}

// NewSplitAllocator validates splits to within eps of the transaction amount.
func NewSplitAllocator(defaults ContraDefaults, eps decimal.Decimal) *SplitAllocator {
	if eps.IsZero() {
		eps = moneyutil.MoneyEpsilon
	}
	return &SplitAllocator{defaults: defaults, eps: eps}
}

// Validate normalizes allocations and checks they cover the transaction.
// Amounts are rounded to cents, duplicates of the same target merged and
// missing contra accounts filled from the target defaults. The sum must equal
// the transaction magnitude or *shared.ImbalancedSplitError is returned.
func (a *SplitAllocator) Validate(ctx context.Context, tx banking.Transaction, allocations []Allocation) ([]Allocation, error) {
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: no allocations", ErrInvalidAllocation)
	}
	merged := make([]Allocation, 0, len(allocations))
	index := make(map[string]int, len(allocations))
	total := decimal.Zero
	for i, alloc := range allocations {
		if !alloc.TargetType.Valid() {
			return nil, fmt.Errorf("%w: allocation %d: unknown target type %q", ErrInvalidAllocation, i, alloc.TargetType)
		}
		alloc.Amount = moneyutil.RoundMoney(alloc.Amount)
		if !alloc.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: allocation %d: amount must be positive", ErrInvalidAllocation, i)
		}
		if alloc.TargetType.Settleable() && alloc.TargetID <= 0 {
			return nil, fmt.Errorf("%w: allocation %d: target id required", ErrInvalidAllocation, i)
		}
		if alloc.ContraAccount == "" {
			code, err := a.defaultContra(ctx, alloc.TargetType)
			if err != nil {
				return nil, fmt.Errorf("%w: allocation %d: %v", ErrInvalidAllocation, i, err)
			}
			alloc.ContraAccount = code
		}
		if alloc.TargetType == targets.TypeManualAccount {
			alloc.TargetID = 0
		}
		total = total.Add(alloc.Amount)
		k := alloc.key()
		if pos, ok := index[k]; ok {
			if merged[pos].ContraAccount != alloc.ContraAccount {
				return nil, fmt.Errorf("%w: allocation %d: %s %d already settles against %s",
					ErrInvalidAllocation, i, alloc.TargetType, alloc.TargetID, merged[pos].ContraAccount)
			}
			merged[pos].Amount = merged[pos].Amount.Add(alloc.Amount)
			continue
		}
		index[k] = len(merged)
		merged = append(merged, alloc)
	}
	expected := moneyutil.RoundMoney(tx.Magnitude())
	if !moneyutil.MoneyEqual(total, expected, a.eps) {
		return nil, &shared.ImbalancedSplitError{Expected: expected, Got: total}
	}
	return merged, nil
}

func (a *SplitAllocator) defaultContra(ctx context.Context, t targets.Type) (string, error) {
	var key string
	switch t {
	case targets.TypeInvoice:
		key = MappingReceivable
	case targets.TypeExpense:
		key = MappingExpense
	case targets.TypePayable:
		key = MappingPayable
	default:
		return "", fmt.Errorf("contra account required for %s", t)
	}
	if a.defaults == nil {
		return "", shared.ErrMappingNotFound
	}
	return a.defaults.AccountCode(ctx, key)
}
