package balances

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
)

// AccountBalance is the cumulative movement of one account.
type AccountBalance struct {
	Code   string               `json:"code"`
	Name   string               `json:"name"`
	Type   accounts.AccountType `json:"type"`
	Debit  decimal.Decimal      `json:"debit"`
	Credit decimal.Decimal      `json:"credit"`
}

// Net is debit-positive.
func (a AccountBalance) Net() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// GroupKey is the first segment of the account code, e.g. "1" for 1.1.1.02.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	return a.Code
}

type GroupTotal struct {
	Key    string          `json:"key"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
	Net    decimal.Decimal `json:"net"`
}

// groupTotals sums balances per top-level account.
func groupTotals(balances []AccountBalance) []GroupTotal {
	groups := make(map[string]*GroupTotal)
	keys := make([]string, 0)
	for _, acc := range balances {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &GroupTotal{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Debit = grp.Debit.Add(acc.Debit)
		grp.Credit = grp.Credit.Add(acc.Credit)
		grp.Net = grp.Net.Add(acc.Net())
	}
	sort.Strings(keys)
	out := make([]GroupTotal, 0, len(keys))
	for _, key := range keys {
		out = append(out, *groups[key])
	}
	return out
}
