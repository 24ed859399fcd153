package balances

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
)

// Equation checks Assets = Liabilities + Equity + (Revenue - Expense) over
// cumulative balances. Liabilities, equity and revenue are credit-positive.
type Equation struct {
	AsOf        time.Time       `json:"as_of"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Equity      decimal.Decimal `json:"equity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Expense     decimal.Decimal `json:"expense"`
	Result      decimal.Decimal `json:"result"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	// Difference is Assets minus the right-hand side.
	Difference decimal.Decimal `json:"difference"`
	Balanced   bool            `json:"balanced"`
	Groups     []GroupTotal    `json:"groups"`
}

// CheckEquation totals balances by account type. The ledger is balanced when
// both the equation and Σdebit == Σcredit hold within eps.
func CheckEquation(asOf time.Time, balances []AccountBalance, eps decimal.Decimal) Equation {
	eq := Equation{AsOf: asOf}
	for _, acc := range balances {
		net := acc.Net()
		switch acc.Type {
		case accounts.AccountTypeAsset:
			eq.Assets = eq.Assets.Add(net)
		case accounts.AccountTypeLiability:
			eq.Liabilities = eq.Liabilities.Sub(net)
		case accounts.AccountTypeEquity:
			eq.Equity = eq.Equity.Sub(net)
		case accounts.AccountTypeRevenue:
			eq.Revenue = eq.Revenue.Sub(net)
		case accounts.AccountTypeExpense:
			eq.Expense = eq.Expense.Add(net)
		}
		eq.TotalDebit = eq.TotalDebit.Add(acc.Debit)
		eq.TotalCredit = eq.TotalCredit.Add(acc.Credit)
	}
	eq.Result = eq.Revenue.Sub(eq.Expense)
	eq.Difference = eq.Assets.Sub(eq.Liabilities.Add(eq.Equity).Add(eq.Result))
	eq.Balanced = eq.Difference.Abs().LessThanOrEqual(eps) &&
		eq.TotalDebit.Sub(eq.TotalCredit).Abs().LessThanOrEqual(eps)
	eq.Groups = groupTotals(balances)
	return eq
}
