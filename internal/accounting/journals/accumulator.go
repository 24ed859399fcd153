package journals

import (
	"github.com/shopspring/decimal"

	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
)

// Accumulator nets debit and credit amounts per account before lines are
// emitted, so an entry never carries two lines for the same account. Debits
// count positive, credits negative.
type Accumulator struct {
	order []int64
	codes map[int64]string
	memos map[int64]string
	sums  map[int64]decimal.Decimal
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		codes: make(map[int64]string),
		memos: make(map[int64]string),
		sums:  make(map[int64]decimal.Decimal),
	}
}

// Debit adds amount to the debit side of accountID.
func (a *Accumulator) Debit(accountID int64, code string, amount decimal.Decimal, memo string) {
	a.add(accountID, code, amount, memo)
}

// Credit adds amount to the credit side of accountID.
func (a *Accumulator) Credit(accountID int64, code string, amount decimal.Decimal, memo string) {
	a.add(accountID, code, amount.Neg(), memo)
}

func (a *Accumulator) add(accountID int64, code string, signed decimal.Decimal, memo string) {
	if _, ok := a.sums[accountID]; !ok {
		a.order = append(a.order, accountID)
		a.codes[accountID] = code
		a.memos[accountID] = memo
	}
	a.sums[accountID] = a.sums[accountID].Add(signed)
}

// Lines emits one line per account in first-seen order. Accounts that net
// to zero are dropped.
func (a *Accumulator) Lines() []PostingLineInput {
	lines := make([]PostingLineInput, 0, len(a.order))
	for _, id := range a.order {
		net := moneyutil.RoundMoney(a.sums[id])
		if net.IsZero() {
			continue
		}
		line := PostingLineInput{AccountID: id, AccountCode: a.codes[id], Memo: a.memos[id]}
		if net.IsPositive() {
			line.Debit = net
		} else {
			line.Credit = net.Neg()
		}
		lines = append(lines, line)
	}
	return lines
}

// Balance returns the signed net of everything accumulated; zero means the
// entry balances.
func (a *Accumulator) Balance() decimal.Decimal {
	total := decimal.Zero
	for _, id := range a.order {
		total = total.Add(a.sums[id])
	}
	return total
}
