package shared

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// CurrencyBRL is the ledger currency.
const CurrencyBRL = money.BRL

// MoneyEpsilon is the tolerance used for every monetary equality check.
var MoneyEpsilon = decimal.New(1, -2)

// MoneyEqual reports whether a and b differ by no more than eps. A zero eps
// falls back to MoneyEpsilon.
func MoneyEqual(a, b, eps decimal.Decimal) bool {
	if eps.IsZero() {
		eps = MoneyEpsilon
	}
	return a.Sub(b).Abs().LessThanOrEqual(eps)
}

// RoundMoney rounds half away from zero to cents.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// FormatBRL renders an amount such as R$1.500,00.
func FormatBRL(v decimal.Decimal) string {
	cents := v.Round(2).Shift(2).IntPart()
	return money.New(cents, CurrencyBRL).Display()
}
