// Package targets models the open items a bank transaction can settle:
// client invoices, expenses and supplier payables.
package targets

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTargetNotFound indicates an unknown allocation target.
	ErrTargetNotFound = errors.New("targets: target not found")
	// ErrClientNotFound indicates no client holds the tax id.
	ErrClientNotFound = errors.New("targets: client not found")
	// ErrUnknownType indicates an unsupported target type.
	ErrUnknownType = errors.New("targets: unknown target type")
)

// Type enumerates allocation target kinds.
type Type string

const (
	TypeInvoice       Type = "invoice"
	TypeExpense       Type = "expense"
	TypePayable       Type = "payable"
	TypeManualAccount Type = "manual_account"
)

// Valid reports whether t is a known target type.
func (t Type) Valid() bool {
	switch t {
	case TypeInvoice, TypeExpense, TypePayable, TypeManualAccount:
		return true
	}
	return false
}

// Settleable reports whether payments against t change a stored balance.
func (t Type) Settleable() bool {
	return t == TypeInvoice || t == TypeExpense || t == TypePayable
}

// Status tracks how much of an item has been paid.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// OpenItem is an invoice, expense or payable with a balance still due.
type OpenItem struct {
	Type         Type            `json:"type"`
	ID           int64           `json:"id"`
	ClientID     *int64          `json:"client_id,omitempty"`
	Counterparty string          `json:"counterparty"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	DueDate      time.Time       `json:"due_date"`
	AccountCode  string          `json:"account_code,omitempty"`
	Status       Status          `json:"status"`
}

// Outstanding is the amount still due.
func (i OpenItem) Outstanding() decimal.Decimal {
	out := i.Amount.Sub(i.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Client is a customer of the firm identified by CPF or CNPJ digits.
type Client struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	TaxID                 string `json:"tax_id"`
	ReceivableAccountCode string `json:"receivable_account_code,omitempty"`
}

// Settle applies payment to an item of total amount already paid up to paid,
// returning the new paid total and status. Overpayment settles the item.
func Settle(amount, paid, payment, eps decimal.Decimal) (decimal.Decimal, Status) {
	newPaid := paid.Add(payment)
	switch {
	case newPaid.GreaterThanOrEqual(amount.Sub(eps)):
		return newPaid, StatusPaid
	case newPaid.IsPositive():
		return newPaid, StatusPartial
	default:
		return newPaid, StatusOpen
	}
}
