package accounts

import (
	"strings"
	"time"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account models a chart of accounts node. Synthetic accounts only group
// children and never receive journal lines.
type Account struct {
	ID          int64       `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	ParentID    *int64      `json:"parent_id,omitempty"`
	IsSynthetic bool        `json:"is_synthetic"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Postable reports whether journal lines may reference the account.
func (a Account) Postable() bool {
	return !a.IsSynthetic && a.IsActive
}

// Under reports whether the account sits below the dotted code prefix,
// e.g. "4.1.1.08.03" is under "4.1.1.08".
func (a Account) Under(prefix string) bool {
	if prefix == "" {
		return false
	}
	return a.Code == prefix || strings.HasPrefix(a.Code, prefix+".")
}
