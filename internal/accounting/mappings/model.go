package mappings

import "time"

// AccountMapping links an integration key to a ledger account code, e.g.
// module RECONCILIATION, key invoice -> 1.1.2.01.
type AccountMapping struct {
	Module      string
	Key         string
	AccountCode string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
