package shared

import "fmt"

// ReconClaimKey builds the redis lease key guarding analysis of one bank transaction.
func ReconClaimKey(transactionID int64) string {
	return fmt.Sprintf("reconciliation:tx:%d:claim", transactionID)
}

// ReconBatchLockKey guards a whole batch run so two schedulers never overlap.
func ReconBatchLockKey() string {
	return "reconciliation:batch:lock"
}
