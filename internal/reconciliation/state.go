package reconciliation

import (
	"fmt"

	"github.com/odyssey-erp/reconciler/internal/banking"
)

// Transition checks a reconciliation state change. Pending moves to matched
// on a committed posting; matched moves back to pending on unmatch. Neither
// state is terminal.
func Transition(from, to banking.State) error {
	switch {
	case from == banking.StatePending && to == banking.StateMatched:
		return nil
	case from == banking.StateMatched && to == banking.StatePending:
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
