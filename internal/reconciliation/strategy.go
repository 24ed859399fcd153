package reconciliation

import (
	"context"

	"github.com/odyssey-erp/reconciler/internal/banking"
	"github.com/odyssey-erp/reconciler/internal/training"
)

// Request carries what strategies may read: the transaction and the pattern
// snapshot the caller took.
type Request struct {
	Transaction banking.Transaction
	Patterns    *training.Snapshot
}

// Strategy proposes candidates for a transaction. Implementations are
// read-only.
type Strategy interface {
	Source() Source
	// External reports whether the strategy calls out of process.
	External() bool
	Propose(ctx context.Context, req Request) ([]MatchCandidate, error)
}
