package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/reconciler/jobs"
)

// AutoOptions scopes an in-process automatic reconciliation run.
type AutoOptions struct {
	TransactionIDs []int64
	Limit          int
	JSONOutput     bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// AutoCLI runs a batch without going through the queue.
type AutoCLI struct {
	job *jobs.AutoReconcileJob
}

// NewAutoCLI runs job in process.
func NewAutoCLI(job *jobs.AutoReconcileJob) *AutoCLI {
	return &AutoCLI{job: job}
}

// RunCommand prints the batch statistics. Failed transactions or a batch
// skipped because another run holds the lock yield ExitIssuesFound.
func (c *AutoCLI) RunCommand(ctx context.Context, opts AutoOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Limit < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "auto: --limit must not be negative")
		return 1
	}
	stats, err := c.job.Run(ctx, jobs.AutoReconcilePayload{Limit: opts.Limit, TransactionIDs: opts.TransactionIDs})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "auto: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "auto: encode json: %v\n", err)
			return 1
		}
	} else if stats.Skipped {
		_, _ = fmt.Fprintln(opts.Stdout, "Another batch is running; nothing was processed.")
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "Processed %d transaction(s): %d posted, %d sent to review, %d already matched, %d claimed elsewhere, %d failed.\n",
			stats.Processed, stats.Reconciled, stats.NeedsReview, stats.AlreadyReconciled, stats.Claimed, stats.Failed)
	}
	if stats.Failed > 0 || stats.Skipped {
		return ExitIssuesFound
	}
	return 0
}
