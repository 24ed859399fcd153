package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/odyssey-erp/reconciler/jobs"
)

// ExitIssuesFound is returned when a check ran but found problems.
const ExitIssuesFound = 10

// IntegrityOptions configures the integrity command output.
type IntegrityOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IntegrityCLI runs the ledger integrity check in-process.
type IntegrityCLI struct {
	job *jobs.LedgerIntegrityJob
}

// NewIntegrityCLI runs the ledger check against store.
func NewIntegrityCLI(store jobs.IntegrityStore, logger *slog.Logger) *IntegrityCLI {
	return &IntegrityCLI{job: &jobs.LedgerIntegrityJob{Store: store, Logger: logger}}
}

// CheckCommand prints the report and returns the process exit code.
func (c *IntegrityCLI) CheckCommand(ctx context.Context, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	report, err := c.job.Run(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "integrity: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(struct {
			OK bool `json:"ok"`
			jobs.IntegrityReport
		}{OK: report.Clean(), IntegrityReport: report}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		renderIntegrityHuman(opts.Stdout, report)
	}
	if !report.Clean() {
		return ExitIssuesFound
	}
	return 0
}

func renderIntegrityHuman(out io.Writer, report jobs.IntegrityReport) {
	if report.Clean() {
		_, _ = fmt.Fprintln(out, "Ledger is consistent.")
		return
	}
	for _, section := range []struct {
		label string
		ids   []int64
	}{
		{"unbalanced journal entries", report.UnbalancedEntries},
		{"bank transactions with an inconsistent match", report.InconsistentTransactions},
		{"bank entries without a transaction", report.OrphanedEntries},
	} {
		if len(section.ids) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "%d %s: %v\n", len(section.ids), section.label, section.ids)
	}
}
