package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/odyssey-erp/reconciler/cmd/reconcile/cli"
	"github.com/odyssey-erp/reconciler/internal/app"
	"github.com/odyssey-erp/reconciler/internal/platform/cache"
	"github.com/odyssey-erp/reconciler/internal/platform/db"
	"github.com/odyssey-erp/reconciler/jobs"
)

type environment struct {
	cfg    *app.Config
	logger *slog.Logger
}

func fail(cmd string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
	return subcommands.ExitFailure
}

type autoCmd struct {
	env    *environment
	ids    string
	limit  int
	asJSON bool
}

func (*autoCmd) Name() string     { return "auto" }
func (*autoCmd) Synopsis() string { return "run automatic reconciliation now" }
func (*autoCmd) Usage() string {
	return `reconcile auto [-ids 1,2] [-limit n] [-json]

  Reconciles pending bank transactions in-process, posting confident
  candidates and raising questions for the rest. Exits 10 when any
  transaction failed or was claimed by another worker.
`
}

func (c *autoCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ids, "ids", "", "comma separated transaction ids")
	f.IntVar(&c.limit, "limit", c.env.cfg.Reconciliation.BatchSize, "maximum pending transactions")
	f.BoolVar(&c.asJSON, "json", false, "print JSON")
}

func (c *autoCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.env.cfg
	selected, err := parseIDs(c.ids)
	if err != nil {
		return fail("auto", err)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fail("auto", err)
	}
	defer pool.Close()
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fail("auto", err)
	}
	defer func() { _ = redisClient.Close() }()

	engine, err := app.NewEngine(ctx, app.EngineDeps{Config: cfg, Pool: pool, Redis: redisClient, Logger: c.env.logger})
	if err != nil {
		return fail("auto", err)
	}
	job := &jobs.AutoReconcileJob{
		Service:     engine.Service,
		Patterns:    engine.Patterns,
		Locks:       engine.Claims,
		Logger:      c.env.logger,
		Concurrency: cfg.Reconciliation.Concurrency,
		Limit:       cfg.Reconciliation.BatchSize,
	}
	code := cli.NewAutoCLI(job).RunCommand(ctx, cli.AutoOptions{TransactionIDs: selected, Limit: c.limit, JSONOutput: c.asJSON})
	return subcommands.ExitStatus(code)
}

type integrityCmd struct {
	env    *environment
	asJSON bool
}

func (*integrityCmd) Name() string     { return "integrity" }
func (*integrityCmd) Synopsis() string { return "check ledger consistency" }
func (*integrityCmd) Usage() string {
	return `reconcile integrity [-json]

  Lists unbalanced entries, transactions whose match flag disagrees with
  their entry, and bank entries without a transaction. Exits 10 when any
  are found.
`
}

func (c *integrityCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "print JSON")
}

func (c *integrityCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.env.cfg
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fail("integrity", err)
	}
	defer pool.Close()
	code := cli.NewIntegrityCLI(jobs.NewIntegrityStore(pool), c.env.logger).CheckCommand(ctx, cli.IntegrityOptions{JSONOutput: c.asJSON})
	return subcommands.ExitStatus(code)
}

type enqueueCmd struct {
	env   *environment
	job   string
	ids   string
	limit int
}

func (*enqueueCmd) Name() string     { return "enqueue" }
func (*enqueueCmd) Synopsis() string { return "queue a background job" }
func (*enqueueCmd) Usage() string {
	return `reconcile enqueue [-job name] [-ids 1,2] [-limit n]

  Jobs: reconciliation:auto, ledger:integrity, maintenance:idempotency_cleanup.
`
}

func (c *enqueueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.job, "job", jobs.TaskReconcileAuto, "job to enqueue")
	f.StringVar(&c.ids, "ids", "", "comma separated transaction ids")
	f.IntVar(&c.limit, "limit", 0, "maximum pending transactions")
}

func (c *enqueueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	selected, err := parseIDs(c.ids)
	if err != nil {
		return fail("enqueue", err)
	}
	jobsCLI, err := cli.NewJobsCLI(c.env.cfg.RedisAddr)
	if err != nil {
		return fail("enqueue", err)
	}
	defer func() { _ = jobsCLI.Close() }()

	info, err := jobsCLI.Trigger(ctx, c.job, cli.TriggerOptions{
		TransactionIDs: selected,
		Limit:          c.limit,
		Retention:      c.env.cfg.Reconciliation.IdempotencyRetention,
	})
	if err != nil {
		return fail("enqueue", err)
	}
	fmt.Printf("enqueued %s as %s\n", info.Type, info.ID)
	return subcommands.ExitSuccess
}

type queueCmd struct {
	env   *environment
	queue string
}

func (*queueCmd) Name() string     { return "queue" }
func (*queueCmd) Synopsis() string { return "show queue statistics" }
func (*queueCmd) Usage() string    { return "reconcile queue [-queue default|maintenance]\n" }

func (c *queueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.queue, "queue", jobs.QueueDefault, "queue name")
}

func (c *queueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	jobsCLI, err := cli.NewJobsCLI(c.env.cfg.RedisAddr)
	if err != nil {
		return fail("queue", err)
	}
	defer func() { _ = jobsCLI.Close() }()

	stats, err := jobsCLI.InspectQueue(ctx, c.queue)
	if err != nil {
		return fail("queue", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(stats)
	return subcommands.ExitSuccess
}

type scheduledCmd struct {
	env  *environment
	size int
}

func (*scheduledCmd) Name() string     { return "scheduled" }
func (*scheduledCmd) Synopsis() string { return "list scheduled tasks" }
func (*scheduledCmd) Usage() string    { return "reconcile scheduled [-size n]\n" }

func (c *scheduledCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.size, "size", 10, "page size")
}

func (c *scheduledCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	jobsCLI, err := cli.NewJobsCLI(c.env.cfg.RedisAddr)
	if err != nil {
		return fail("scheduled", err)
	}
	defer func() { _ = jobsCLI.Close() }()

	tasks, err := jobsCLI.ListScheduled(ctx, c.size)
	if err != nil {
		return fail("scheduled", err)
	}
	for _, t := range tasks {
		fmt.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
	}
	return subcommands.ExitSuccess
}

func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid transaction id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
