// Command reconcile is the operator tool for the reconciliation engine.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/odyssey-erp/reconciler/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	env := &environment{cfg: cfg, logger: app.NewLogger(cfg).With(slog.String("component", "cli"))}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&autoCmd{env: env}, "reconciliation")
	commander.Register(&integrityCmd{env: env}, "reconciliation")
	commander.Register(&enqueueCmd{env: env}, "queue")
	commander.Register(&queueCmd{env: env}, "queue")
	commander.Register(&scheduledCmd{env: env}, "queue")

	flag.Parse()
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
