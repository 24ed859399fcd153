package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/odyssey-erp/reconciler/internal/app"
	"github.com/odyssey-erp/reconciler/internal/platform/migrations"
)

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Usage = func() {
		_, _ = fmt.Fprintln(os.Stderr, "usage: migrate [-steps n] up|down|version|force <version>")
	}
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "migrate"))

	migrator, err := migrations.New(cfg.PGDSN, logger)
	if err != nil {
		logger.Error("init migrations", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("close migrations", slog.Any("error", err))
		}
	}()

	cmd := flag.Arg(0)
	switch cmd {
	case "", "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down(*steps)
	case "version":
		var (
			v     uint
			dirty bool
		)
		if v, dirty, err = migrator.Version(); err == nil {
			fmt.Printf("version %d dirty=%t\n", v, dirty)
		}
	case "force":
		var v int
		if v, err = strconv.Atoi(flag.Arg(1)); err != nil {
			err = fmt.Errorf("force: invalid version %q", flag.Arg(1))
			break
		}
		err = migrator.Force(v)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("migrate "+cmd, slog.Any("error", err))
		os.Exit(1)
	}
}
