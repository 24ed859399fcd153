// Package migrations applies the embedded schema with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Source exposes the embedded migrations as a golang-migrate source.
func Source() (source.Driver, error) {
	return iofs.New(files, "sql")
}

// DatabaseURL rewrites a postgres DSN to the pgx5 scheme the driver
// registers under.
func DatabaseURL(dsn string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("migrations: unsupported dsn scheme in %q", redact(dsn))
}

// Migrator wraps a golang-migrate instance bound to the embedded files.
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New opens a migrator for dsn over the embedded SQL files.
func New(dsn string, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	url, err := DatabaseURL(dsn)
	if err != nil {
		return nil, err
	}
	src, err := Source()
	if err != nil {
		return nil, fmt.Errorf("migrations: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	return &Migrator{m: m, logger: logger}, nil
}

// Up applies every pending migration. No pending migration is not an error.
func (g *Migrator) Up() error {
	err := g.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		g.logger.Info("schema up to date")
		return nil
	}
	return g.wrap("up", err)
}

// Down rolls back steps migrations.
func (g *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.New("migrations: steps must be positive")
	}
	err := g.m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return g.wrap("down", err)
}

// Version reports the applied version and whether the last run left the
// schema dirty. A database with no migrations reports version 0.
func (g *Migrator) Version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force sets the version without running migrations, clearing a dirty flag.
func (g *Migrator) Force(version int) error {
	return g.wrap("force", g.m.Force(version))
}

// Close releases the source and database handles.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (g *Migrator) wrap(op string, err error) error {
	if err == nil {
		v, dirty, verr := g.Version()
		if verr == nil {
			g.logger.Info("migrations applied", slog.String("op", op), slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))
		}
		return nil
	}
	var dirtyErr migrate.ErrDirty
	if errors.As(err, &dirtyErr) {
		return fmt.Errorf("migrations: %s: schema dirty at version %d, fix and force: %w", op, dirtyErr.Version, err)
	}
	return fmt.Errorf("migrations: %s: %w", op, err)
}

func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
