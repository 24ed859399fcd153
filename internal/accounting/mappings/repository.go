package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
)

type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed mapping repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("accounting: module and key required")
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, key, account_code, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountCode, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Defaults answers mapping lookups from the database first and falls back to
// a static table, so a fresh install posts without seeded mappings.
type Defaults struct {
	repo     Repository
	module   string
	fallback map[string]string
}

// NewDefaults wires the fallback table for module.
func NewDefaults(repo Repository, module string, fallback map[string]string) *Defaults {
	copied := make(map[string]string, len(fallback))
	for k, v := range fallback {
		copied[k] = v
	}
	return &Defaults{repo: repo, module: module, fallback: copied}
}

// AccountCode returns the account code mapped to key.
func (d *Defaults) AccountCode(ctx context.Context, key string) (string, error) {
	if d.repo != nil {
		mapping, err := d.repo.Get(ctx, d.module, key)
		switch {
		case err == nil && mapping.AccountCode != "":
			return mapping.AccountCode, nil
		case err != nil && !errors.Is(err, shared.ErrMappingNotFound):
			return "", err
		}
	}
	if code, ok := d.fallback[key]; ok && code != "" {
		return code, nil
	}
	return "", shared.ErrMappingNotFound
}
