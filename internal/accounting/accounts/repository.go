package accounts

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	List(ctx context.Context) ([]Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed account repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const listAccountsSQL = `
SELECT id, code, name, type, parent_id, is_synthetic, is_active, created_at, updated_at
FROM accounts
ORDER BY code`

// List loads the whole chart, synthetic and inactive accounts included; the
// catalog decides what is postable.
func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, listAccountsSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Account, error) {
		var a Account
		err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsSynthetic, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
		return a, err
	})
}
