package balances

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	// Balances returns cumulative debit and credit per account for entries
	// with competence date on or before asOf.
	Balances(ctx context.Context, asOf time.Time) ([]AccountBalance, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed balance reader.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Balances(ctx context.Context, asOf time.Time) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `
SELECT a.code, a.name, a.type, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.je_id
JOIN accounts a ON a.id = l.account_id
WHERE e.competence_date <= $1
GROUP BY a.code, a.name, a.type
ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.Code, &b.Name, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
