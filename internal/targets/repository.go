package targets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
)

// Repository reads open items for candidate generation.
type Repository interface {
	ListOpen(ctx context.Context, types ...Type) ([]OpenItem, error)
	OpenInvoicesForClient(ctx context.Context, clientID int64) ([]OpenItem, error)
	FindClientByTaxID(ctx context.Context, taxID string) (Client, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed target repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const openInvoicesSQL = `SELECT 'invoice', i.id, i.client_id, c.name, i.description, i.amount, i.paid_amount, i.due_date, COALESCE(c.receivable_account_code, ''), i.status
FROM invoices i JOIN clients c ON c.id = i.client_id WHERE i.status <> 'paid'`

const openExpensesSQL = `SELECT 'expense', e.id, NULL::bigint, e.supplier_name, e.description, e.amount, e.paid_amount, e.due_date, e.account_code, e.status
FROM expenses e WHERE e.status <> 'paid'`

const openPayablesSQL = `SELECT 'payable', p.id, NULL::bigint, p.supplier_name, p.description, p.amount, p.paid_amount, p.due_date, p.account_code, p.status
FROM payables p WHERE p.status <> 'paid'`

func (r *repository) ListOpen(ctx context.Context, types ...Type) ([]OpenItem, error) {
	if len(types) == 0 {
		types = []Type{TypeInvoice, TypeExpense, TypePayable}
	}
	var out []OpenItem
	for _, t := range types {
		var query string
		switch t {
		case TypeInvoice:
			query = openInvoicesSQL
		case TypeExpense:
			query = openExpensesSQL
		case TypePayable:
			query = openPayablesSQL
		default:
			continue
		}
		items, err := r.query(ctx, query+` ORDER BY due_date ASC, id ASC`)
		if err != nil {
			return nil, fmt.Errorf("targets: list open %s: %w", t, err)
		}
		out = append(out, items...)
	}
	return out, nil
}

func (r *repository) OpenInvoicesForClient(ctx context.Context, clientID int64) ([]OpenItem, error) {
	return r.query(ctx, openInvoicesSQL+` AND i.client_id = $1 ORDER BY i.due_date ASC, i.id ASC`, clientID)
}

func (r *repository) FindClientByTaxID(ctx context.Context, taxID string) (Client, error) {
	var c Client
	err := r.db.QueryRow(ctx, `SELECT id, name, tax_id, COALESCE(receivable_account_code, '') FROM clients WHERE tax_id = $1 AND is_active`, taxID).
		Scan(&c.ID, &c.Name, &c.TaxID, &c.ReceivableAccountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]OpenItem, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OpenItem
	for rows.Next() {
		var item OpenItem
		if err := rows.Scan(&item.Type, &item.ID, &item.ClientID, &item.Counterparty, &item.Description, &item.Amount, &item.PaidAmount, &item.DueDate, &item.AccountCode, &item.Status); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// TxStore applies payments inside the posting transaction.
type TxStore struct {
	tx  pgx.Tx
	eps decimal.Decimal
}

// NewTxStore applies payments inside tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx, eps: moneyutil.MoneyEpsilon}
}

func tableFor(t Type) (string, error) {
	switch t {
	case TypeInvoice:
		return "invoices", nil
	case TypeExpense:
		return "expenses", nil
	case TypePayable:
		return "payables", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownType, t)
}

// ApplyPayment records amount against the target. Manual account
// allocations carry no balance and are accepted as-is.
func (s *TxStore) ApplyPayment(ctx context.Context, t Type, id int64, amount decimal.Decimal, date time.Time) error {
	if t == TypeManualAccount {
		return nil
	}
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	var total, paid decimal.Decimal
	err = s.tx.QueryRow(ctx, `SELECT amount, paid_amount FROM `+table+` WHERE id = $1 FOR UPDATE`, id).Scan(&total, &paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", ErrTargetNotFound, t, id)
		}
		return err
	}
	newPaid, status := Settle(total, paid, amount, s.eps)
	var paidAt any
	if status == StatusPaid {
		paidAt = date
	}
	_, err = s.tx.Exec(ctx, `UPDATE `+table+` SET paid_amount = $2, status = $3, paid_at = COALESCE($4, paid_at), updated_at = NOW() WHERE id = $1`,
		id, newPaid.StringFixed(2), status, paidAt)
	return err
}
