package shared

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type keyTable struct {
	keys map[string]bool
	args []any
}

func (k *keyTable) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	k.args = args
	if !strings.HasPrefix(sql, "INSERT") {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	id := args[1].(string) + "/" + args[0].(string)
	if k.keys[id] {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
	}
	k.keys[id] = true
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestIdempotencyStoreRejectsReplays(t *testing.T) {
	store := NewIdempotencyStore(&keyTable{keys: map[string]bool{}})
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "req-1", "reconciliation"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "req-1", "reconciliation"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "req-1", "training"))

	require.Error(t, store.CheckAndInsert(ctx, " ", "reconciliation"))
	require.Error(t, store.CheckAndInsert(ctx, strings.Repeat("k", 201), "reconciliation"))
	require.Error(t, store.CheckAndInsert(ctx, "req-2", ""))
}

func TestIdempotencyCleanupCutoff(t *testing.T) {
	table := &keyTable{keys: map[string]bool{}}
	store := NewIdempotencyStore(table)
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Cleanup(context.Background(), 72*time.Hour))
	require.Equal(t, now.Add(-72*time.Hour), table.args[0])
	require.Error(t, store.Cleanup(context.Background(), 0))
}
