package shared

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerDefaults(t *testing.T) {
	db := &recordingExecer{}
	err := NewAuditLogger(db).Record(context.Background(), AuditLog{
		Action:   "unmatch",
		Entity:   "bank_transaction",
		EntityID: "42",
	})
	require.NoError(t, err)
	require.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Equal(t, "system", db.args[0])
	require.JSONEq(t, `{}`, string(db.args[4].([]byte)))
	require.Nil(t, db.args[5])
}

func TestAuditLoggerKeepsMeta(t *testing.T) {
	db := &recordingExecer{}
	err := NewAuditLogger(db).Record(context.Background(), AuditLog{
		Actor:    "ana",
		Action:   "reconcile",
		Entity:   "bank_transaction",
		EntityID: "7",
		Meta:     map[string]any{"journal_entry_id": 3},
	})
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(db.args[4].([]byte), &meta))
	require.EqualValues(t, 3, meta["journal_entry_id"])
}

func TestAuditLoggerRejectsIncompleteRows(t *testing.T) {
	err := NewAuditLogger(&recordingExecer{}).Record(context.Background(), AuditLog{Action: "reconcile"})
	require.ErrorIs(t, err, errAuditIncomplete)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}
