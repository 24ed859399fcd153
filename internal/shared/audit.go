package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog is one audit_logs row. Reconciliation writes one per post,
// auto-post and unmatch.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

var errAuditIncomplete = errors.New("audit: action, entity and entity id are required")

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type AuditLogger struct {
	db Execer
}

// NewAuditLogger writes audit rows through db, a pool or an open transaction.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record inserts the row. Automated runs without an actor are stored as
// "system"; a zero At uses the database clock.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit: logger not configured")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errAuditIncomplete
	}
	if log.Actor == "" {
		log.Actor = "system"
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.db.Exec(ctx, `
INSERT INTO audit_logs (actor, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.Actor, log.Action, log.Entity, log.EntityID, meta, at)
	return err
}
