package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIdempotencyConflict is returned when a key was already claimed.
var ErrIdempotencyConflict = errors.New("idempotency: request already processed")

const maxIdempotencyKeyLen = 200

// IdempotencyStore claims request keys in idempotency_keys, scoped per
// module. Interactive reconciliation claims the Idempotency-Key header
// before posting and releases it when posting fails.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore keeps request keys in idempotency_keys.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

func validKey(key, module string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.New("idempotency: key required")
	case len(key) > maxIdempotencyKeyLen:
		return fmt.Errorf("idempotency: key longer than %d bytes", maxIdempotencyKeyLen)
	case module == "":
		return errors.New("idempotency: module required")
	}
	return nil
}

// CheckAndInsert records key for module, or returns ErrIdempotencyConflict when it was
// already seen.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency: store not configured")
	}
	if err := validKey(key, module); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, s.now())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIdempotencyConflict
	}
	return err
}

// Delete releases key so the client can retry with it.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := validKey(key, module); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module)
	return err
}

// Cleanup drops keys claimed more than olderThan ago.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	if olderThan <= 0 {
		return fmt.Errorf("idempotency: retention must be positive, got %s", olderThan)
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	return err
}
