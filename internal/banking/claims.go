package banking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/reconciler/internal/shared"
)

var releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var refreshScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// ErrLeaseLost is returned by Refresh when the lease expired and someone
// else took it.
var ErrLeaseLost = errors.New("banking: lease lost")

const defaultBatchTTL = 15 * time.Minute

// Claims hands out short redis leases so two workers never analyze the same
// transaction at once. The lease expires on its own if a worker dies. Without
// a redis client the leases are held in process.
type Claims struct {
	client   *redis.Client
	local    *localLeases
	ttl      time.Duration
	batchTTL time.Duration
}

// NewClaims builds claims with ttl per transaction lease. A nil client keeps
// leases in memory, which only guards a single process.
func NewClaims(client *redis.Client, ttl time.Duration) *Claims {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	c := &Claims{client: client, ttl: ttl, batchTTL: defaultBatchTTL}
	if client == nil {
		c.local = newLocalLeases(time.Now)
	}
	return c
}

// WithBatchTTL sets how long the batch lock survives without a refresh.
func (c *Claims) WithBatchTTL(ttl time.Duration) *Claims {
	if ttl > 0 {
		c.batchTTL = ttl
	}
	return c
}

// BatchTTL reports the batch lock lifetime.
func (c *Claims) BatchTTL() time.Duration {
	if c == nil {
		return defaultBatchTTL
	}
	return c.batchTTL
}

// Lease is a held claim.
type Lease struct {
	key    string
	token  string
	ttl    time.Duration
	client *redis.Client
	local  *localLeases
}

// Claim tries to take the lease for transactionID. ok is false when another
// holder already owns it.
func (c *Claims) Claim(ctx context.Context, transactionID int64) (Lease, bool, error) {
	if c == nil {
		return Lease{}, true, nil
	}
	return c.claimKey(ctx, shared.ReconClaimKey(transactionID), c.ttl)
}

// ClaimBatch takes the batch-wide lease.
func (c *Claims) ClaimBatch(ctx context.Context) (Lease, bool, error) {
	if c == nil {
		return Lease{}, true, nil
	}
	return c.claimKey(ctx, shared.ReconBatchLockKey(), c.batchTTL)
}

func (c *Claims) claimKey(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token := uuid.NewString()
	if c.client == nil {
		if !c.local.acquire(key, token, ttl) {
			return Lease{}, false, nil
		}
		return Lease{key: key, token: token, ttl: ttl, local: c.local}, true, nil
	}
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return Lease{}, false, err
	}
	if !ok {
		return Lease{}, false, nil
	}
	return Lease{key: key, token: token, ttl: ttl, client: c.client}, true, nil
}

// Refresh pushes the lease expiry one full ttl forward.
func (l Lease) Refresh(ctx context.Context) error {
	switch {
	case l.local != nil:
		if !l.local.refresh(l.key, l.token, l.ttl) {
			return ErrLeaseLost
		}
		return nil
	case l.client != nil:
		n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLeaseLost
		}
		return nil
	default:
		return nil
	}
}

// Release drops the lease if it is still ours.
func (l Lease) Release(ctx context.Context) error {
	if l.local != nil {
		l.local.release(l.key, l.token)
		return nil
	}
	if l.client == nil {
		return nil
	}
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

type localHold struct {
	token   string
	expires time.Time
}

// localLeases mirrors the SET NX PX semantics for a single process.
type localLeases struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]localHold
}

func newLocalLeases(now func() time.Time) *localLeases {
	return &localLeases{now: now, held: make(map[string]localHold)}
}

func (l *localLeases) acquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return false
	}
	l.held[key] = localHold{token: token, expires: now.Add(ttl)}
	return true
}

func (l *localLeases) refresh(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	h, ok := l.held[key]
	if !ok || h.token != token || !now.Before(h.expires) {
		return false
	}
	l.held[key] = localHold{token: token, expires: now.Add(ttl)}
	return true
}

func (l *localLeases) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
}
