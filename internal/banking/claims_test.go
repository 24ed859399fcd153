package banking

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reconciler/internal/shared"
)

func newTestClaims(t *testing.T, ttl time.Duration) (*Claims, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewClaims(client, ttl), mr
}

func TestClaimIsExclusiveUntilReleased(t *testing.T) {
	claims, _ := newTestClaims(t, time.Minute)
	ctx := context.Background()

	lease, ok, err := claims.Claim(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = claims.Claim(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = claims.Claim(ctx, 43)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lease.Release(ctx))
	_, ok, err = claims.Claim(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClaimExpiresWithTTL(t *testing.T) {
	claims, mr := newTestClaims(t, 30*time.Second)
	ctx := context.Background()

	_, ok, err := claims.Claim(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	_, ok, err = claims.Claim(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReleaseDoesNotDropForeignLease(t *testing.T) {
	claims, mr := newTestClaims(t, 30*time.Second)
	ctx := context.Background()

	stale, ok, err := claims.Claim(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	_, ok, err = claims.Claim(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	require.True(t, mr.Exists(shared.ReconClaimKey(9)))
}

func TestNilClaimsAlwaysGrants(t *testing.T) {
	var claims *Claims
	lease, ok, err := claims.Claim(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lease.Release(context.Background()))
}

func TestLocalClaimsAreExclusiveWithoutRedis(t *testing.T) {
	claims := NewClaims(nil, time.Minute)
	ctx := context.Background()

	first, ok, err := claims.Claim(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = claims.Claim(ctx, 7)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, first.Release(ctx))
	_, ok, err = claims.Claim(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLocalClaimsExpireAndIgnoreStaleRelease(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	claims := NewClaims(nil, 30*time.Second)
	claims.local.now = func() time.Time { return now }
	ctx := context.Background()

	stale, ok, err := claims.Claim(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(31 * time.Second)
	fresh, ok, err := claims.Claim(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	require.ErrorIs(t, stale.Refresh(ctx), ErrLeaseLost)
	_, ok, err = claims.Claim(ctx, 9)
	require.NoError(t, err)
	require.False(t, ok, "stale release must not drop the fresh lease")
	require.NoError(t, fresh.Release(ctx))
}

func TestBatchLockRefreshExtendsExpiry(t *testing.T) {
	claims, mr := newTestClaims(t, time.Minute)
	claims.WithBatchTTL(10 * time.Minute)
	require.Equal(t, 10*time.Minute, claims.BatchTTL())
	ctx := context.Background()

	lease, ok, err := claims.ClaimBatch(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 10*time.Minute, mr.TTL(shared.ReconBatchLockKey()))

	mr.FastForward(8 * time.Minute)
	require.NoError(t, lease.Refresh(ctx))
	require.Equal(t, 10*time.Minute, mr.TTL(shared.ReconBatchLockKey()))

	mr.FastForward(11 * time.Minute)
	require.ErrorIs(t, lease.Refresh(ctx), ErrLeaseLost)
}
