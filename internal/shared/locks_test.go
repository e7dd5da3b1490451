package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLease(t *testing.T) (*Lease, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLease(client), srv
}

func TestLeaseAcquireAndRelease(t *testing.T) {
	lease, srv := newTestLease(t)
	ctx := context.Background()
	key := FinanceLockKey(3)

	release, err := lease.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, srv.Exists(key))

	_, err = lease.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	release()
	require.False(t, srv.Exists(key))

	release2, err := lease.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	release2()
}

func TestLeaseExpiresWithTTL(t *testing.T) {
	lease, srv := newTestLease(t)
	ctx := context.Background()
	key := RevaluationLockKey(12, "IDR")

	_, err := lease.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	srv.FastForward(2 * time.Second)

	release, err := lease.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	release()
}

func TestNilLeaseIsNoOp(t *testing.T) {
	var lease *Lease
	release, err := lease.Acquire(context.Background(), "any", time.Minute)
	require.NoError(t, err)
	release()
}
