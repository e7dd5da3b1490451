package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FinanceLockKey builds redis keys for finance critical sections.
func FinanceLockKey(periodID int64) string {
	return fmt.Sprintf("finance:period:%d:lock", periodID)
}

// RevaluationLockKey guards a revaluation run for a period and currency.
func RevaluationLockKey(periodID int64, currency string) string {
	return fmt.Sprintf("finance:period:%d:reval:%s:lock", periodID, currency)
}

// ErrLeaseHeld indicates another worker holds the lease.
var ErrLeaseHeld = errors.New("shared: lease already held")

// Lease is a redis-backed advisory lock for multi-step finance operations
// that span more than one database transaction. Row locks remain the
// serialization mechanism inside each transaction; the lease only prevents
// two admin workflows from interleaving between transactions.
type Lease struct {
	client *redis.Client
}

func NewLease(client *redis.Client) *Lease {
	return &Lease{client: client}
}

// Acquire takes the lease or fails fast with ErrLeaseHeld. The returned
// release function is safe to call once, usually via defer.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return func() {
		_ = l.client.Del(context.WithoutCancel(ctx), key).Err()
	}, nil
}
