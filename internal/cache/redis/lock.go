package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adlift/bidpilot/internal/domain"
)

// releaseLua deletes a lease key only when its value matches the caller's
// token, so an expired holder cannot release a lease that has since been
// re-acquired by another worker.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with Redis SETNX leases. The
// engine takes one lease per campaign per cycle; the TTL caps how long a
// crashed worker can block its campaign.
type LockManager struct {
	rdb       *redis.Client
	releaseSc *redis.Script
}

// NewLockManager creates a LockManager on the given client.
func NewLockManager(rdb *redis.Client) *LockManager {
	return &LockManager{
		rdb:       rdb,
		releaseSc: redis.NewScript(releaseLua),
	}
}

func leaseKey(key string) string {
	return "lease:" + key
}

// Acquire attempts to take the lease for key with the given TTL. On success
// it returns a release function that is safe to call more than once. It
// returns domain.ErrLockHeld when the lease is already taken.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := leaseKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		// Background context so release works even after the cycle's
		// context has been cancelled.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = lm.releaseSc.Run(relCtx, lm.rdb, []string{lk}, token).Err()
	}

	return release, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
