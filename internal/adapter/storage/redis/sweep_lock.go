package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this holder still owns it, so
// a replica whose lock already expired cannot release a successor's lock.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// SweepLock implements ports.SweepLock using Redis SET NX. It serializes
// the reconciliation sweep across replicas: whichever process acquires the
// key runs the sweep, the others skip that tick. The TTL bounds how long a
// crashed holder can block successors.
type SweepLock struct {
	client *goredis.Client
	key    string
	holder string
}

// NewSweepLock creates a Redis-backed sweep lock.
func NewSweepLock(client *goredis.Client) *SweepLock {
	return &SweepLock{
		client: client,
		key:    "ledger:reconcile:lock",
		holder: uuid.NewString(),
	}
}

// Acquire attempts to take the sweep lock. Returns true if this process now
// holds it, false if another replica does.
func (l *SweepLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis sweep lock acquire: %w", err)
	}
	return ok, nil
}

// Release frees the lock if this process still holds it.
func (l *SweepLock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.holder).Err(); err != nil {
		return fmt.Errorf("redis sweep lock release: %w", err)
	}
	return nil
}
