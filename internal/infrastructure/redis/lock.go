package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the holder's token may release the key.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock is a single SET NX lock. The submitter holds one per
// idempotency key while a submission is in flight, so two API replicas
// never post the same draft.
type DistributedLock struct {
	client   *redis.Client
	key      string
	token    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    lockPrefix + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire does not wait. It returns ErrSubmissionInFlight when another
// holder owns the key.
func (l *DistributedLock) TryAcquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, err)
	}
	if !ok {
		return domainErrors.ErrSubmissionInFlight
	}
	l.acquired = true
	return nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.acquired = false
	if res == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Locker hands out submission locks backed by one client.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lock for key and returns its release func.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lock := NewDistributedLock(l.client, key, l.ttl)
	if err := lock.TryAcquire(ctx); err != nil {
		return nil, err
	}
	return lock.Release, nil
}
