package redis

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_SecondAcquireFails(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "deposit:flow-1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "deposit:flow-1")
	assert.ErrorIs(t, err, domainErrors.ErrSubmissionInFlight)

	require.NoError(t, release(ctx))

	release2, err := locker.Acquire(ctx, "deposit:flow-1")
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestDistributedLock_ReleaseAfterExpiry(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	lock := NewDistributedLock(client, "k", time.Second)
	require.NoError(t, lock.TryAcquire(ctx))
	assert.True(t, mr.Exists("cashdesk:lock:k"))

	mr.FastForward(2 * time.Second)

	// Someone else took the key after expiry; the stale holder must not delete it.
	other := NewDistributedLock(client, "k", time.Minute)
	require.NoError(t, other.TryAcquire(ctx))

	assert.ErrorIs(t, lock.Release(ctx), domainErrors.ErrLockNotHeld)
	assert.True(t, mr.Exists("cashdesk:lock:k"))
}

func TestDistributedLock_ReleaseWithoutAcquire(t *testing.T) {
	_, client := newTestClient(t)
	lock := NewDistributedLock(client, "k", time.Second)
	assert.NoError(t, lock.Release(context.Background()))
}
