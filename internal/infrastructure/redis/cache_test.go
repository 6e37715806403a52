package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_RoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	c := NewCache(client)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "payment-settings")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "payment-settings", []byte("x"), time.Minute))
	assert.True(t, mr.Exists("cashdesk:cache:payment-settings"))

	v, ok, err := c.Get(ctx, "payment-settings")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), v)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "payment-settings")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("y"), time.Minute))
	require.NoError(t, c.Invalidate(ctx, "k"))
	assert.False(t, mr.Exists("cashdesk:cache:k"))
}
