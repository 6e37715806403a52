package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (r *recordingInvalidator) InvalidateHistory(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return r.err
}

func (r *recordingInvalidator) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

func TestRunEvents_InvalidatesHistoryOnTerminalEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := infraRedis.NewEventPublisher(client, "cashdesk:events", 0)
	consumer := infraRedis.NewStreamConsumer(client, "cashdesk:events", "workers", "w1", 10, 5*time.Millisecond)
	require.NoError(t, consumer.CreateGroup(ctx))

	for _, ev := range []infraRedis.Event{
		{Type: infraRedis.EventSubmitted, Flow: "deposit", Owner: "u1", RequestID: "req-1"},
		{Type: infraRedis.EventSucceeded, Flow: "deposit", Owner: "u1", RequestID: "req-1"},
		{Type: infraRedis.EventFailed, Flow: "withdraw", Owner: "u2", RequestID: "req-2"},
	} {
		require.NoError(t, publisher.Publish(ctx, ev))
	}

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	inv := &recordingInvalidator{}
	done := make(chan error, 1)
	go func() { done <- RunEvents(ctx, zerolog.Nop(), consumer, inv, metrics) }()

	require.Eventually(t, func() bool { return len(inv.Users()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"u1", "u2"}, inv.Users())
	require.Eventually(t, func() bool {
		pending, err := client.XPending(context.Background(), "cashdesk:events", "workers").Result()
		return err == nil && pending.Count == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsConsumedTotal.WithLabelValues(infraRedis.EventSubmitted, "skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsConsumedTotal.WithLabelValues(infraRedis.EventSucceeded, "ok")))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunEvents did not stop")
	}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name string
		msg  infraRedis.Message
		err  error
		want string
	}{
		{"succeeded", infraRedis.Message{Event: infraRedis.Event{Type: infraRedis.EventSucceeded, Owner: "u1"}}, nil, "ok"},
		{"failed", infraRedis.Message{Event: infraRedis.Event{Type: infraRedis.EventFailed, Owner: "u1"}}, nil, "ok"},
		{"submitted", infraRedis.Message{Event: infraRedis.Event{Type: infraRedis.EventSubmitted, Owner: "u1"}}, nil, "skipped"},
		{"no owner", infraRedis.Message{Event: infraRedis.Event{Type: infraRedis.EventFailed}}, nil, "skipped"},
		{"cache down", infraRedis.Message{Event: infraRedis.Event{Type: infraRedis.EventSucceeded, Owner: "u1"}}, errors.New("down"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handle(context.Background(), &recordingInvalidator{err: tt.err}, tt.msg))
		})
	}
}

type stubConsumer struct {
	reads atomic.Int32
}

func (s *stubConsumer) Read(ctx context.Context) ([]infraRedis.Message, error) {
	s.reads.Add(1)
	return nil, errors.New("connection refused")
}

func (s *stubConsumer) Ack(ctx context.Context, ids ...string) error { return nil }

func TestRunEvents_StopsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &stubConsumer{}
	done := make(chan error, 1)
	go func() { done <- RunEvents(ctx, zerolog.Nop(), c, &recordingInvalidator{}, nil) }()

	require.Eventually(t, func() bool { return c.reads.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunEvents did not stop during backoff")
	}
}

type stubExpirer struct {
	calls atomic.Int32
	rows  int64
	err   error
}

func (s *stubExpirer) DeleteExpired(ctx context.Context) (int64, error) {
	s.calls.Add(1)
	return s.rows, s.err
}

func TestRunSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &stubExpirer{rows: 3}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	done := make(chan error, 1)
	go func() { done <- RunSweeper(ctx, zerolog.Nop(), store, 2*time.Millisecond, metrics) }()

	require.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.DraftsExpiredTotal), float64(6))
}

func TestRunSweeper_KeepsGoingAfterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &stubExpirer{err: errors.New("db down")}

	go RunSweeper(ctx, zerolog.Nop(), store, time.Millisecond, nil)

	require.Eventually(t, func() bool { return store.calls.Load() >= 3 }, time.Second, time.Millisecond)
}
