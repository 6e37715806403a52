package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/request"
	redisinfra "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/cassiomorais/cashdesk/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSubmitted(t *testing.T, f *fixture, requestID string) *draft.Draft {
	t.Helper()
	d := testutil.SeedDepositDraft(t, f.store, owner, "1xbet", "500")
	require.NoError(t, f.store.MarkSubmitted(context.Background(), owner, draft.FlowDeposit, d.IdempotencyKey(), requestID))
	return d
}

func TestStatusPoller_CheckWithoutRequest(t *testing.T) {
	f := newFixture(t)
	testutil.SeedDepositDraft(t, f.store, owner, "1xbet", "500")

	_, err := f.poller(time.Millisecond, 0).Check(context.Background(), owner, draft.FlowDeposit)
	assert.ErrorIs(t, err, domainErrors.ErrNoRequest)
	assert.Zero(t, f.api.Calls("GetRequest"))
}

func TestStatusPoller_CheckClassifiesStatus(t *testing.T) {
	tests := []struct {
		status string
		want   request.Outcome
	}{
		{"pending", request.OutcomeWaiting},
		{"processing", request.OutcomeWaiting},
		{"completed", request.OutcomeSuccess},
		{"AUTODEPOSIT_SUCCESS", request.OutcomeSuccess},
		{"rejected", request.OutcomeError},
		{"declined", request.OutcomeError},
		{"something_new", request.OutcomeWaiting},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture(t)
			seedSubmitted(t, f, "req-1")
			f.api.GetRequestFunc = func(ctx context.Context, id string) (*request.Request, error) {
				return &request.Request{ID: id, Status: tt.status, Amount: decimal.RequireFromString("500.37")}, nil
			}

			st, err := f.poller(time.Millisecond, 0).Check(context.Background(), owner, draft.FlowDeposit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Outcome)
			assert.Equal(t, "req-1", st.RequestID)
		})
	}
}

func TestStatusPoller_SuccessClearsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := seedSubmitted(t, f, "req-1")
	f.api.GetRequestFunc = func(ctx context.Context, id string) (*request.Request, error) {
		return &request.Request{ID: id, Status: "completed", ProcessedBy: "autodeposit"}, nil
	}

	st, err := f.poller(time.Millisecond, 0).Check(ctx, owner, draft.FlowDeposit)
	require.NoError(t, err)
	assert.Equal(t, request.OutcomeSuccess, st.Outcome)
	assert.True(t, st.Automated)

	got, err := f.store.Get(ctx, owner, draft.FlowDeposit)
	require.NoError(t, err)
	assert.Nil(t, got)
	held, err := f.store.HasGuard(ctx, owner, d.IdempotencyKey())
	require.NoError(t, err)
	assert.False(t, held)
	assert.Equal(t, []string{redisinfra.EventSucceeded}, f.events.Types())
}

func TestStatusPoller_FailureKeepsGuardAndReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := seedSubmitted(t, f, "req-1")
	f.api.GetRequestFunc = func(ctx context.Context, id string) (*request.Request, error) {
		return &request.Request{ID: id, Status: "rejected", StatusDetail: `{"reason":"wrong receipt"}`}, nil
	}

	st, err := f.poller(time.Millisecond, 0).Check(ctx, owner, draft.FlowDeposit)
	require.NoError(t, err)
	assert.Equal(t, request.OutcomeError, st.Outcome)
	assert.Equal(t, "wrong receipt", st.Reason)

	held, err := f.store.HasGuard(ctx, owner, d.IdempotencyKey())
	require.NoError(t, err)
	assert.True(t, held)
	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, redisinfra.EventFailed, events[0].Type)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestStatusPoller_UnreachableKeepsWaiting(t *testing.T) {
	f := newFixture(t)
	seedSubmitted(t, f, "req-1")
	f.api.GetRequestFunc = func(ctx context.Context, id string) (*request.Request, error) {
		return nil, &domainErrors.TransportError{Op: "requests", Err: errors.New("timeout")}
	}

	st, err := f.poller(time.Millisecond, 0).Check(context.Background(), owner, draft.FlowDeposit)
	require.NoError(t, err)
	assert.Equal(t, request.OutcomeWaiting, st.Outcome)
	assert.True(t, st.Unreachable)
	assert.Empty(t, f.events.Types())
}

func TestStatusPoller_PollEmitsChangesUntilTerminal(t *testing.T) {
	f := newFixture(t)
	seedSubmitted(t, f, "req-1")

	statuses := []string{"pending", "pending", "processing", "processing", "completed"}
	var n atomic.Int32
	f.api.GetRequestFunc = func(ctx context.Context, id string) (*request.Request, error) {
		i := int(n.Add(1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		return &request.Request{ID: id, Status: statuses[i]}, nil
	}

	var emitted []string
	err := f.poller(2*time.Millisecond, 0).Poll(context.Background(), owner, draft.FlowDeposit, func(st *Status) error {
		emitted = append(emitted, st.Status)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pending", "processing", "completed"}, emitted)
	assert.Equal(t, 5, f.api.Calls("GetRequest"))
}

func TestStatusPoller_PollStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	seedSubmitted(t, f, "req-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.poller(2*time.Millisecond, 0).Poll(ctx, owner, draft.FlowDeposit, func(*Status) error { return nil })
	}()

	require.Eventually(t, func() bool { return f.api.Calls("GetRequest") >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancel")
	}
}

func TestStatusPoller_PollStopsAtMaxDuration(t *testing.T) {
	f := newFixture(t)
	seedSubmitted(t, f, "req-1")

	start := time.Now()
	err := f.poller(5*time.Millisecond, 30*time.Millisecond).Poll(context.Background(), owner, draft.FlowDeposit, func(*Status) error { return nil })
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	got, err := f.store.Get(context.Background(), owner, draft.FlowDeposit)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.RequestID)
}

func TestStatusPoller_PollStopsOnEmitError(t *testing.T) {
	f := newFixture(t)
	seedSubmitted(t, f, "req-1")
	errGone := errors.New("client gone")

	err := f.poller(time.Millisecond, 0).Poll(context.Background(), owner, draft.FlowDeposit, func(*Status) error { return errGone })
	assert.ErrorIs(t, err, errGone)
	assert.Equal(t, 1, f.api.Calls("GetRequest"))
}
