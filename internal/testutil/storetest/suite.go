package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDraftStoreSuite runs the behaviour every draft.Store backend must share.
func RunDraftStoreSuite(t *testing.T, newStore func(t *testing.T) draft.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get on empty returns nil", func(t *testing.T) {
		s := newStore(t)
		d, err := s.Get(ctx, "u1", draft.FlowDeposit)
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("set merges step fields", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Set(ctx, "u1", draft.FlowDeposit, draft.Patch{Bookmaker: draft.Ptr("1xbet")})
		require.NoError(t, err)
		require.NotEmpty(t, first.FlowID)

		second, err := s.Set(ctx, "u1", draft.FlowDeposit, draft.Patch{Bank: draft.Ptr("mbank")})
		require.NoError(t, err)
		assert.Equal(t, first.FlowID, second.FlowID)

		got, err := s.Get(ctx, "u1", draft.FlowDeposit)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "1xbet", got.Bookmaker)
		assert.Equal(t, "mbank", got.Bank)
		assert.Equal(t, draft.FlowDeposit, got.Flow)
	})

	t.Run("verified amount round trips", func(t *testing.T) {
		s := newStore(t)
		amount := decimal.RequireFromString("1250.50")
		_, err := s.Set(ctx, "u1", draft.FlowWithdraw, draft.Patch{
			SiteCode:       draft.Ptr("AB12"),
			CodeCheck:      draft.Ptr(draft.CheckValid),
			VerifiedAmount: &amount,
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "u1", draft.FlowWithdraw)
		require.NoError(t, err)
		require.NotNil(t, got.VerifiedAmount)
		assert.True(t, got.VerifiedAmount.Equal(amount))
		assert.Equal(t, draft.CheckValid, got.CodeCheck)

		_, err = s.Set(ctx, "u1", draft.FlowWithdraw, draft.Patch{ClearVerifiedAmount: true})
		require.NoError(t, err)
		got, err = s.Get(ctx, "u1", draft.FlowWithdraw)
		require.NoError(t, err)
		assert.Nil(t, got.VerifiedAmount)
	})

	t.Run("owners and flows are isolated", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Set(ctx, "u1", draft.FlowDeposit, draft.Patch{Bookmaker: draft.Ptr("melbet")})
		require.NoError(t, err)

		other, err := s.Get(ctx, "u2", draft.FlowDeposit)
		require.NoError(t, err)
		assert.Nil(t, other)

		withdraw, err := s.Get(ctx, "u1", draft.FlowWithdraw)
		require.NoError(t, err)
		assert.Nil(t, withdraw)
	})

	t.Run("final amount", func(t *testing.T) {
		s := newStore(t)
		err := s.SetFinalAmount(ctx, "u1", draft.FlowDeposit, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, domainErrors.ErrDraftNotFound)

		_, err = s.Set(ctx, "u1", draft.FlowDeposit, draft.Patch{Amount: draft.Ptr("500")})
		require.NoError(t, err)
		require.NoError(t, s.SetFinalAmount(ctx, "u1", draft.FlowDeposit, decimal.RequireFromString("500.37")))

		got, err := s.Get(ctx, "u1", draft.FlowDeposit)
		require.NoError(t, err)
		require.NotNil(t, got.FinalAmount)
		assert.Equal(t, "500.37", got.FinalAmount.String())
	})

	t.Run("mark submitted sets guard and request id", func(t *testing.T) {
		s := newStore(t)
		err := s.MarkSubmitted(ctx, "u1", draft.FlowDeposit, "deposit:x", "req-1")
		assert.ErrorIs(t, err, domainErrors.ErrDraftNotFound)

		d, err := s.Set(ctx, "u1", draft.FlowDeposit, draft.Patch{Bookmaker: draft.Ptr("1win")})
		require.NoError(t, err)
		key := d.IdempotencyKey()

		has, err := s.HasGuard(ctx, "u1", key)
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, s.MarkSubmitted(ctx, "u1", draft.FlowDeposit, key, "req-1"))

		has, err = s.HasGuard(ctx, "u1", key)
		require.NoError(t, err)
		assert.True(t, has)

		got, err := s.Get(ctx, "u1", draft.FlowDeposit)
		require.NoError(t, err)
		assert.Equal(t, "req-1", got.RequestID)
		assert.Equal(t, key, got.GuardKey)

		err = s.MarkSubmitted(ctx, "u1", draft.FlowDeposit, key, "req-2")
		assert.ErrorIs(t, err, domainErrors.ErrRequestIDAlreadySet)

		got, err = s.Get(ctx, "u1", draft.FlowDeposit)
		require.NoError(t, err)
		assert.Equal(t, "req-1", got.RequestID)
	})

	t.Run("guard is scoped to owner", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Set(ctx, "u1", draft.FlowWithdraw, draft.Patch{AccountID: draft.Ptr("42")})
		require.NoError(t, err)
		require.NoError(t, s.MarkSubmitted(ctx, "u1", draft.FlowWithdraw, "withdraw:1xbet:42", "req-1"))

		has, err := s.HasGuard(ctx, "u2", "withdraw:1xbet:42")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("clear removes draft and guard", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Set(ctx, "u1", draft.FlowWithdraw, draft.Patch{AccountID: draft.Ptr("42")})
		require.NoError(t, err)
		require.NoError(t, s.MarkSubmitted(ctx, "u1", draft.FlowWithdraw, "withdraw:1xbet:42", "req-1"))

		require.NoError(t, s.Clear(ctx, "u1", draft.FlowWithdraw))

		got, err := s.Get(ctx, "u1", draft.FlowWithdraw)
		require.NoError(t, err)
		assert.Nil(t, got)

		has, err := s.HasGuard(ctx, "u1", "withdraw:1xbet:42")
		require.NoError(t, err)
		assert.False(t, has)

		// Clearing twice is a no-op.
		require.NoError(t, s.Clear(ctx, "u1", draft.FlowWithdraw))
	})

	t.Run("concurrent mark submitted succeeds once", func(t *testing.T) {
		s := newStore(t)
		d, err := s.Set(ctx, "u1", draft.FlowDeposit, draft.Patch{Bookmaker: draft.Ptr("1win")})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.MarkSubmitted(ctx, "u1", draft.FlowDeposit, d.IdempotencyKey(), "req") == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), succeeded.Load())
	})
}
