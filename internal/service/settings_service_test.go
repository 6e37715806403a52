package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/settings"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"github.com/cassiomorais/cashdesk/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsService_PaymentSettingsIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.settings.PaymentSettings(ctx, owner)
	require.NoError(t, err)
	second, err := f.settings.PaymentSettings(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, 1, f.api.Calls("PaymentSettings"))
	assert.True(t, first.Deposits.MinAmount.Equal(second.Deposits.MinAmount))
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.CacheLookupsTotal.WithLabelValues("settings", "miss")))
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.CacheLookupsTotal.WithLabelValues("settings", "hit")))
}

func TestSettingsService_ConcurrentMissesShareOneCall(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var started atomic.Int32
	f.api.LeaderboardFunc = func(ctx context.Context, kind string, limit int) ([]settings.LeaderboardEntry, error) {
		started.Add(1)
		<-release
		return []settings.LeaderboardEntry{{Rank: 1, UserID: "7", Total: decimal.NewFromInt(900)}}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]settings.LeaderboardEntry, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.settings.Leaderboard(context.Background(), "deposit", 10)
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.api.Calls("Leaderboard"))
	for _, res := range results {
		require.Len(t, res, 1)
		assert.Equal(t, "7", res[0].UserID)
	}
}

func TestSettingsService_ErrorsAreNotCached(t *testing.T) {
	f := newFixture(t)
	fail := true
	f.api.TransactionHistoryFunc = func(ctx context.Context, userID string) ([]settings.Transaction, error) {
		if fail {
			return nil, &domainErrors.TransportError{Op: "transaction-history", Err: errors.New("down")}
		}
		return []settings.Transaction{{ID: "1", Type: "deposit", Status: "completed"}}, nil
	}

	_, err := f.settings.History(context.Background(), owner)
	require.Error(t, err)
	assert.True(t, domainErrors.IsRetryable(err))

	fail = false
	got, err := f.settings.History(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, f.api.Calls("TransactionHistory"))
}

func TestSettingsService_InvalidateHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.settings.History(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, f.settings.InvalidateHistory(ctx, owner))
	_, err = f.settings.History(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, 2, f.api.Calls("TransactionHistory"))
}

func TestSettingsService_RulesNarrowedBySettings(t *testing.T) {
	f := newFixture(t)
	f.api.PaymentSettingsFunc = func(ctx context.Context, userID string) (*settings.PaymentSettings, error) {
		ps := testutil.NewTestPaymentSettings()
		ps.Deposits.MinAmount = decimal.NewFromInt(100)
		ps.Deposits.MaxAmount = decimal.NewFromInt(5000)
		ps.Deposits.Banks = []string{"mbank", "unknownbank"}
		ps.Withdrawals.Banks = []string{"optima"}
		ps.Casinos = map[string]bool{"1win": false, "1xbet": true}
		return ps, nil
	}

	rules := f.settings.Rules(context.Background(), owner)

	assert.True(t, rules.MinAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, rules.MaxAmount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, []string{"mbank"}, rules.DepositBanks)
	assert.Equal(t, []string{"optima"}, rules.WithdrawBanks)
	assert.Equal(t, []string{"1win"}, rules.DisabledBookmakers)

	d := &draft.Draft{Flow: draft.FlowDeposit, Bookmaker: "1win"}
	assert.Equal(t, []wizard.ErrorKind{wizard.ErrBookmakerNotAllowed}, wizard.Errors(wizard.StepBookmaker, d, rules))
}

func TestSettingsService_RulesFallBackToConfig(t *testing.T) {
	f := newFixture(t)
	f.api.PaymentSettingsFunc = func(ctx context.Context, userID string) (*settings.PaymentSettings, error) {
		return nil, &domainErrors.TransportError{Op: "payment-settings", Err: errors.New("down")}
	}

	rules := f.settings.Rules(context.Background(), owner)

	assert.True(t, rules.MinAmount.Equal(decimal.NewFromInt(35)))
	assert.True(t, rules.MaxAmount.Equal(decimal.NewFromInt(100000)))
	assert.Empty(t, rules.DisabledBookmakers)
	assert.True(t, f.settings.FlowEnabled(context.Background(), owner, draft.FlowDeposit))
}

func TestSettingsService_FlowEnabled(t *testing.T) {
	f := newFixture(t)
	f.api.PaymentSettingsFunc = func(ctx context.Context, userID string) (*settings.PaymentSettings, error) {
		ps := testutil.NewTestPaymentSettings()
		ps.Withdrawals.Enabled = false
		return ps, nil
	}

	assert.True(t, f.settings.FlowEnabled(context.Background(), owner, draft.FlowDeposit))
	assert.False(t, f.settings.FlowEnabled(context.Background(), owner, draft.FlowWithdraw))
}
