package service

import (
	"testing"
	"time"

	"github.com/cassiomorais/cashdesk/internal/infrastructure/cache"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	"github.com/cassiomorais/cashdesk/internal/repository/memory"
	"github.com/cassiomorais/cashdesk/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
)

const owner = "424242"

type fixture struct {
	api      *testutil.MockAdminAPI
	store    *memory.DraftStore
	cache    *cache.Memory
	metrics  *observability.Metrics
	events   *testutil.MockEventPublisher
	locker   *testutil.MockLocker
	settings *SettingsService
	verifier *VerificationService
	drafts   *DraftService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:     testutil.NewMockAdminAPI(),
		store:   memory.NewDraftStore(),
		cache:   cache.NewMemory(),
		metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
		events:  &testutil.MockEventPublisher{},
		locker:  testutil.NewMockLocker(),
	}
	t.Cleanup(f.cache.Stop)
	wizardCfg := testutil.NewTestWizardConfig()
	f.settings = NewSettingsService(f.api, f.cache, wizardCfg, config.CacheConfig{
		SettingsTTL:   time.Minute,
		AggregatesTTL: time.Minute,
	}, f.metrics)
	f.verifier = NewVerificationService(f.api, f.store, wizardCfg.PlayerCheckBookmakers, 10*time.Millisecond, f.metrics)
	t.Cleanup(f.verifier.Stop)
	f.drafts = NewDraftService(f.store, f.settings, f.verifier, f.metrics)
	return f
}

func (f *fixture) submitter(opts ...SubmitOption) *SubmitService {
	cfg := config.SubmitConfig{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Timeout:     5 * time.Second,
		LockTTL:     time.Minute,
	}
	base := []SubmitOption{WithLocker(f.locker), WithEvents(f.events), WithCentsSource(func() int64 { return 37 })}
	return NewSubmitService(f.api, f.store, f.settings, cfg, testutil.NewTestWizardConfig(),
		config.DepositConfig{RandomCents: true}, f.metrics, append(base, opts...)...)
}

func (f *fixture) poller(interval, maxDuration time.Duration) *StatusPoller {
	return NewStatusPoller(f.api, f.store, config.PollerConfig{Interval: interval, MaxDuration: maxDuration}, f.events, f.metrics)
}
