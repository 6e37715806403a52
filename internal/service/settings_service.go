package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	"github.com/cassiomorais/cashdesk/internal/domain/settings"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/cache"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// SettingsService serves payment settings and the read-only aggregates
// through a shared cache. Concurrent misses for one key share one upstream call.
type SettingsService struct {
	api     AdminAPI
	cache   cache.Cache
	group   singleflight.Group
	wizard  config.WizardConfig
	cfg     config.CacheConfig
	metrics *observability.Metrics
}

func NewSettingsService(api AdminAPI, c cache.Cache, wizardCfg config.WizardConfig, cacheCfg config.CacheConfig, metrics *observability.Metrics) *SettingsService {
	return &SettingsService{
		api:     api,
		cache:   c,
		wizard:  wizardCfg,
		cfg:     cacheCfg,
		metrics: metrics,
	}
}

// PaymentSettings returns the cached payment settings for userID.
func (s *SettingsService) PaymentSettings(ctx context.Context, userID string) (*settings.PaymentSettings, error) {
	return cached(ctx, s, "settings:"+userID, "settings", s.cfg.SettingsTTL, func(ctx context.Context) (*settings.PaymentSettings, error) {
		return s.api.PaymentSettings(ctx, userID)
	})
}

// Leaderboard returns the cached public leaderboard.
func (s *SettingsService) Leaderboard(ctx context.Context, kind string, limit int) ([]settings.LeaderboardEntry, error) {
	key := "leaderboard:" + kind + ":" + strconv.Itoa(limit)
	return cached(ctx, s, key, "leaderboard", s.cfg.AggregatesTTL, func(ctx context.Context) ([]settings.LeaderboardEntry, error) {
		return s.api.Leaderboard(ctx, kind, limit)
	})
}

// History returns the caller's cached transaction history.
func (s *SettingsService) History(ctx context.Context, userID string) ([]settings.Transaction, error) {
	return cached(ctx, s, "history:"+userID, "history", s.cfg.AggregatesTTL, func(ctx context.Context) ([]settings.Transaction, error) {
		return s.api.TransactionHistory(ctx, userID)
	})
}

// InvalidateHistory drops the caller's cached history, e.g. after a submission.
func (s *SettingsService) InvalidateHistory(ctx context.Context, userID string) error {
	return s.cache.Invalidate(ctx, "history:"+userID)
}

// Rules builds the validator rules from config, narrowed by the payment
// settings when they can be loaded. A settings failure falls back to config.
func (s *SettingsService) Rules(ctx context.Context, userID string) wizard.Rules {
	rules := wizard.Rules{
		Bookmakers:            s.wizard.Bookmakers,
		AllowedBookmakers:     s.wizard.AllowedBookmakers,
		Banks:                 s.wizard.Banks,
		MinAmount:             decimal.NewFromFloat(s.wizard.MinAmount),
		MaxAmount:             decimal.NewFromFloat(s.wizard.MaxAmount),
		PlayerCheckBookmakers: s.wizard.PlayerCheckBookmakers,
	}

	ps, err := s.PaymentSettings(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("payment settings unavailable, using configured rules")
		return rules
	}
	return applySettings(rules, ps)
}

func applySettings(rules wizard.Rules, ps *settings.PaymentSettings) wizard.Rules {
	if ps.Deposits.MinAmount.IsPositive() {
		rules.MinAmount = ps.Deposits.MinAmount
	}
	if ps.Deposits.MaxAmount.IsPositive() {
		rules.MaxAmount = ps.Deposits.MaxAmount
	}
	rules.DepositBanks = knownOnly(ps.Deposits.Banks, rules.Banks)
	rules.WithdrawBanks = knownOnly(ps.Withdrawals.Banks, rules.Banks)

	for _, b := range rules.Bookmakers {
		if !ps.BookmakerEnabled(b) {
			rules.DisabledBookmakers = append(rules.DisabledBookmakers, b)
		}
	}
	return rules
}

func knownOnly(banks, known []string) []string {
	var out []string
	for _, b := range banks {
		if slices.Contains(known, b) {
			out = append(out, b)
		}
	}
	return out
}

// FlowEnabled reports whether the backend currently accepts the flow.
// Unknown settings leave both flows enabled.
func (s *SettingsService) FlowEnabled(ctx context.Context, userID string, flow draft.Flow) bool {
	ps, err := s.PaymentSettings(ctx, userID)
	if err != nil {
		return true
	}
	if flow == draft.FlowDeposit {
		return ps.Deposits.Enabled
	}
	return ps.Withdrawals.Enabled
}

func cached[T any](ctx context.Context, s *SettingsService, key, label string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			s.observe(label, "hit")
			return v, nil
		}
	}
	s.observe(label, "miss")

	// The shared call must outlive any single caller.
	res, err, _ := s.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", label, err)
		}
		if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

func (s *SettingsService) observe(label, result string) {
	if s.metrics != nil {
		s.metrics.CacheLookupsTotal.WithLabelValues(label, result).Inc()
	}
}
