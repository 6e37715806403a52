package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/adminapi"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	redisinfra "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/cassiomorais/cashdesk/pkg/retry"
	"github.com/shopspring/decimal"
)

// SubmitResult is what a successful submission returns.
type SubmitResult struct {
	RequestID string
	Amount    decimal.Decimal
}

// SubmitService creates at most one backend payment request per draft.
type SubmitService struct {
	api             AdminAPI
	store           draft.Store
	settings        *SettingsService
	locker          Locker
	events          EventPublisher
	metrics         *observability.Metrics
	cfg             config.SubmitConfig
	executeAtSource []string
	randomCents     bool
	cents           func() int64

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type SubmitOption func(*SubmitService)

// WithLocker adds a cross-instance in-flight guard.
func WithLocker(l Locker) SubmitOption {
	return func(s *SubmitService) { s.locker = l }
}

// WithEvents publishes submission events.
func WithEvents(p EventPublisher) SubmitOption {
	return func(s *SubmitService) { s.events = p }
}

// WithCentsSource replaces the random cents generator. It must return 1..99.
func WithCentsSource(fn func() int64) SubmitOption {
	return func(s *SubmitService) { s.cents = fn }
}

func NewSubmitService(
	api AdminAPI,
	store draft.Store,
	settings *SettingsService,
	cfg config.SubmitConfig,
	wizardCfg config.WizardConfig,
	depositCfg config.DepositConfig,
	metrics *observability.Metrics,
	opts ...SubmitOption,
) *SubmitService {
	s := &SubmitService{
		api:             api,
		store:           store,
		settings:        settings,
		metrics:         metrics,
		cfg:             cfg,
		executeAtSource: wizardCfg.ExecuteAtSourceBookmakers,
		randomCents:     depositCfg.RandomCents,
		cents:           func() int64 { return rand.Int64N(99) + 1 },
		inFlight:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the draft and creates its backend request. The network
// part runs detached from ctx, so a client disconnect does not lose a
// request id the backend already issued.
func (s *SubmitService) Submit(ctx context.Context, owner string, flow draft.Flow) (*SubmitResult, error) {
	start := time.Now()
	res, err := s.submit(ctx, owner, flow)

	result := "ok"
	if err != nil {
		result = string(domainErrors.KindOf(err))
	}
	if s.metrics != nil {
		s.metrics.SubmissionsTotal.WithLabelValues(string(flow), result).Inc()
		s.metrics.SubmissionDuration.WithLabelValues(string(flow)).Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (s *SubmitService) submit(ctx context.Context, owner string, flow draft.Flow) (*SubmitResult, error) {
	logger := observability.FlowLogger(ctx, string(flow), owner)

	d, err := s.store.Get(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domainErrors.ErrDraftNotFound
	}
	if d.Submitted() {
		return nil, domainErrors.ErrAlreadySubmitted
	}

	rules := s.settings.Rules(ctx, owner)
	if err := validateAll(d, rules); err != nil {
		return nil, err
	}

	// In-flight guard, taken before any network call.
	key := owner + "|" + string(flow)
	if !s.enter(key) {
		return nil, domainErrors.ErrSubmissionInFlight
	}
	defer s.leave(key)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "submit:"+key)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("failed to release submit lock")
			}
		}()
	}

	// Re-read under the guard: a concurrent submit may have finished.
	d, err = s.store.Get(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domainErrors.ErrDraftNotFound
	}
	if d.Submitted() {
		return nil, domainErrors.ErrAlreadySubmitted
	}

	guardKey := d.IdempotencyKey()
	held, err := s.store.HasGuard(ctx, owner, guardKey)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, domainErrors.ErrAlreadySubmitted
	}

	runCtx := context.WithoutCancel(ctx)
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.cfg.Timeout)
		defer cancel()
	}

	amount, err := s.finalAmount(runCtx, owner, d, rules)
	if err != nil {
		return nil, err
	}

	if flow == draft.FlowWithdraw && slices.Contains(s.executeAtSource, d.Bookmaker) {
		if err := s.api.WithdrawExecute(runCtx, withdrawInput(d)); err != nil {
			logger.Warn().Err(err).Msg("withdraw execute at source failed")
			return nil, preconditionFailed(err)
		}
	}

	input := paymentInput(owner, d, amount)
	policy := retry.Config{
		MaxAttempts: s.cfg.MaxAttempts,
		Delay:       s.cfg.RetryDelay,
		RetryIf:     domainErrors.IsRetryable,
		OnRetry: func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Msg("payment request failed, retrying")
			if s.metrics != nil {
				s.metrics.SubmissionRetries.WithLabelValues(string(flow)).Inc()
			}
		},
	}
	requestID, err := retry.DoWithResult(runCtx, policy, func() (string, error) {
		return s.api.CreatePayment(runCtx, input)
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkSubmitted(runCtx, owner, flow, guardKey, requestID); err != nil {
		if errors.Is(err, domainErrors.ErrRequestIDAlreadySet) {
			return nil, domainErrors.ErrAlreadySubmitted
		}
		// The backend holds a request the draft no longer knows about,
		// typically because the flow was abandoned mid-submit.
		logger.Error().Err(err).
			Str("request_id", requestID).
			Str("amount", amount.StringFixed(2)).
			Msg("payment request created but not recorded")
		s.publish(runCtx, redisinfra.Event{
			Type:      redisinfra.EventSubmitted,
			Flow:      string(flow),
			Owner:     owner,
			RequestID: requestID,
			Data: map[string]any{
				"bookmaker": d.Bookmaker,
				"bank":      d.Bank,
				"amount":    amount.StringFixed(2),
				"recorded":  false,
			},
		})
		return nil, fmt.Errorf("record request %s: %w", requestID, err)
	}

	logger.Info().Str("request_id", requestID).Str("amount", amount.String()).Msg("payment request created")
	s.publish(runCtx, redisinfra.Event{
		Type:      redisinfra.EventSubmitted,
		Flow:      string(flow),
		Owner:     owner,
		RequestID: requestID,
		Data: map[string]any{
			"bookmaker": d.Bookmaker,
			"bank":      d.Bank,
			"amount":    amount.StringFixed(2),
		},
	})
	if err := s.settings.InvalidateHistory(runCtx, owner); err != nil {
		logger.Debug().Err(err).Msg("failed to invalidate history cache")
	}

	return &SubmitResult{RequestID: requestID, Amount: amount}, nil
}

// Quote returns the deposit amount the payment page shows and submission
// will send. It is computed once per flow and persisted.
func (s *SubmitService) Quote(ctx context.Context, owner string) (decimal.Decimal, error) {
	d, err := s.store.Get(ctx, owner, draft.FlowDeposit)
	if err != nil {
		return decimal.Zero, err
	}
	if d == nil {
		return decimal.Zero, domainErrors.ErrDraftNotFound
	}
	rules := s.settings.Rules(ctx, owner)
	if d.FinalAmount == nil {
		if err := validateAll(d, rules); err != nil {
			return decimal.Zero, err
		}
	}
	return s.finalAmount(ctx, owner, d, rules)
}

func (s *SubmitService) enter(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *SubmitService) leave(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

// finalAmount picks the amount sent to the backend: the verified amount for
// withdrawals, the typed amount plus random cents for deposits. The deposit
// amount is persisted so a retried submission sends the same value.
func (s *SubmitService) finalAmount(ctx context.Context, owner string, d *draft.Draft, rules wizard.Rules) (decimal.Decimal, error) {
	if d.Flow == draft.FlowWithdraw {
		return *d.VerifiedAmount, nil
	}
	if d.FinalAmount != nil {
		return *d.FinalAmount, nil
	}

	amount, _ := wizard.ParseAmount(d.Amount)
	if s.randomCents {
		amount = AddRandomCents(amount, rules.MaxAmount, s.cents())
	}
	if err := s.store.SetFinalAmount(ctx, owner, d.Flow, amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// AddRandomCents appends cents (1..99 minor units) to a whole amount when
// the result stays within max. Fractional amounts are returned unchanged.
func AddRandomCents(amount, limit decimal.Decimal, cents int64) decimal.Decimal {
	if !amount.Equal(amount.Truncate(0)) || cents < 1 || cents > 99 {
		return amount
	}
	out := amount.Add(decimal.New(cents, -2))
	if limit.IsPositive() && out.GreaterThan(limit) {
		return amount
	}
	return out
}

func validateAll(d *draft.Draft, rules wizard.Rules) error {
	for _, step := range wizard.Steps(d.Flow) {
		if step == wizard.StepStatus {
			continue
		}
		if errs := wizard.Errors(step, d, rules); len(errs) > 0 {
			kinds := make([]string, len(errs))
			for i, e := range errs {
				kinds[i] = string(e)
			}
			return &domainErrors.ValidationError{Field: string(step), Message: kinds[0], Kinds: kinds}
		}
	}
	return nil
}

func preconditionFailed(err error) error {
	var rej *domainErrors.ServerRejectionError
	if errors.As(err, &rej) {
		return &domainErrors.PreconditionError{Message: rej.Message, Err: err}
	}
	return &domainErrors.PreconditionError{Err: err}
}

func paymentInput(owner string, d *draft.Draft, amount decimal.Decimal) adminapi.PaymentInput {
	return adminapi.PaymentInput{
		Type:      string(d.Flow),
		UserID:    owner,
		FlowID:    d.FlowID,
		Bookmaker: d.Bookmaker,
		Bank:      d.Bank,
		AccountID: d.AccountID,
		Amount:    json.Number(amount.StringFixed(2)),
		Phone:     d.Phone,
		QRPhoto:   d.QRPhoto,
		SiteCode:  d.SiteCode,
	}
}

func (s *SubmitService) publish(ctx context.Context, ev redisinfra.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		observability.FlowLogger(ctx, ev.Flow, ev.Owner).Warn().Err(err).Str("event", ev.Type).Msg("failed to publish event")
	}
}
