package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/adminapi"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	"github.com/cassiomorais/cashdesk/pkg/debounce"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	verifyPlayer = "player"
	verifyCode   = "code"
)

// CodeResult is the outcome of a withdrawal-code check.
type CodeResult struct {
	State  draft.CheckState
	Amount decimal.Decimal
	// Message is the upstream rejection text, shown verbatim.
	Message string
}

// VerificationService runs the player-id and withdrawal-code checks and
// writes their results back to the draft, unless the input changed while
// the call was in flight.
type VerificationService struct {
	api         AdminAPI
	store       draft.Store
	playerCheck []string
	debouncer   *debounce.Debouncer
	metrics     *observability.Metrics
}

func NewVerificationService(api AdminAPI, store draft.Store, playerCheckBookmakers []string, delay time.Duration, metrics *observability.Metrics) *VerificationService {
	base := log.Logger.WithContext(context.Background())
	return &VerificationService{
		api:         api,
		store:       store,
		playerCheck: playerCheckBookmakers,
		debouncer:   debounce.New(base, delay),
		metrics:     metrics,
	}
}

// Stop cancels scheduled checks and waits for running ones.
func (s *VerificationService) Stop() {
	s.debouncer.Stop()
}

// CheckPlayer maps the player-id check to a check state. Bookmakers without
// the check are skipped; any failure counts as invalid.
func (s *VerificationService) CheckPlayer(ctx context.Context, bookmaker, accountID string) draft.CheckState {
	if !slices.Contains(s.playerCheck, bookmaker) {
		s.observe(verifyPlayer, draft.CheckSkipped)
		return draft.CheckSkipped
	}

	status, err := s.api.CheckPlayer(ctx, adminapi.CheckPlayerInput{Bookmaker: bookmaker, AccountID: accountID})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("bookmaker", bookmaker).Msg("player check failed, treating as invalid")
		s.observe(verifyPlayer, draft.CheckInvalid)
		return draft.CheckInvalid
	}

	var state draft.CheckState
	switch status {
	case adminapi.PlayerFound:
		state = draft.CheckValid
	case adminapi.PlayerSkipped:
		state = draft.CheckSkipped
	default:
		state = draft.CheckInvalid
	}
	s.observe(verifyPlayer, state)
	return state
}

// CheckCode verifies a withdrawal code. A rejection is reported through the
// result; transport and parse failures are also returned as err.
func (s *VerificationService) CheckCode(ctx context.Context, d *draft.Draft) (CodeResult, error) {
	amount, err := s.api.WithdrawCheck(ctx, withdrawInput(d))
	if err == nil && !amount.IsPositive() {
		err = &domainErrors.ParseError{Op: adminapi.OpWithdrawCheck, Err: domainErrors.ErrAmountNotVerified}
	}
	if err != nil {
		s.observe(verifyCode, draft.CheckInvalid)
		var rej *domainErrors.ServerRejectionError
		if errors.As(err, &rej) {
			return CodeResult{State: draft.CheckInvalid, Message: rej.Message}, nil
		}
		return CodeResult{State: draft.CheckInvalid}, err
	}

	s.observe(verifyCode, draft.CheckValid)
	return CodeResult{State: draft.CheckValid, Amount: amount}, nil
}

// Verify runs the check the flow needs right now and returns the draft as
// stored afterwards.
func (s *VerificationService) Verify(ctx context.Context, owner string, flow draft.Flow) (*draft.Draft, error) {
	d, err := s.store.Get(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domainErrors.ErrDraftNotFound
	}
	if d.Submitted() {
		return d, nil
	}

	switch flow {
	case draft.FlowDeposit:
		return s.verifyPlayer(ctx, owner, d)
	case draft.FlowWithdraw:
		return s.verifyCode(ctx, owner, d)
	default:
		return nil, domainErrors.ErrUnknownFlow
	}
}

func (s *VerificationService) verifyPlayer(ctx context.Context, owner string, d *draft.Draft) (*draft.Draft, error) {
	if d.Bookmaker == "" || d.AccountID == "" {
		return nil, domainErrors.NewValidationError("account_id", "bookmaker and account id are required")
	}

	state := s.CheckPlayer(ctx, d.Bookmaker, d.AccountID)
	return s.apply(ctx, owner, d, func(cur *draft.Draft) bool {
		return cur.Bookmaker == d.Bookmaker && cur.AccountID == d.AccountID
	}, draft.Patch{IDCheck: &state})
}

func (s *VerificationService) verifyCode(ctx context.Context, owner string, d *draft.Draft) (*draft.Draft, error) {
	if d.Bookmaker == "" || d.AccountID == "" || d.SiteCode == "" {
		return nil, domainErrors.NewValidationError("site_code", "bookmaker, account id and code are required")
	}

	res, callErr := s.CheckCode(ctx, d)
	patch := draft.Patch{CodeCheck: &res.State, CodeError: &res.Message}
	if res.State == draft.CheckValid {
		patch.VerifiedAmount = &res.Amount
	} else {
		patch.ClearVerifiedAmount = true
	}

	updated, err := s.apply(ctx, owner, d, func(cur *draft.Draft) bool {
		return cur.Bookmaker == d.Bookmaker && cur.AccountID == d.AccountID && cur.SiteCode == d.SiteCode
	}, patch)
	if err != nil {
		return nil, err
	}
	return updated, callErr
}

// apply writes patch only if the draft still holds the input the check ran on.
func (s *VerificationService) apply(ctx context.Context, owner string, checked *draft.Draft, same func(*draft.Draft) bool, patch draft.Patch) (*draft.Draft, error) {
	cur, err := s.store.Get(ctx, owner, checked.Flow)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.FlowID != checked.FlowID || cur.Submitted() || !same(cur) {
		zerolog.Ctx(ctx).Debug().Str("flow", string(checked.Flow)).Msg("discarding stale verification result")
		return cur, nil
	}
	return s.store.Set(ctx, owner, checked.Flow, patch)
}

// Schedule runs Verify for the flow once its input has been quiet for the
// debounce delay. A newer call for the same flow supersedes this one.
func (s *VerificationService) Schedule(owner string, flow draft.Flow) {
	s.debouncer.Trigger(verifyKey(owner, flow), func(ctx context.Context) {
		logger := observability.FlowLogger(ctx, string(flow), owner)
		ctx = logger.WithContext(ctx)
		if _, err := s.Verify(ctx, owner, flow); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("scheduled verification failed")
		}
	})
}

// Cancel drops any scheduled or running check for the flow.
func (s *VerificationService) Cancel(owner string, flow draft.Flow) {
	s.debouncer.Cancel(verifyKey(owner, flow))
}

func verifyKey(owner string, flow draft.Flow) string {
	field := verifyPlayer
	if flow == draft.FlowWithdraw {
		field = verifyCode
	}
	return owner + "|" + string(flow) + "|" + field
}

func (s *VerificationService) observe(kind string, state draft.CheckState) {
	if s.metrics != nil {
		s.metrics.VerificationsTotal.WithLabelValues(kind, string(state)).Inc()
	}
}

func withdrawInput(d *draft.Draft) adminapi.WithdrawInput {
	return adminapi.WithdrawInput{
		Bookmaker: d.Bookmaker,
		AccountID: d.AccountID,
		Code:      d.SiteCode,
		Phone:     d.Phone,
		Bank:      d.Bank,
	}
}
