package service

import (
	"context"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/request"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	redisinfra "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/shopspring/decimal"
)

// Status is one observation of a submitted request.
type Status struct {
	RequestID string          `json:"request_id"`
	Outcome   request.Outcome `json:"outcome"`
	Status    string          `json:"status,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Automated bool            `json:"automated,omitempty"`
	// Unreachable is set when the check itself failed; the outcome stays waiting.
	Unreachable bool `json:"unreachable,omitempty"`
}

// StatusPoller follows a submitted request until it reaches a terminal status.
type StatusPoller struct {
	api         AdminAPI
	store       draft.Store
	events      EventPublisher
	metrics     *observability.Metrics
	interval    time.Duration
	maxDuration time.Duration
}

func NewStatusPoller(api AdminAPI, store draft.Store, cfg config.PollerConfig, events EventPublisher, metrics *observability.Metrics) *StatusPoller {
	return &StatusPoller{
		api:         api,
		store:       store,
		events:      events,
		metrics:     metrics,
		interval:    cfg.Interval,
		maxDuration: cfg.MaxDuration,
	}
}

// Check performs one status check. A request id must be persisted for the
// flow, otherwise ErrNoRequest is returned. Network failures are not errors:
// they yield a waiting status marked Unreachable.
//
// Success clears the draft and its guard. Failure keeps both, so the same
// identity cannot resubmit until the user abandons the flow.
func (p *StatusPoller) Check(ctx context.Context, owner string, flow draft.Flow) (*Status, error) {
	d, err := p.store.Get(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if !d.Submitted() {
		return nil, domainErrors.ErrNoRequest
	}

	logger := observability.FlowLogger(ctx, string(flow), owner)

	r, err := p.api.GetRequest(ctx, d.RequestID)
	if err != nil {
		logger.Warn().Err(err).Str("request_id", d.RequestID).Msg("status check failed, will retry")
		p.observe("unreachable")
		return &Status{RequestID: d.RequestID, Outcome: request.OutcomeWaiting, Unreachable: true}, nil
	}

	st := &Status{
		RequestID: d.RequestID,
		Outcome:   r.Outcome(),
		Status:    r.Status,
		Amount:    r.Amount,
		Automated: r.Automated(),
	}
	p.observe(string(st.Outcome))

	switch st.Outcome {
	case request.OutcomeSuccess:
		if err := p.store.Clear(ctx, owner, flow); err != nil {
			return nil, err
		}
		logger.Info().Str("request_id", d.RequestID).Str("status", r.Status).Msg("request completed")
		p.publish(ctx, redisinfra.EventSucceeded, flow, owner, st)
	case request.OutcomeError:
		st.Reason = r.Reason()
		logger.Info().Str("request_id", d.RequestID).Str("status", r.Status).Str("reason", st.Reason).Msg("request failed")
		p.publish(ctx, redisinfra.EventFailed, flow, owner, st)
	}
	return st, nil
}

// Poll checks immediately and then on every tick, calling emit whenever the
// observation changes. It returns nil on a terminal outcome or when the
// optional max duration passes, and ctx.Err() when ctx is cancelled.
func (p *StatusPoller) Poll(ctx context.Context, owner string, flow draft.Flow, emit func(*Status) error) error {
	if p.metrics != nil {
		p.metrics.ActivePollers.Inc()
		defer p.metrics.ActivePollers.Dec()
	}

	var deadline <-chan time.Time
	if p.maxDuration > 0 {
		timer := time.NewTimer(p.maxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *Status
	for {
		st, err := p.Check(ctx, owner, flow)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if last == nil || changedStatus(last, st) {
			if err := emit(st); err != nil {
				return err
			}
			last = st
		}
		if st.Outcome.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return nil
		case <-ticker.C:
		}
	}
}

func changedStatus(a, b *Status) bool {
	return a.Outcome != b.Outcome || a.Status != b.Status || a.Reason != b.Reason || a.Unreachable != b.Unreachable
}

func (p *StatusPoller) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.PollChecksTotal.WithLabelValues(outcome).Inc()
	}
}

func (p *StatusPoller) publish(ctx context.Context, typ string, flow draft.Flow, owner string, st *Status) {
	if p.events == nil {
		return
	}
	ev := redisinfra.Event{
		Type:      typ,
		Flow:      string(flow),
		Owner:     owner,
		RequestID: st.RequestID,
		Data: map[string]any{
			"status":    st.Status,
			"amount":    st.Amount.String(),
			"reason":    st.Reason,
			"automated": st.Automated,
		},
	}
	if err := p.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		observability.FlowLogger(ctx, string(flow), owner).Warn().Err(err).Str("event", typ).Msg("failed to publish event")
	}
}
