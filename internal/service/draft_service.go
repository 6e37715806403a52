package service

import (
	"context"
	"strings"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
)

// View is a draft together with where the wizard should show it.
type View struct {
	Draft  *draft.Draft
	Resume wizard.Step
	Steps  []wizard.Step
}

// StepResult answers a forward navigation attempt. Exactly one of Next,
// Redirect or Errors is set.
type StepResult struct {
	Next     wizard.Step
	Redirect wizard.Step
	Errors   []wizard.ErrorKind
}

// DraftService drives the wizard: it persists step answers, resets checks
// whose input changed and gates forward navigation.
type DraftService struct {
	store    draft.Store
	settings *SettingsService
	verifier *VerificationService
	metrics  *observability.Metrics
}

func NewDraftService(store draft.Store, settings *SettingsService, verifier *VerificationService, metrics *observability.Metrics) *DraftService {
	return &DraftService{
		store:    store,
		settings: settings,
		verifier: verifier,
		metrics:  metrics,
	}
}

// Get returns the draft and its resume step. With a single-bookmaker
// restriction the bookmaker is selected up front.
func (s *DraftService) Get(ctx context.Context, owner string, flow draft.Flow) (*View, error) {
	rules := s.settings.Rules(ctx, owner)

	d, err := s.store.Get(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if bookmaker, ok := rules.AutoSelectBookmaker(); ok && (d == nil || d.Bookmaker == "") {
		d, err = s.store.Set(ctx, owner, flow, draft.Patch{Bookmaker: &bookmaker})
		if err != nil {
			return nil, err
		}
		s.observe(flow, "auto_select")
	}

	return &View{
		Draft:  d,
		Resume: wizard.ResumeStep(flow, d, rules),
		Steps:  wizard.Steps(flow),
	}, nil
}

// Update writes one step's fields. Checks that depend on a changed field
// are reset and, when applicable, rescheduled.
func (s *DraftService) Update(ctx context.Context, owner string, flow draft.Flow, patch draft.Patch) (*View, error) {
	if !s.settings.FlowEnabled(ctx, owner, flow) {
		return nil, domainErrors.ErrFlowDisabled
	}

	cur, err := s.store.Get(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if cur.Submitted() {
		return nil, domainErrors.ErrAlreadySubmitted
	}
	if cur == nil {
		cur = &draft.Draft{Flow: flow}
	}

	normalize(&patch)
	rules := s.settings.Rules(ctx, owner)
	schedule := resetChecks(flow, cur, &patch, rules)
	if patch.Empty() {
		return s.Get(ctx, owner, flow)
	}

	d, err := s.store.Set(ctx, owner, flow, patch)
	if err != nil {
		return nil, err
	}
	s.observe(flow, "set")

	if schedule && s.verifier != nil {
		s.verifier.Schedule(owner, flow)
	}

	return &View{
		Draft:  d,
		Resume: wizard.ResumeStep(flow, d, rules),
		Steps:  wizard.Steps(flow),
	}, nil
}

// Advance validates step and returns where the wizard goes next.
func (s *DraftService) Advance(ctx context.Context, owner string, flow draft.Flow, step wizard.Step) (*StepResult, error) {
	d, err := s.store.Get(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if redirect, ok := wizard.Guard(flow, step, d); ok {
		return &StepResult{Redirect: redirect}, nil
	}
	if step == wizard.StepStatus {
		return &StepResult{Next: wizard.StepStatus}, nil
	}

	rules := s.settings.Rules(ctx, owner)
	if errs := wizard.Errors(step, d, rules); len(errs) > 0 {
		return &StepResult{Errors: errs}, nil
	}
	return &StepResult{Next: wizard.Next(flow, step)}, nil
}

// Abandon clears the flow, its guard included, and drops pending checks.
func (s *DraftService) Abandon(ctx context.Context, owner string, flow draft.Flow) error {
	if s.verifier != nil {
		s.verifier.Cancel(owner, flow)
	}
	if err := s.store.Clear(ctx, owner, flow); err != nil {
		return err
	}
	s.observe(flow, "clear")
	return nil
}

func normalize(p *draft.Patch) {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	p.Bookmaker = trim(p.Bookmaker)
	p.Bank = trim(p.Bank)
	p.AccountID = trim(p.AccountID)
	p.Amount = trim(p.Amount)
	p.SiteCode = trim(p.SiteCode)
	if p.Phone != nil {
		phone := wizard.NormalizePhone(*p.Phone)
		p.Phone = &phone
	}
}

func changed(next *string, cur string) bool {
	return next != nil && *next != cur
}

// resetChecks invalidates verification state whose input the patch changes,
// and reports whether a new check should be scheduled.
func resetChecks(flow draft.Flow, cur *draft.Draft, p *draft.Patch, rules wizard.Rules) bool {
	bookmaker := cur.Bookmaker
	if p.Bookmaker != nil {
		bookmaker = *p.Bookmaker
	}
	account := cur.AccountID
	if p.AccountID != nil {
		account = *p.AccountID
	}

	switch flow {
	case draft.FlowDeposit:
		if changed(p.Amount, cur.Amount) && cur.FinalAmount != nil {
			p.ClearFinalAmount = true
		}
		if !changed(p.Bookmaker, cur.Bookmaker) && !changed(p.AccountID, cur.AccountID) {
			return false
		}
		state := draft.CheckUnchecked
		schedule := false
		switch {
		case bookmaker == "" || account == "":
		case !rules.RequiresPlayerCheck(bookmaker):
			state = draft.CheckSkipped
		default:
			state = draft.CheckPending
			schedule = true
		}
		p.IDCheck = &state
		return schedule

	case draft.FlowWithdraw:
		if !changed(p.Bookmaker, cur.Bookmaker) && !changed(p.AccountID, cur.AccountID) && !changed(p.SiteCode, cur.SiteCode) {
			return false
		}
		code := cur.SiteCode
		if p.SiteCode != nil {
			code = *p.SiteCode
		}
		state := draft.CheckUnchecked
		if bookmaker != "" && account != "" && code != "" {
			state = draft.CheckPending
		}
		empty := ""
		p.CodeCheck = &state
		p.CodeError = &empty
		p.ClearVerifiedAmount = true
		return state == draft.CheckPending
	}
	return false
}

func (s *DraftService) observe(flow draft.Flow, op string) {
	if s.metrics != nil {
		s.metrics.DraftWritesTotal.WithLabelValues(string(flow), op).Inc()
	}
}
