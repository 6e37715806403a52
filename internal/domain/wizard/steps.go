package wizard

import (
	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
)

// Step names a wizard page.
type Step string

const (
	StepBookmaker Step = "bookmaker"
	StepAccount   Step = "account"
	StepBank      Step = "bank"
	StepAmount    Step = "amount"
	StepPayment   Step = "payment"
	StepPhone     Step = "phone"
	StepQR        Step = "qr"
	StepCode      Step = "code"
	StepStatus    Step = "status"
)

var flowSteps = map[draft.Flow][]Step{
	draft.FlowDeposit:  {StepBookmaker, StepAccount, StepBank, StepAmount, StepPayment, StepStatus},
	draft.FlowWithdraw: {StepBookmaker, StepBank, StepPhone, StepQR, StepAccount, StepCode, StepStatus},
}

// Steps returns the ordered steps of a flow, ending with the status page.
func Steps(flow draft.Flow) []Step {
	return flowSteps[flow]
}

// First returns the entry step of a flow.
func First(flow draft.Flow) Step {
	return StepBookmaker
}

// ParseStep validates a step name against the flow.
func ParseStep(flow draft.Flow, s string) (Step, error) {
	for _, st := range flowSteps[flow] {
		if string(st) == s {
			return st, nil
		}
	}
	return "", domainErrors.ErrUnknownStep
}

// Index returns the position of step in the flow, or -1.
func Index(flow draft.Flow, step Step) int {
	for i, st := range flowSteps[flow] {
		if st == step {
			return i
		}
	}
	return -1
}

// Next returns the step after step, or StepStatus for the last input step.
func Next(flow draft.Flow, step Step) Step {
	steps := flowSteps[flow]
	i := Index(flow, step)
	if i < 0 || i+1 >= len(steps) {
		return StepStatus
	}
	return steps[i+1]
}

// present reports whether the fields a step owns are filled in.
func present(step Step, d *draft.Draft) bool {
	switch step {
	case StepBookmaker:
		return d.Bookmaker != ""
	case StepAccount:
		return d.AccountID != ""
	case StepBank:
		return d.Bank != ""
	case StepAmount:
		return d.Amount != ""
	case StepPhone:
		return d.Phone != ""
	case StepQR:
		return d.QRPhoto != ""
	case StepCode:
		return d.SiteCode != ""
	default:
		return true
	}
}

// Guard returns the step the caller must be redirected to before showing
// step, and false when no redirect is needed. A missing predecessor field
// sends the user back to the entry step; the status page needs a request id.
func Guard(flow draft.Flow, step Step, d *draft.Draft) (Step, bool) {
	first := First(flow)
	if step == first {
		return "", false
	}
	if d == nil {
		return first, true
	}
	if step == StepStatus {
		if d.Submitted() {
			return "", false
		}
		return first, true
	}
	for _, prev := range flowSteps[flow] {
		if prev == step {
			break
		}
		if !present(prev, d) {
			return first, true
		}
	}
	return "", false
}

// ResumeStep is where a reload lands: the status page once a request id is
// persisted, otherwise the first step that cannot proceed.
func ResumeStep(flow draft.Flow, d *draft.Draft, rules Rules) Step {
	if d == nil {
		return First(flow)
	}
	if d.Submitted() {
		return StepStatus
	}
	for _, st := range flowSteps[flow] {
		if st == StepStatus {
			break
		}
		if !CanProceed(st, d, rules) {
			return st
		}
	}
	return lastInputStep(flow)
}

func lastInputStep(flow draft.Flow) Step {
	steps := flowSteps[flow]
	return steps[len(steps)-2]
}
