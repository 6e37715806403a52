package request

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Outcome is the poller state derived from a backend status.
type Outcome string

const (
	OutcomeWaiting Outcome = "waiting"
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// IsTerminal reports whether polling stops at this outcome.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeError
}

// ProcessedByAutomation marks requests handled without an operator.
const ProcessedByAutomation = "autodeposit"

var (
	successStatuses = map[string]struct{}{
		"completed":           {},
		"approved":            {},
		"auto_completed":      {},
		"autodeposit_success": {},
		"paid":                {},
	}
	failureStatuses = map[string]struct{}{
		"rejected": {},
		"declined": {},
		"failed":   {},
	}
)

// Classify maps a backend status to an outcome. The lookup is exact after
// lower-casing; unknown statuses keep the poller waiting.
func Classify(status string) Outcome {
	s := strings.ToLower(status)
	if _, ok := successStatuses[s]; ok {
		return OutcomeSuccess
	}
	if _, ok := failureStatuses[s]; ok {
		return OutcomeError
	}
	return OutcomeWaiting
}

// Request is the server-owned payment request, as seen by the Mini-App.
type Request struct {
	ID           string
	Status       string
	Amount       decimal.Decimal
	StatusDetail string
	ProcessedBy  string
}

// Outcome classifies the request status.
func (r *Request) Outcome() Outcome {
	return Classify(r.Status)
}

// Automated reports whether the request was processed without an operator.
func (r *Request) Automated() bool {
	return strings.EqualFold(r.ProcessedBy, ProcessedByAutomation)
}

// Reason extracts a displayable rejection reason from StatusDetail. A JSON
// object yields its reason or message field; anything else is shown raw.
func (r *Request) Reason() string {
	return ParseReason(r.StatusDetail)
}

// ParseReason implements Request.Reason for a bare status detail.
func ParseReason(detail string) string {
	trimmed := strings.TrimSpace(detail)
	if trimmed == "" {
		return ""
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return detail
	}
	for _, key := range []string{"reason", "message"} {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return detail
}
