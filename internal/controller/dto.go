package controller

import (
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"github.com/cassiomorais/cashdesk/internal/i18n"
	"github.com/cassiomorais/cashdesk/internal/service"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// Amounts stay strings here; the step validator parses them.

// UpdateDraftRequest carries the fields of one wizard step. Absent fields
// are left untouched.
type UpdateDraftRequest struct {
	Bookmaker *string `json:"bookmaker,omitempty" validate:"omitempty,max=32"`
	Bank      *string `json:"bank,omitempty" validate:"omitempty,max=32"`
	AccountID *string `json:"account_id,omitempty" validate:"omitempty,max=32"`
	Amount    *string `json:"amount,omitempty" validate:"omitempty,max=16"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	// QRPhoto is a data URI of the receiving QR code.
	QRPhoto  *string `json:"qr_photo,omitempty" validate:"omitempty,startswith=data:image/,max=4194304"`
	SiteCode *string `json:"site_code,omitempty" validate:"omitempty,max=64"`
}

func (r *UpdateDraftRequest) toPatch() draft.Patch {
	return draft.Patch{
		Bookmaker: r.Bookmaker,
		Bank:      r.Bank,
		AccountID: r.AccountID,
		Amount:    r.Amount,
		Phone:     r.Phone,
		QRPhoto:   r.QRPhoto,
		SiteCode:  r.SiteCode,
	}
}

// --- Response DTOs ---

// DraftResponse is a draft as the Mini-App sees it.
type DraftResponse struct {
	FlowID         string    `json:"flow_id"`
	Flow           string    `json:"flow"`
	Bookmaker      string    `json:"bookmaker,omitempty"`
	Bank           string    `json:"bank,omitempty"`
	AccountID      string    `json:"account_id,omitempty"`
	Amount         string    `json:"amount,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	QRPhoto        string    `json:"qr_photo,omitempty"`
	SiteCode       string    `json:"site_code,omitempty"`
	IDCheck        string    `json:"id_check,omitempty"`
	CodeCheck      string    `json:"code_check,omitempty"`
	CodeError      string    `json:"code_error,omitempty"`
	VerifiedAmount *string   `json:"verified_amount,omitempty"`
	FinalAmount    *string   `json:"final_amount,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	Submitted      bool      `json:"submitted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FlowResponse is a draft plus where the wizard resumes.
type FlowResponse struct {
	Draft  *DraftResponse `json:"draft"`
	Resume string         `json:"resume"`
	Steps  []string       `json:"steps"`
}

// StepError is one reason a step cannot proceed.
type StepError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StepResponse answers a forward navigation attempt.
type StepResponse struct {
	Next     string      `json:"next,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
	Errors   []StepError `json:"errors,omitempty"`
}

type SubmitResponse struct {
	RequestID string `json:"request_id"`
	Amount    string `json:"amount"`
}

// SettingsResponse is the effective wizard configuration for the caller.
type SettingsResponse struct {
	DepositsEnabled    bool     `json:"deposits_enabled"`
	WithdrawalsEnabled bool     `json:"withdrawals_enabled"`
	Bookmakers         []string `json:"bookmakers"`
	DepositBanks       []string `json:"deposit_banks"`
	WithdrawBanks      []string `json:"withdraw_banks"`
	MinAmount          string   `json:"min_amount"`
	MaxAmount          string   `json:"max_amount"`
}

// LinksResponse is the deposit payment payload and its bank deeplinks.
type LinksResponse struct {
	Amount  string            `json:"amount"`
	Payload string            `json:"payload"`
	Links   map[string]string `json:"links"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error  string      `json:"error"`
	Code   string      `json:"code"`
	Fields []StepError `json:"fields,omitempty"`
}

// --- Conversion helpers ---

// FromDraft converts a draft for the response. Upstream code-check text is
// replaced by the generic message unless it may be shown verbatim.
func FromDraft(d *draft.Draft, loc i18n.Locale) *DraftResponse {
	if d == nil {
		return nil
	}
	resp := &DraftResponse{
		FlowID:         d.FlowID,
		Flow:           string(d.Flow),
		Bookmaker:      d.Bookmaker,
		Bank:           d.Bank,
		AccountID:      d.AccountID,
		Amount:         d.Amount,
		Phone:          d.Phone,
		QRPhoto:        d.QRPhoto,
		SiteCode:       d.SiteCode,
		IDCheck:        string(d.IDCheck),
		CodeCheck:      string(d.CodeCheck),
		CodeError:      codeErrorText(d, loc),
		VerifiedAmount: amountString(d.VerifiedAmount),
		FinalAmount:    amountString(d.FinalAmount),
		RequestID:      d.RequestID,
		Submitted:      d.Submitted(),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	return resp
}

func codeErrorText(d *draft.Draft, loc i18n.Locale) string {
	if d.CodeCheck != draft.CheckInvalid {
		return ""
	}
	if i18n.Passthrough(d.CodeError) {
		return d.CodeError
	}
	return i18n.StepMessage(loc, wizard.ErrCodeNotVerified)
}

func FromView(v *service.View, loc i18n.Locale) *FlowResponse {
	steps := make([]string, len(v.Steps))
	for i, s := range v.Steps {
		steps[i] = string(s)
	}
	return &FlowResponse{
		Draft:  FromDraft(v.Draft, loc),
		Resume: string(v.Resume),
		Steps:  steps,
	}
}

func FromStepResult(res *service.StepResult, loc i18n.Locale) *StepResponse {
	return &StepResponse{
		Next:     string(res.Next),
		Redirect: string(res.Redirect),
		Errors:   stepErrors(res.Errors, loc),
	}
}

func stepErrors[K ~string](kinds []K, loc i18n.Locale) []StepError {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]StepError, len(kinds))
	for i, k := range kinds {
		out[i] = StepError{Kind: string(k), Message: i18n.StepMessage(loc, wizard.ErrorKind(k))}
	}
	return out
}

func amountString(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.StringFixed(2)
	return &s
}
