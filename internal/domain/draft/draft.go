package draft

import (
	"time"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Flow identifies which wizard a draft belongs to.
type Flow string

const (
	FlowDeposit  Flow = "deposit"
	FlowWithdraw Flow = "withdraw"
)

// ParseFlow validates a flow name taken from a URL or config.
func ParseFlow(s string) (Flow, error) {
	switch Flow(s) {
	case FlowDeposit, FlowWithdraw:
		return Flow(s), nil
	default:
		return "", domainErrors.ErrUnknownFlow
	}
}

// CheckState is the outcome of a remote verification stored on the draft.
type CheckState string

const (
	CheckUnchecked CheckState = ""
	CheckPending   CheckState = "pending"
	CheckValid     CheckState = "valid"
	CheckInvalid   CheckState = "invalid"
	CheckSkipped   CheckState = "skipped"
)

// Passed reports whether the check lets the wizard move forward.
// Skipped counts as valid-by-default.
func (s CheckState) Passed() bool {
	return s == CheckValid || s == CheckSkipped
}

// Draft is the in-progress answer set of one wizard run.
type Draft struct {
	FlowID    string `json:"flow_id"`
	Flow      Flow   `json:"flow"`
	Bookmaker string `json:"bookmaker,omitempty"`
	Bank      string `json:"bank,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	// Amount keeps the raw input; the step validator parses it.
	Amount   string `json:"amount,omitempty"`
	Phone    string `json:"phone,omitempty"`
	QRPhoto  string `json:"qr_photo,omitempty"`
	SiteCode string `json:"site_code,omitempty"`

	IDCheck        CheckState       `json:"id_check,omitempty"`
	CodeCheck      CheckState       `json:"code_check,omitempty"`
	CodeError      string           `json:"code_error,omitempty"`
	VerifiedAmount *decimal.Decimal `json:"verified_amount,omitempty"`

	RequestID   string           `json:"request_id,omitempty"`
	GuardKey    string           `json:"guard_key,omitempty"`
	FinalAmount *decimal.Decimal `json:"final_amount,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New starts a draft with a fresh flow id.
func New(flow Flow) *Draft {
	now := time.Now().UTC()
	return &Draft{
		FlowID:    uuid.NewString(),
		Flow:      flow,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Submitted reports whether the backend has acknowledged a request for this draft.
func (d *Draft) Submitted() bool {
	return d != nil && d.RequestID != ""
}

// Clone returns a deep copy of d.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	if d.VerifiedAmount != nil {
		v := *d.VerifiedAmount
		c.VerifiedAmount = &v
	}
	if d.FinalAmount != nil {
		v := *d.FinalAmount
		c.FinalAmount = &v
	}
	return &c
}

// IdempotencyKey returns the durable guard identity for the draft:
// the flow id for deposits, (flow, bookmaker, account id) for withdrawals.
func (d *Draft) IdempotencyKey() string {
	if d.Flow == FlowWithdraw {
		return string(FlowWithdraw) + ":" + d.Bookmaker + ":" + d.AccountID
	}
	return string(FlowDeposit) + ":" + d.FlowID
}

// Patch carries the fields one step writes. Nil fields are left untouched.
type Patch struct {
	Bookmaker *string
	Bank      *string
	AccountID *string
	Amount    *string
	Phone     *string
	QRPhoto   *string
	SiteCode  *string

	IDCheck   *CheckState
	CodeCheck *CheckState
	CodeError *string
	// ClearVerifiedAmount wins over VerifiedAmount.
	VerifiedAmount      *decimal.Decimal
	ClearVerifiedAmount bool
	// ClearFinalAmount drops a quoted deposit amount after the input changed.
	ClearFinalAmount bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Bookmaker == nil && p.Bank == nil && p.AccountID == nil &&
		p.Amount == nil && p.Phone == nil && p.QRPhoto == nil && p.SiteCode == nil &&
		p.IDCheck == nil && p.CodeCheck == nil && p.CodeError == nil &&
		p.VerifiedAmount == nil && !p.ClearVerifiedAmount && !p.ClearFinalAmount
}

// Apply writes the non-nil fields of p onto d.
func (p Patch) Apply(d *Draft) {
	setString(&d.Bookmaker, p.Bookmaker)
	setString(&d.Bank, p.Bank)
	setString(&d.AccountID, p.AccountID)
	setString(&d.Amount, p.Amount)
	setString(&d.Phone, p.Phone)
	setString(&d.QRPhoto, p.QRPhoto)
	setString(&d.SiteCode, p.SiteCode)
	setString(&d.CodeError, p.CodeError)
	if p.IDCheck != nil {
		d.IDCheck = *p.IDCheck
	}
	if p.CodeCheck != nil {
		d.CodeCheck = *p.CodeCheck
	}
	switch {
	case p.ClearVerifiedAmount:
		d.VerifiedAmount = nil
	case p.VerifiedAmount != nil:
		v := *p.VerifiedAmount
		d.VerifiedAmount = &v
	}
	if p.ClearFinalAmount {
		d.FinalAmount = nil
	}
	d.UpdatedAt = time.Now().UTC()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}
