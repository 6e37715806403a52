package wizard

import (
	"slices"
	"strings"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	"github.com/shopspring/decimal"
)

// ErrorKind is a machine-readable reason a step cannot proceed.
type ErrorKind string

const (
	ErrBookmakerRequired   ErrorKind = "bookmaker_required"
	ErrBookmakerUnknown    ErrorKind = "bookmaker_unknown"
	ErrBookmakerNotAllowed ErrorKind = "bookmaker_not_allowed"
	ErrBankRequired        ErrorKind = "bank_required"
	ErrBankUnknown         ErrorKind = "bank_unknown"
	ErrAmountNotANumber    ErrorKind = "amount_not_a_number"
	ErrAmountTooLow        ErrorKind = "amount_too_low"
	ErrAmountTooHigh       ErrorKind = "amount_too_high"
	ErrPhoneTooShort       ErrorKind = "phone_too_short"
	ErrAccountIDRequired   ErrorKind = "account_id_required"
	ErrAccountIDNotNumeric ErrorKind = "account_id_not_numeric"
	ErrAccountIDNotChecked ErrorKind = "account_id_not_verified"
	ErrAccountIDNotFound   ErrorKind = "account_id_not_found"
	ErrQRPhotoRequired     ErrorKind = "qr_photo_required"
	ErrSiteCodeRequired    ErrorKind = "site_code_required"
	ErrCodeNotVerified     ErrorKind = "code_not_verified"
)

// PhonePrefix is the country code every phone number is normalized to.
const PhonePrefix = "996"

// MinPhoneDigits counts the prefix.
const MinPhoneDigits = 12

// Rules is the external configuration the validator checks against.
// Nothing here is hard-coded in the validator itself.
type Rules struct {
	Bookmakers []string
	// AllowedBookmakers restricts the bot variant to a subset; empty means all.
	AllowedBookmakers []string
	Banks             []string
	// DepositBanks and WithdrawBanks narrow Banks per flow when non-empty.
	DepositBanks  []string
	WithdrawBanks []string
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	// DisabledBookmakers are switched off by the backend for now.
	DisabledBookmakers []string
	// PlayerCheckBookmakers must pass the remote player-id check.
	PlayerCheckBookmakers []string
}

// AutoSelectBookmaker returns the sole allowed bookmaker when the set is
// restricted to exactly one.
func (r Rules) AutoSelectBookmaker() (string, bool) {
	if len(r.AllowedBookmakers) == 1 {
		return r.AllowedBookmakers[0], true
	}
	return "", false
}

// RequiresPlayerCheck reports whether the bookmaker supports the player-id check.
func (r Rules) RequiresPlayerCheck(bookmaker string) bool {
	return slices.Contains(r.PlayerCheckBookmakers, bookmaker)
}

func (r Rules) banksFor(flow draft.Flow) []string {
	switch {
	case flow == draft.FlowDeposit && len(r.DepositBanks) > 0:
		return r.DepositBanks
	case flow == draft.FlowWithdraw && len(r.WithdrawBanks) > 0:
		return r.WithdrawBanks
	default:
		return r.Banks
	}
}

// CanProceed reports whether the step's forward action is allowed.
func CanProceed(step Step, d *draft.Draft, rules Rules) bool {
	return len(Errors(step, d, rules)) == 0
}

// Errors lists why the step cannot proceed. It is pure and has no side effects.
func Errors(step Step, d *draft.Draft, rules Rules) []ErrorKind {
	if d == nil {
		d = &draft.Draft{}
	}

	var errs []ErrorKind
	switch step {
	case StepBookmaker:
		errs = bookmakerErrors(d.Bookmaker, rules)
	case StepBank:
		errs = bankErrors(d.Bank, rules.banksFor(d.Flow))
	case StepAmount:
		errs = amountErrors(d.Amount, rules.MinAmount, rules.MaxAmount)
	case StepPhone:
		errs = phoneErrors(d.Phone)
	case StepAccount:
		errs = accountErrors(d.AccountID)
		if len(errs) == 0 && d.Flow == draft.FlowDeposit && rules.RequiresPlayerCheck(d.Bookmaker) {
			switch {
			case d.IDCheck == draft.CheckInvalid:
				errs = append(errs, ErrAccountIDNotFound)
			case !d.IDCheck.Passed():
				errs = append(errs, ErrAccountIDNotChecked)
			}
		}
	case StepQR:
		if strings.TrimSpace(d.QRPhoto) == "" {
			errs = append(errs, ErrQRPhotoRequired)
		}
	case StepCode:
		if strings.TrimSpace(d.SiteCode) == "" {
			errs = append(errs, ErrSiteCodeRequired)
		} else if d.CodeCheck != draft.CheckValid || d.VerifiedAmount == nil || !d.VerifiedAmount.IsPositive() {
			errs = append(errs, ErrCodeNotVerified)
		}
	case StepPayment:
		for _, prev := range flowSteps[d.Flow] {
			if prev == StepPayment {
				break
			}
			errs = append(errs, Errors(prev, d, rules)...)
		}
	}
	return errs
}

func bookmakerErrors(bookmaker string, rules Rules) []ErrorKind {
	if bookmaker == "" {
		return []ErrorKind{ErrBookmakerRequired}
	}
	if !slices.Contains(rules.Bookmakers, bookmaker) {
		return []ErrorKind{ErrBookmakerUnknown}
	}
	if len(rules.AllowedBookmakers) > 0 && !slices.Contains(rules.AllowedBookmakers, bookmaker) {
		return []ErrorKind{ErrBookmakerNotAllowed}
	}
	if slices.Contains(rules.DisabledBookmakers, bookmaker) {
		return []ErrorKind{ErrBookmakerNotAllowed}
	}
	return nil
}

func bankErrors(bank string, banks []string) []ErrorKind {
	if bank == "" {
		return []ErrorKind{ErrBankRequired}
	}
	if !slices.Contains(banks, bank) {
		return []ErrorKind{ErrBankUnknown}
	}
	return nil
}

// ParseAmount parses user input into a positive finite decimal.
// A comma is accepted as the decimal separator.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func amountErrors(raw string, lo, hi decimal.Decimal) []ErrorKind {
	v, ok := ParseAmount(raw)
	if !ok {
		return []ErrorKind{ErrAmountNotANumber}
	}
	if !v.IsPositive() || v.LessThan(lo) {
		return []ErrorKind{ErrAmountTooLow}
	}
	if hi.IsPositive() && v.GreaterThan(hi) {
		return []ErrorKind{ErrAmountTooHigh}
	}
	return nil
}

// NormalizePhone strips non-digits and forces the country prefix.
func NormalizePhone(raw string) string {
	digits := DigitsOnly(raw)
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, PhonePrefix):
		return digits
	case strings.HasPrefix(digits, "0"):
		return PhonePrefix + digits[1:]
	default:
		return PhonePrefix + digits
	}
}

// DigitsOnly drops every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func phoneErrors(phone string) []ErrorKind {
	if len(DigitsOnly(phone)) < MinPhoneDigits {
		return []ErrorKind{ErrPhoneTooShort}
	}
	return nil
}

func accountErrors(id string) []ErrorKind {
	if id == "" {
		return []ErrorKind{ErrAccountIDRequired}
	}
	if DigitsOnly(id) != id {
		return []ErrorKind{ErrAccountIDNotNumeric}
	}
	return nil
}
