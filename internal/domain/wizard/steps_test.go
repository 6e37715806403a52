package wizard

import (
	"testing"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteps_Order(t *testing.T) {
	assert.Equal(t,
		[]Step{StepBookmaker, StepAccount, StepBank, StepAmount, StepPayment, StepStatus},
		Steps(draft.FlowDeposit))
	assert.Equal(t,
		[]Step{StepBookmaker, StepBank, StepPhone, StepQR, StepAccount, StepCode, StepStatus},
		Steps(draft.FlowWithdraw))
}

func TestParseStep(t *testing.T) {
	st, err := ParseStep(draft.FlowWithdraw, "qr")
	require.NoError(t, err)
	assert.Equal(t, StepQR, st)

	_, err = ParseStep(draft.FlowDeposit, "qr")
	assert.ErrorIs(t, err, domainErrors.ErrUnknownStep)
}

func TestNext(t *testing.T) {
	assert.Equal(t, StepAccount, Next(draft.FlowDeposit, StepBookmaker))
	assert.Equal(t, StepStatus, Next(draft.FlowDeposit, StepPayment))
	assert.Equal(t, StepCode, Next(draft.FlowWithdraw, StepAccount))
	assert.Equal(t, StepStatus, Next(draft.FlowWithdraw, "nope"))
}

func TestGuard_RedirectsToEntryWhenPredecessorMissing(t *testing.T) {
	d := draft.New(draft.FlowWithdraw)
	d.Bookmaker = "1xbet"
	d.Bank = "mbank"

	// Deep link straight to the QR step without a phone.
	to, redirect := Guard(draft.FlowWithdraw, StepQR, d)
	assert.True(t, redirect)
	assert.Equal(t, StepBookmaker, to)

	d.Phone = "996700123456"
	_, redirect = Guard(draft.FlowWithdraw, StepQR, d)
	assert.False(t, redirect)
}

func TestGuard_EntryStepNeverRedirects(t *testing.T) {
	_, redirect := Guard(draft.FlowDeposit, StepBookmaker, nil)
	assert.False(t, redirect)
}

func TestGuard_NilDraft(t *testing.T) {
	to, redirect := Guard(draft.FlowDeposit, StepAmount, nil)
	assert.True(t, redirect)
	assert.Equal(t, StepBookmaker, to)
}

func TestGuard_StatusNeedsRequestID(t *testing.T) {
	d := depositDraft()
	to, redirect := Guard(draft.FlowDeposit, StepStatus, d)
	assert.True(t, redirect)
	assert.Equal(t, StepBookmaker, to)

	d.RequestID = "req-1"
	_, redirect = Guard(draft.FlowDeposit, StepStatus, d)
	assert.False(t, redirect)
}

func TestResumeStep(t *testing.T) {
	rules := testRules()

	assert.Equal(t, StepBookmaker, ResumeStep(draft.FlowDeposit, nil, rules))

	d := depositDraft()
	d.Amount = ""
	assert.Equal(t, StepAmount, ResumeStep(draft.FlowDeposit, d, rules))

	d.Amount = "500"
	assert.Equal(t, StepPayment, ResumeStep(draft.FlowDeposit, d, rules))

	d.RequestID = "req-9"
	assert.Equal(t, StepStatus, ResumeStep(draft.FlowDeposit, d, rules))

	w := withdrawDraft()
	w.CodeCheck = draft.CheckUnchecked
	assert.Equal(t, StepCode, ResumeStep(draft.FlowWithdraw, w, rules))
}
