package draft

import (
	"testing"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlow(t *testing.T) {
	f, err := ParseFlow("deposit")
	require.NoError(t, err)
	assert.Equal(t, FlowDeposit, f)

	f, err = ParseFlow("withdraw")
	require.NoError(t, err)
	assert.Equal(t, FlowWithdraw, f)

	_, err = ParseFlow("refund")
	assert.ErrorIs(t, err, domainErrors.ErrUnknownFlow)
}

func TestNew_GeneratesFlowID(t *testing.T) {
	a := New(FlowDeposit)
	b := New(FlowDeposit)

	assert.NotEmpty(t, a.FlowID)
	assert.NotEqual(t, a.FlowID, b.FlowID)
	assert.Equal(t, FlowDeposit, a.Flow)
	assert.False(t, a.Submitted())
}

func TestPatch_Apply_OnlyTouchesSetFields(t *testing.T) {
	d := New(FlowWithdraw)
	d.Bookmaker = "1xbet"
	d.Bank = "mbank"
	d.Phone = "996700123456"

	Patch{AccountID: Ptr("12345")}.Apply(d)

	assert.Equal(t, "1xbet", d.Bookmaker)
	assert.Equal(t, "mbank", d.Bank)
	assert.Equal(t, "996700123456", d.Phone)
	assert.Equal(t, "12345", d.AccountID)
}

func TestPatch_Apply_VerifiedAmount(t *testing.T) {
	d := New(FlowWithdraw)

	Patch{VerifiedAmount: Ptr(decimal.RequireFromString("250.50"))}.Apply(d)
	require.NotNil(t, d.VerifiedAmount)
	assert.Equal(t, "250.5", d.VerifiedAmount.String())

	Patch{ClearVerifiedAmount: true, VerifiedAmount: Ptr(decimal.NewFromInt(1))}.Apply(d)
	assert.Nil(t, d.VerifiedAmount)
}

func TestPatch_Empty(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	assert.False(t, Patch{Bank: Ptr("omoney")}.Empty())
	assert.False(t, Patch{ClearVerifiedAmount: true}.Empty())
}

func TestDraft_IdempotencyKey(t *testing.T) {
	dep := New(FlowDeposit)
	assert.Equal(t, "deposit:"+dep.FlowID, dep.IdempotencyKey())

	wd := New(FlowWithdraw)
	wd.Bookmaker = "melbet"
	wd.AccountID = "777"
	assert.Equal(t, "withdraw:melbet:777", wd.IdempotencyKey())
}

func TestCheckState_Passed(t *testing.T) {
	assert.True(t, CheckValid.Passed())
	assert.True(t, CheckSkipped.Passed())
	assert.False(t, CheckInvalid.Passed())
	assert.False(t, CheckPending.Passed())
	assert.False(t, CheckUnchecked.Passed())
}

func TestDraft_Clone(t *testing.T) {
	d := New(FlowWithdraw)
	amount := decimal.NewFromInt(700)
	d.VerifiedAmount = &amount

	c := d.Clone()
	require.NotNil(t, c)
	*c.VerifiedAmount = decimal.NewFromInt(1)
	c.Bank = "mbank"

	assert.True(t, d.VerifiedAmount.Equal(decimal.NewFromInt(700)))
	assert.Empty(t, d.Bank)
	assert.Nil(t, (*Draft)(nil).Clone())
}

func TestPatch_Apply_ClearFinalAmount(t *testing.T) {
	final := decimal.RequireFromString("500.37")
	d := &Draft{Flow: FlowDeposit, Amount: "500", FinalAmount: &final}

	Patch{Bank: Ptr("mbank")}.Apply(d)
	require.NotNil(t, d.FinalAmount)

	Patch{Amount: Ptr("700"), ClearFinalAmount: true}.Apply(d)
	assert.Nil(t, d.FinalAmount)
	assert.False(t, Patch{ClearFinalAmount: true}.Empty())
}
