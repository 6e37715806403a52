package testutil

import (
	"context"
	"testing"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	"github.com/cassiomorais/cashdesk/internal/domain/settings"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func NewTestPaymentSettings() *settings.PaymentSettings {
	return &settings.PaymentSettings{
		Deposits: settings.DepositSettings{
			Enabled:   true,
			MinAmount: decimal.NewFromInt(35),
			MaxAmount: decimal.NewFromInt(100000),
		},
		Withdrawals: settings.WithdrawSettings{Enabled: true},
	}
}

// NewTestWizardConfig mirrors the shipped defaults.
func NewTestWizardConfig() config.WizardConfig {
	return config.WizardConfig{
		Bookmakers:                []string{"1xbet", "1win", "melbet", "mostbet", "winwin", "888starz"},
		Banks:                     []string{"demirbank", "omoney", "balance", "bakai", "megapay", "mbank", "optima", "kompanion"},
		PlayerCheckBookmakers:     []string{"1xbet", "melbet", "winwin", "888starz"},
		ExecuteAtSourceBookmakers: []string{"mostbet", "1win"},
		MinAmount:                 35,
		MaxAmount:                 100000,
	}
}

// SeedDepositDraft writes a deposit draft that passes every step.
func SeedDepositDraft(t *testing.T, store draft.Store, owner, bookmaker, amount string) *draft.Draft {
	t.Helper()
	d, err := store.Set(context.Background(), owner, draft.FlowDeposit, draft.Patch{
		Bookmaker: draft.Ptr(bookmaker),
		AccountID: draft.Ptr("123456"),
		Bank:      draft.Ptr("mbank"),
		Amount:    draft.Ptr(amount),
		IDCheck:   draft.Ptr(draft.CheckValid),
	})
	require.NoError(t, err)
	return d
}

// SeedWithdrawDraft writes a withdraw draft with a verified code.
func SeedWithdrawDraft(t *testing.T, store draft.Store, owner, bookmaker string, verified decimal.Decimal) *draft.Draft {
	t.Helper()
	d, err := store.Set(context.Background(), owner, draft.FlowWithdraw, draft.Patch{
		Bookmaker:      draft.Ptr(bookmaker),
		Bank:           draft.Ptr("mbank"),
		Phone:          draft.Ptr("996700123456"),
		QRPhoto:        draft.Ptr("data:image/png;base64,iVBORw0KGgo="),
		AccountID:      draft.Ptr("987654"),
		SiteCode:       draft.Ptr("X7Q2"),
		CodeCheck:      draft.Ptr(draft.CheckValid),
		VerifiedAmount: &verified,
	})
	require.NoError(t, err)
	return d
}
