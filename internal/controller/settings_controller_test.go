package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/cashdesk/internal/domain/settings"
	"github.com/cassiomorais/cashdesk/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsController_Settings(t *testing.T) {
	h := newHarness(t)
	h.api.PaymentSettingsFunc = func(ctx context.Context, userID string) (*settings.PaymentSettings, error) {
		ps := testutil.NewTestPaymentSettings()
		ps.Casinos = map[string]bool{"1win": false}
		ps.Deposits.Banks = []string{"mbank", "unknown-bank", "optima"}
		return ps, nil
	}

	w := h.do(t, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[SettingsResponse](t, w)

	assert.True(t, resp.DepositsEnabled)
	assert.True(t, resp.WithdrawalsEnabled)
	assert.NotContains(t, resp.Bookmakers, "1win")
	assert.Contains(t, resp.Bookmakers, "1xbet")
	assert.Equal(t, []string{"mbank", "optima"}, resp.DepositBanks)
	assert.Len(t, resp.WithdrawBanks, 8)
	assert.Equal(t, "35", resp.MinAmount)
	assert.Equal(t, "100000", resp.MaxAmount)
}

func TestSettingsController_Leaderboard(t *testing.T) {
	h := newHarness(t)
	var gotKind string
	var gotLimit int
	h.api.LeaderboardFunc = func(ctx context.Context, kind string, limit int) ([]settings.LeaderboardEntry, error) {
		gotKind, gotLimit = kind, limit
		return []settings.LeaderboardEntry{{Rank: 1, UserID: "7", Total: decimal.NewFromInt(9000)}}, nil
	}

	w := h.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deposit", gotKind)
	assert.Equal(t, 10, gotLimit)
	assert.Contains(t, w.Body.String(), `"user_id":"7"`)

	w = h.do(t, http.MethodGet, "/api/v1/leaderboard?type=withdraw&limit=25", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "withdraw", gotKind)
	assert.Equal(t, 25, gotLimit)
}

func TestSettingsController_LeaderboardRejectsBadQuery(t *testing.T) {
	h := newHarness(t)

	for _, q := range []string{"?type=refund", "?limit=0", "?limit=101", "?limit=ten"} {
		w := h.do(t, http.MethodGet, "/api/v1/leaderboard"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	assert.Zero(t, h.api.Calls("Leaderboard"))
}

func TestSettingsController_History(t *testing.T) {
	h := newHarness(t)
	var gotUser string
	h.api.TransactionHistoryFunc = func(ctx context.Context, userID string) ([]settings.Transaction, error) {
		gotUser = userID
		return []settings.Transaction{{ID: "tx-1", Type: "deposit", Amount: decimal.NewFromInt(500), Status: "completed"}}, nil
	}

	w := h.do(t, http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testUser, gotUser)
	assert.Contains(t, w.Body.String(), `"id":"tx-1"`)

	// Cached per user.
	h.do(t, http.MethodGet, "/api/v1/history", nil)
	assert.Equal(t, 1, h.api.Calls("TransactionHistory"))
}

func TestLinksController_RequiresValidDraft(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/flows/deposit/links", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	testutil.SeedDepositDraft(t, h.store, testUser, "1xbet", "5")
	w = h.do(t, http.MethodGet, "/api/v1/flows/deposit/links", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLinksController_QuoteIsStable(t *testing.T) {
	h := newHarness(t)
	testutil.SeedDepositDraft(t, h.store, testUser, "1xbet", "1200")

	first := decode[LinksResponse](t, h.do(t, http.MethodGet, "/api/v1/flows/deposit/links", nil))
	second := decode[LinksResponse](t, h.do(t, http.MethodGet, "/api/v1/flows/deposit/links", nil))

	assert.Equal(t, "1200.37", first.Amount)
	assert.Equal(t, first.Payload, second.Payload)
	assert.NotEmpty(t, first.Links["mbank"])
}

func TestHealthController_Readiness(t *testing.T) {
	healthy := PingFunc(func(ctx context.Context) error { return nil })
	broken := PingFunc(func(ctx context.Context) error { return assert.AnError })

	w := httptest.NewRecorder()
	NewHealthController(map[string]Pinger{"redis": healthy}).Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	NewHealthController(map[string]Pinger{"redis": healthy, "postgres": broken}).Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "postgres unavailable")

	w = httptest.NewRecorder()
	NewHealthController(nil).Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ServesMetricsAndHealth(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/api/v1/flows/deposit", nil)

	w := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}
