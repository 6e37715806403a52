package controller

import (
	"net/http"
	"slices"
	"strconv"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/service"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// SettingsController serves the caller's effective settings and the
// cached read-only proxies.
type SettingsController struct {
	settings *service.SettingsService
}

func NewSettingsController(settings *service.SettingsService) *SettingsController {
	return &SettingsController{settings: settings}
}

func (h *SettingsController) Settings(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ps, err := h.settings.PaymentSettings(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rules := h.settings.Rules(r.Context(), owner)

	bookmakers := rules.Bookmakers
	if len(rules.AllowedBookmakers) > 0 {
		bookmakers = rules.AllowedBookmakers
	}
	visible := make([]string, 0, len(bookmakers))
	for _, b := range bookmakers {
		if !slices.Contains(rules.DisabledBookmakers, b) {
			visible = append(visible, b)
		}
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		DepositsEnabled:    ps.Deposits.Enabled,
		WithdrawalsEnabled: ps.Withdrawals.Enabled,
		Bookmakers:         visible,
		DepositBanks:       orDefault(rules.DepositBanks, rules.Banks),
		WithdrawBanks:      orDefault(rules.WithdrawBanks, rules.Banks),
		MinAmount:          rules.MinAmount.String(),
		MaxAmount:          rules.MaxAmount.String(),
	})
}

func (h *SettingsController) Leaderboard(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = "deposit"
	}
	if kind != "deposit" && kind != "withdraw" {
		writeError(w, r, domainErrors.NewValidationError("type", "must be deposit or withdraw"))
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			writeError(w, r, domainErrors.NewValidationError("limit", "must be between 1 and 100"))
			return
		}
		limit = n
	}

	entries, err := h.settings.Leaderboard(r.Context(), kind, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *SettingsController) History(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := h.settings.History(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func orDefault(v, fallback []string) []string {
	if len(v) > 0 {
		return v
	}
	return fallback
}
