package settings

import "github.com/shopspring/decimal"

// PaymentSettings is the normalized payment-settings payload.
type PaymentSettings struct {
	Deposits    DepositSettings  `json:"deposits"`
	Withdrawals WithdrawSettings `json:"withdrawals"`
	// Casinos lists bookmaker availability as returned by the backend.
	Casinos map[string]bool `json:"casinos"`
}

type DepositSettings struct {
	Enabled   bool            `json:"enabled"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Banks     []string        `json:"banks"`
}

type WithdrawSettings struct {
	Enabled bool     `json:"enabled"`
	Banks   []string `json:"banks"`
}

// BookmakerEnabled reports whether the backend allows the bookmaker.
// Bookmakers missing from the map are treated as enabled.
func (s *PaymentSettings) BookmakerEnabled(key string) bool {
	if s == nil || s.Casinos == nil {
		return true
	}
	enabled, ok := s.Casinos[key]
	return !ok || enabled
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Rank     int             `json:"rank"`
	UserID   string          `json:"user_id"`
	Username string          `json:"username,omitempty"`
	Total    decimal.Decimal `json:"total"`
}

// Transaction is one row of the user's transaction history.
type Transaction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Bookmaker string          `json:"bookmaker,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at,omitempty"`
}
