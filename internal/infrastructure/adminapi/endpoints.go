package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/request"
	"github.com/cassiomorais/cashdesk/internal/domain/settings"
	"github.com/shopspring/decimal"
)

// PlayerStatus is the tri-state outcome of the player-id check.
type PlayerStatus string

const (
	PlayerFound    PlayerStatus = "found"
	PlayerNotFound PlayerStatus = "not_found"
	PlayerSkipped  PlayerStatus = "skipped"
)

type CheckPlayerInput struct {
	Bookmaker string `json:"bookmaker"`
	AccountID string `json:"accountId"`
}

type WithdrawInput struct {
	Bookmaker string `json:"bookmaker"`
	AccountID string `json:"accountId"`
	Code      string `json:"code"`
	Phone     string `json:"phone,omitempty"`
	Bank      string `json:"bank,omitempty"`
}

// PaymentInput is the body of POST /api/payment.
type PaymentInput struct {
	Type      string      `json:"type"`
	UserID    string      `json:"user_id"`
	FlowID    string      `json:"flow_id"`
	Bookmaker string      `json:"bookmaker"`
	Bank      string      `json:"bank"`
	AccountID string      `json:"account_id"`
	Amount    json.Number `json:"amount"`
	Phone     string      `json:"phone,omitempty"`
	QRPhoto   string      `json:"qr_photo,omitempty"`
	SiteCode  string      `json:"site_code,omitempty"`
}

// PaymentSettings fetches GET /api/public/payment-settings.
func (c *Client) PaymentSettings(ctx context.Context, userID string) (*settings.PaymentSettings, error) {
	req := &Request[struct{}]{Method: http.MethodGet, Path: "/api/public/payment-settings"}
	if userID != "" {
		req.AddQueryParam("user_id", userID)
	}
	raw, err := doRequest[struct{}, json.RawMessage](ctx, c, OpSettings, req)
	if err != nil {
		return nil, err
	}
	return parsePaymentSettings(*raw)
}

// CheckPlayer calls POST /api/public/casino/check-player.
func (c *Client) CheckPlayer(ctx context.Context, in CheckPlayerInput) (PlayerStatus, error) {
	req := &Request[CheckPlayerInput]{Method: http.MethodPost, Path: "/api/public/casino/check-player", Body: &in}
	env, err := doRequest[CheckPlayerInput, envelope](ctx, c, OpCheckPlayer, req)
	if err != nil {
		return "", err
	}
	return parseCheckPlayer(env)
}

// WithdrawCheck calls POST /api/withdraw-check and returns the verified amount.
func (c *Client) WithdrawCheck(ctx context.Context, in WithdrawInput) (decimal.Decimal, error) {
	req := &Request[WithdrawInput]{Method: http.MethodPost, Path: "/api/withdraw-check", Body: &in}
	raw, err := doRequest[WithdrawInput, json.RawMessage](ctx, c, OpWithdrawCheck, req)
	if err != nil {
		return decimal.Zero, err
	}
	return parseWithdrawCheck(*raw)
}

// WithdrawExecute calls POST /api/withdraw-execute.
func (c *Client) WithdrawExecute(ctx context.Context, in WithdrawInput) error {
	req := &Request[WithdrawInput]{Method: http.MethodPost, Path: "/api/withdraw-execute", Body: &in}
	env, err := doRequest[WithdrawInput, envelope](ctx, c, OpWithdrawExecute, req)
	if err != nil {
		return err
	}
	if env.Success == nil {
		return &domainErrors.ParseError{Op: OpWithdrawExecute, Err: errors.New("missing success flag")}
	}
	if env.failed() {
		return &domainErrors.ServerRejectionError{Op: OpWithdrawExecute, Message: env.errorText()}
	}
	return nil
}

// CreatePayment calls POST /api/payment and returns the new request id.
func (c *Client) CreatePayment(ctx context.Context, in PaymentInput) (string, error) {
	req := &Request[PaymentInput]{Method: http.MethodPost, Path: "/api/payment", Body: &in}
	raw, err := doRequest[PaymentInput, json.RawMessage](ctx, c, OpPayment, req)
	if err != nil {
		return "", err
	}
	return parseCreatePayment(*raw)
}

// GetRequest calls GET /api/requests/{id}.
func (c *Client) GetRequest(ctx context.Context, id string) (*request.Request, error) {
	req := &Request[struct{}]{Method: http.MethodGet, Path: "/api/requests/{id}"}
	req.AddPathParam("id", id)
	env, err := doRequest[struct{}, envelope](ctx, c, OpRequests, req)
	if err != nil {
		return nil, err
	}
	r, err := parseRequest(env)
	if err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}

// Leaderboard calls GET /api/public/leaderboard.
func (c *Client) Leaderboard(ctx context.Context, kind string, limit int) ([]settings.LeaderboardEntry, error) {
	req := &Request[struct{}]{Method: http.MethodGet, Path: "/api/public/leaderboard"}
	if kind != "" {
		req.AddQueryParam("type", kind)
	}
	if limit > 0 {
		req.AddQueryParam("limit", strconv.Itoa(limit))
	}
	raw, err := doRequest[struct{}, json.RawMessage](ctx, c, OpLeaderboard, req)
	if err != nil {
		return nil, err
	}
	return parseLeaderboard(*raw)
}

// TransactionHistory calls GET /api/transaction-history.
func (c *Client) TransactionHistory(ctx context.Context, userID string) ([]settings.Transaction, error) {
	req := &Request[struct{}]{Method: http.MethodGet, Path: "/api/transaction-history"}
	req.AddQueryParam("user_id", userID)
	raw, err := doRequest[struct{}, json.RawMessage](ctx, c, OpHistory, req)
	if err != nil {
		return nil, err
	}
	return parseHistory(*raw)
}

func parsePaymentSettings(raw json.RawMessage) (*settings.PaymentSettings, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &domainErrors.ParseError{Op: OpSettings, Err: err}
	}
	if env.failed() {
		return nil, &domainErrors.ServerRejectionError{Op: OpSettings, Message: env.errorText()}
	}
	body := raw
	if env.hasData() {
		body = env.Data
	}

	var out settings.PaymentSettings
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &domainErrors.ParseError{Op: OpSettings, Err: err}
	}
	return &out, nil
}

func parseCheckPlayer(env *envelope) (PlayerStatus, error) {
	var data struct {
		Exists *bool `json:"exists"`
		Skip   bool  `json:"skip"`
	}
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", &domainErrors.ParseError{Op: OpCheckPlayer, Err: err}
		}
	}

	switch {
	case data.Skip:
		return PlayerSkipped, nil
	case data.Exists != nil && *data.Exists:
		return PlayerFound, nil
	case data.Exists != nil:
		return PlayerNotFound, nil
	case env.failed():
		return "", &domainErrors.ServerRejectionError{Op: OpCheckPlayer, Message: env.errorText()}
	default:
		return "", &domainErrors.ParseError{Op: OpCheckPlayer, Err: errors.New("neither exists nor skip present")}
	}
}

// parseWithdrawCheck accepts {data: number}, {data: {amount}} and {amount}.
func parseWithdrawCheck(raw json.RawMessage) (decimal.Decimal, error) {
	var body struct {
		envelope
		Amount decimal.NullDecimal `json:"amount"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return decimal.Zero, &domainErrors.ParseError{Op: OpWithdrawCheck, Err: err}
	}
	if body.failed() {
		return decimal.Zero, &domainErrors.ServerRejectionError{Op: OpWithdrawCheck, Message: body.errorText()}
	}

	if body.hasData() {
		var direct decimal.NullDecimal
		if json.Unmarshal(body.Data, &direct) == nil && direct.Valid {
			return direct.Decimal, nil
		}
		var nested struct {
			Amount decimal.NullDecimal `json:"amount"`
		}
		if json.Unmarshal(body.Data, &nested) == nil && nested.Amount.Valid {
			return nested.Amount.Decimal, nil
		}
	}
	if body.Amount.Valid {
		return body.Amount.Decimal, nil
	}
	return decimal.Zero, &domainErrors.ParseError{Op: OpWithdrawCheck, Err: errors.New("amount missing")}
}

// parseCreatePayment probes id, transactionId, data.id and data.transactionId.
func parseCreatePayment(raw json.RawMessage) (string, error) {
	type ids struct {
		ID            flexString `json:"id"`
		TransactionID flexString `json:"transactionId"`
	}
	var body struct {
		envelope
		ids
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", &domainErrors.ParseError{Op: OpPayment, Err: err}
	}
	if body.failed() {
		return "", &domainErrors.ServerRejectionError{Op: OpPayment, Message: body.errorText()}
	}

	candidates := []ids{body.ids}
	if body.hasData() {
		var nested ids
		if json.Unmarshal(body.Data, &nested) == nil {
			candidates = append(candidates, nested)
		}
	}
	for _, c := range candidates {
		if id := strings.TrimSpace(string(c.ID)); id != "" {
			return id, nil
		}
		if id := strings.TrimSpace(string(c.TransactionID)); id != "" {
			return id, nil
		}
	}
	return "", &domainErrors.ParseError{Op: OpPayment, Err: errors.New("request id missing")}
}

func parseRequest(env *envelope) (*request.Request, error) {
	if env.failed() {
		return nil, &domainErrors.ServerRejectionError{Op: OpRequests, Message: env.errorText()}
	}
	if !env.hasData() {
		return nil, &domainErrors.ParseError{Op: OpRequests, Err: errors.New("data missing")}
	}

	var data struct {
		ID                flexString          `json:"id"`
		Status            *string             `json:"status"`
		Amount            decimal.NullDecimal `json:"amount"`
		StatusDetail      json.RawMessage     `json:"statusDetail"`
		StatusDetailSnake json.RawMessage     `json:"status_detail"`
		ProcessedBy       string              `json:"processedBy"`
		ProcessedBySnake  string              `json:"processed_by"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &domainErrors.ParseError{Op: OpRequests, Err: err}
	}
	if data.Status == nil {
		return nil, &domainErrors.ParseError{Op: OpRequests, Err: errors.New("status missing")}
	}

	detail := data.StatusDetail
	if len(detail) == 0 || string(detail) == "null" {
		detail = data.StatusDetailSnake
	}
	processedBy := data.ProcessedBy
	if processedBy == "" {
		processedBy = data.ProcessedBySnake
	}

	return &request.Request{
		ID:           string(data.ID),
		Status:       *data.Status,
		Amount:       data.Amount.Decimal,
		StatusDetail: rawText(detail),
		ProcessedBy:  processedBy,
	}, nil
}

// rawText unquotes a JSON string and returns any other JSON value verbatim.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// probeList finds the first JSON array among the given dotted paths.
func probeList(raw json.RawMessage, paths ...string) (json.RawMessage, bool) {
	for _, path := range paths {
		cur := raw
		ok := true
		if path != "" {
			for _, key := range strings.Split(path, ".") {
				var obj map[string]json.RawMessage
				if json.Unmarshal(cur, &obj) != nil {
					ok = false
					break
				}
				if cur, ok = obj[key]; !ok {
					break
				}
			}
		}
		trimmed := strings.TrimSpace(string(cur))
		if ok && strings.HasPrefix(trimmed, "[") {
			return cur, true
		}
	}
	return nil, false
}

func parseLeaderboard(raw json.RawMessage) ([]settings.LeaderboardEntry, error) {
	list, ok := probeList(raw, "data.leaderboard", "data", "leaderboard", "")
	if !ok {
		return nil, &domainErrors.ParseError{Op: OpLeaderboard, Err: errors.New("no leaderboard list")}
	}

	var rows []struct {
		Rank      int                 `json:"rank"`
		UserID    flexString          `json:"user_id"`
		UserIDAlt flexString          `json:"userId"`
		Username  string              `json:"username"`
		Name      string              `json:"name"`
		Total     decimal.NullDecimal `json:"total"`
		Amount    decimal.NullDecimal `json:"amount"`
	}
	if err := json.Unmarshal(list, &rows); err != nil {
		return nil, &domainErrors.ParseError{Op: OpLeaderboard, Err: err}
	}

	out := make([]settings.LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		e := settings.LeaderboardEntry{
			Rank:     r.Rank,
			UserID:   string(r.UserID),
			Username: r.Username,
			Total:    r.Total.Decimal,
		}
		if e.Rank == 0 {
			e.Rank = i + 1
		}
		if e.UserID == "" {
			e.UserID = string(r.UserIDAlt)
		}
		if e.Username == "" {
			e.Username = r.Name
		}
		if !r.Total.Valid {
			e.Total = r.Amount.Decimal
		}
		out = append(out, e)
	}
	return out, nil
}

func parseHistory(raw json.RawMessage) ([]settings.Transaction, error) {
	list, ok := probeList(raw, "data.transactions", "transactions", "data")
	if !ok {
		// An account with no history may come back without the list at all.
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, &domainErrors.ParseError{Op: OpHistory, Err: err}
		}
		if env.failed() {
			return nil, &domainErrors.ServerRejectionError{Op: OpHistory, Message: env.errorText()}
		}
		return []settings.Transaction{}, nil
	}

	var rows []struct {
		ID         flexString          `json:"id"`
		Type       string              `json:"type"`
		Bookmaker  string              `json:"bookmaker"`
		Amount     decimal.NullDecimal `json:"amount"`
		Status     string              `json:"status"`
		CreatedAt  string              `json:"created_at"`
		CreatedAlt string              `json:"createdAt"`
	}
	if err := json.Unmarshal(list, &rows); err != nil {
		return nil, &domainErrors.ParseError{Op: OpHistory, Err: err}
	}

	out := make([]settings.Transaction, 0, len(rows))
	for _, r := range rows {
		t := settings.Transaction{
			ID:        string(r.ID),
			Type:      r.Type,
			Bookmaker: r.Bookmaker,
			Amount:    r.Amount.Decimal,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		}
		if t.CreatedAt == "" {
			t.CreatedAt = r.CreatedAlt
		}
		out = append(out, t)
	}
	return out, nil
}
