package testutil

import (
	"context"
	"sync"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/request"
	"github.com/cassiomorais/cashdesk/internal/domain/settings"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/adminapi"
	redisinfra "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/shopspring/decimal"
)

// --- Admin API Mock ---

// MockAdminAPI is a mock of the admin/payment API. Unset Func fields fall
// back to benign defaults; every call is counted.
type MockAdminAPI struct {
	mu    sync.Mutex
	calls map[string]int

	PaymentSettingsFunc    func(ctx context.Context, userID string) (*settings.PaymentSettings, error)
	CheckPlayerFunc        func(ctx context.Context, in adminapi.CheckPlayerInput) (adminapi.PlayerStatus, error)
	WithdrawCheckFunc      func(ctx context.Context, in adminapi.WithdrawInput) (decimal.Decimal, error)
	WithdrawExecuteFunc    func(ctx context.Context, in adminapi.WithdrawInput) error
	CreatePaymentFunc      func(ctx context.Context, in adminapi.PaymentInput) (string, error)
	GetRequestFunc         func(ctx context.Context, id string) (*request.Request, error)
	LeaderboardFunc        func(ctx context.Context, kind string, limit int) ([]settings.LeaderboardEntry, error)
	TransactionHistoryFunc func(ctx context.Context, userID string) ([]settings.Transaction, error)
}

func NewMockAdminAPI() *MockAdminAPI {
	return &MockAdminAPI{calls: make(map[string]int)}
}

// Calls returns how many times the named method ran.
func (m *MockAdminAPI) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockAdminAPI) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
}

func (m *MockAdminAPI) PaymentSettings(ctx context.Context, userID string) (*settings.PaymentSettings, error) {
	m.record("PaymentSettings")
	if m.PaymentSettingsFunc != nil {
		return m.PaymentSettingsFunc(ctx, userID)
	}
	return NewTestPaymentSettings(), nil
}

func (m *MockAdminAPI) CheckPlayer(ctx context.Context, in adminapi.CheckPlayerInput) (adminapi.PlayerStatus, error) {
	m.record("CheckPlayer")
	if m.CheckPlayerFunc != nil {
		return m.CheckPlayerFunc(ctx, in)
	}
	return adminapi.PlayerFound, nil
}

func (m *MockAdminAPI) WithdrawCheck(ctx context.Context, in adminapi.WithdrawInput) (decimal.Decimal, error) {
	m.record("WithdrawCheck")
	if m.WithdrawCheckFunc != nil {
		return m.WithdrawCheckFunc(ctx, in)
	}
	return decimal.NewFromInt(1000), nil
}

func (m *MockAdminAPI) WithdrawExecute(ctx context.Context, in adminapi.WithdrawInput) error {
	m.record("WithdrawExecute")
	if m.WithdrawExecuteFunc != nil {
		return m.WithdrawExecuteFunc(ctx, in)
	}
	return nil
}

func (m *MockAdminAPI) CreatePayment(ctx context.Context, in adminapi.PaymentInput) (string, error) {
	m.record("CreatePayment")
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, in)
	}
	return "req-1", nil
}

func (m *MockAdminAPI) GetRequest(ctx context.Context, id string) (*request.Request, error) {
	m.record("GetRequest")
	if m.GetRequestFunc != nil {
		return m.GetRequestFunc(ctx, id)
	}
	return &request.Request{ID: id, Status: "pending"}, nil
}

func (m *MockAdminAPI) Leaderboard(ctx context.Context, kind string, limit int) ([]settings.LeaderboardEntry, error) {
	m.record("Leaderboard")
	if m.LeaderboardFunc != nil {
		return m.LeaderboardFunc(ctx, kind, limit)
	}
	return []settings.LeaderboardEntry{}, nil
}

func (m *MockAdminAPI) TransactionHistory(ctx context.Context, userID string) ([]settings.Transaction, error) {
	m.record("TransactionHistory")
	if m.TransactionHistoryFunc != nil {
		return m.TransactionHistoryFunc(ctx, userID)
	}
	return []settings.Transaction{}, nil
}

// --- Locker Mock ---

// MockLocker is an in-process Locker.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	AcquireFunc func(ctx context.Context, key string) (func(context.Context) error, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domainErrors.ErrSubmissionInFlight
	}
	m.held[key] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		return nil
	}, nil
}

// Held reports whether key is currently locked.
func (m *MockLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}

// --- Event Publisher Mock ---

// MockEventPublisher records published events.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []redisinfra.Event

	PublishFunc func(ctx context.Context, ev redisinfra.Event) error
}

func (m *MockEventPublisher) Publish(ctx context.Context, ev redisinfra.Event) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, ev)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of what was published.
func (m *MockEventPublisher) Events() []redisinfra.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]redisinfra.Event(nil), m.events...)
}

// Types lists the published event types in order.
func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}
