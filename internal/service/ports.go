package service

import (
	"context"

	"github.com/cassiomorais/cashdesk/internal/domain/request"
	"github.com/cassiomorais/cashdesk/internal/domain/settings"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/adminapi"
	redisinfra "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/shopspring/decimal"
)

// AdminAPI is the part of the admin/payment API the services call.
// *adminapi.Client implements it.
type AdminAPI interface {
	PaymentSettings(ctx context.Context, userID string) (*settings.PaymentSettings, error)
	CheckPlayer(ctx context.Context, in adminapi.CheckPlayerInput) (adminapi.PlayerStatus, error)
	WithdrawCheck(ctx context.Context, in adminapi.WithdrawInput) (decimal.Decimal, error)
	WithdrawExecute(ctx context.Context, in adminapi.WithdrawInput) error
	CreatePayment(ctx context.Context, in adminapi.PaymentInput) (string, error)
	GetRequest(ctx context.Context, id string) (*request.Request, error)
	Leaderboard(ctx context.Context, kind string, limit int) ([]settings.LeaderboardEntry, error)
	TransactionHistory(ctx context.Context, userID string) ([]settings.Transaction, error)
}

// Locker guards a submission across instances. Acquire fails with
// ErrSubmissionInFlight when another holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// EventPublisher records workflow milestones. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev redisinfra.Event) error
}

var (
	_ AdminAPI       = (*adminapi.Client)(nil)
	_ Locker         = (*redisinfra.Locker)(nil)
	_ EventPublisher = (*redisinfra.EventPublisher)(nil)
)
