package draft

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store defines durable persistence for wizard drafts.
// Owner is the caller identity resolved by the identity layer.
type Store interface {
	// Get returns the draft for the flow, or nil when none exists.
	Get(ctx context.Context, owner string, flow Flow) (*Draft, error)

	// Set applies the patch, creating the draft on first write.
	Set(ctx context.Context, owner string, flow Flow, patch Patch) (*Draft, error)

	// SetFinalAmount records the amount that will be sent to the backend,
	// so retries of the same flow reuse it.
	SetFinalAmount(ctx context.Context, owner string, flow Flow, amount decimal.Decimal) error

	// Clear removes every key of the flow, including the idempotency guard.
	Clear(ctx context.Context, owner string, flow Flow) error

	// HasGuard reports whether the idempotency guard is set.
	HasGuard(ctx context.Context, owner string, guardKey string) (bool, error)

	// MarkSubmitted sets the idempotency guard and the request id in one
	// atomic step. It fails with ErrRequestIDAlreadySet if the draft has one.
	MarkSubmitted(ctx context.Context, owner string, flow Flow, guardKey string, requestID string) error
}
