// Package worker holds the background loops of cmd/worker.
package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/rs/zerolog"
)

// Consumer is the consumer-group side of the event stream.
type Consumer interface {
	Read(ctx context.Context) ([]infraRedis.Message, error)
	Ack(ctx context.Context, ids ...string) error
}

// HistoryInvalidator drops a user's cached transaction history.
type HistoryInvalidator interface {
	InvalidateHistory(ctx context.Context, userID string) error
}

// Expirer removes expired drafts and submission guards.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

const readBackoff = time.Second

// RunEvents consumes workflow events until ctx is done. A terminal outcome
// changes the user's transaction history, so the shared cache entry is
// dropped. Messages are acked even when handling fails; the cache entry
// expires on its own.
func RunEvents(ctx context.Context, logger zerolog.Logger, consumer Consumer, history HistoryInvalidator, metrics *observability.Metrics) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("Failed to read from event stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readBackoff):
			}
			continue
		}

		ids := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			result := handle(ctx, history, msg)
			if result == "error" {
				logger.Warn().Str("event", msg.Type).Str("request_id", msg.RequestID).Msg("Failed to invalidate history")
			}
			if metrics != nil {
				metrics.EventsConsumedTotal.WithLabelValues(msg.Type, result).Inc()
			}
			ids = append(ids, msg.ID)
		}
		if err := consumer.Ack(ctx, ids...); err != nil {
			logger.Error().Err(err).Int("count", len(ids)).Msg("Failed to ack events")
		}
	}
}

func handle(ctx context.Context, history HistoryInvalidator, msg infraRedis.Message) string {
	switch msg.Type {
	case infraRedis.EventSucceeded, infraRedis.EventFailed:
	default:
		return "skipped"
	}
	if msg.Owner == "" {
		return "skipped"
	}
	if err := history.InvalidateHistory(ctx, msg.Owner); err != nil {
		return "error"
	}
	return "ok"
}

// RunSweeper deletes expired rows every interval until ctx is done.
func RunSweeper(ctx context.Context, logger zerolog.Logger, store Expirer, interval time.Duration, metrics *observability.Metrics) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := store.DeleteExpired(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("Expiry sweep failed")
			continue
		}
		if n > 0 {
			logger.Info().Int64("rows", n).Msg("Expired drafts removed")
			if metrics != nil {
				metrics.DraftsExpiredTotal.Add(float64(n))
			}
		}
	}
}
