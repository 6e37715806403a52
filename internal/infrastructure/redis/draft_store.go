package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// maxWatchRetries bounds optimistic retries when two writers race on a draft.
const maxWatchRetries = 16

var errConcurrentUpdate = errors.New("draft changed concurrently, giving up")

// DraftStore keeps one JSON document per (owner, flow) plus one key per
// idempotency guard. Read-modify-write goes through WATCH/MULTI.
type DraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDraftStore(client *redis.Client, ttl time.Duration) *DraftStore {
	return &DraftStore{client: client, ttl: ttl}
}

func (s *DraftStore) draftKey(owner string, flow draft.Flow) string {
	return draftPrefix + owner + ":" + string(flow)
}

func (s *DraftStore) guardKey(owner, key string) string {
	return guardPrefix + owner + ":" + key
}

func (s *DraftStore) Get(ctx context.Context, owner string, flow draft.Flow) (*draft.Draft, error) {
	return load(ctx, s.client, s.draftKey(owner, flow))
}

func (s *DraftStore) Set(ctx context.Context, owner string, flow draft.Flow, patch draft.Patch) (*draft.Draft, error) {
	key := s.draftKey(owner, flow)
	var out *draft.Draft

	err := s.update(ctx, key, func(tx *redis.Tx) error {
		d, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if d == nil {
			d = draft.New(flow)
		}
		patch.Apply(d)

		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal draft: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		}); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DraftStore) SetFinalAmount(ctx context.Context, owner string, flow draft.Flow, amount decimal.Decimal) error {
	key := s.draftKey(owner, flow)
	return s.update(ctx, key, func(tx *redis.Tx) error {
		d, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if d == nil {
			return domainErrors.ErrDraftNotFound
		}
		d.FinalAmount = &amount

		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal draft: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	})
}

func (s *DraftStore) Clear(ctx context.Context, owner string, flow draft.Flow) error {
	key := s.draftKey(owner, flow)
	return s.update(ctx, key, func(tx *redis.Tx) error {
		d, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if d != nil && d.GuardKey != "" {
				pipe.Del(ctx, s.guardKey(owner, d.GuardKey))
			}
			return nil
		})
		return err
	})
}

func (s *DraftStore) HasGuard(ctx context.Context, owner string, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.guardKey(owner, key)).Result()
	if err != nil {
		return false, fmt.Errorf("check guard: %w", err)
	}
	return n > 0, nil
}

func (s *DraftStore) MarkSubmitted(ctx context.Context, owner string, flow draft.Flow, guardKey string, requestID string) error {
	key := s.draftKey(owner, flow)
	return s.update(ctx, key, func(tx *redis.Tx) error {
		d, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if d == nil {
			return domainErrors.ErrDraftNotFound
		}
		if d.RequestID != "" {
			return domainErrors.ErrRequestIDAlreadySet
		}
		d.RequestID = requestID
		d.GuardKey = guardKey
		d.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal draft: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			pipe.Set(ctx, s.guardKey(owner, guardKey), requestID, s.ttl)
			return nil
		})
		return err
	})
}

// update runs fn under WATCH on key and retries when another writer wins.
func (s *DraftStore) update(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errConcurrentUpdate
}

func load(ctx context.Context, c redis.Cmdable, key string) (*draft.Draft, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}

	var d draft.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", key, err)
	}
	return &d, nil
}
