package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DraftRepository stores drafts as JSONB rows, one per (owner, flow).
// Guards live in submission_guards so they can be checked without the draft.
type DraftRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
	ttl  time.Duration
}

func NewDraftRepository(pool *pgxpool.Pool, ttl time.Duration) *DraftRepository {
	return &DraftRepository{pool: pool, tx: NewTxManager(pool), ttl: ttl}
}

func (r *DraftRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *DraftRepository) Get(ctx context.Context, owner string, flow draft.Flow) (*draft.Draft, error) {
	var doc []byte
	err := r.db(ctx).QueryRow(ctx,
		`SELECT document FROM drafts WHERE owner = $1 AND flow = $2 AND expires_at > NOW()`,
		owner, string(flow),
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return decodeDraft(doc)
}

func (r *DraftRepository) Set(ctx context.Context, owner string, flow draft.Flow, patch draft.Patch) (*draft.Draft, error) {
	var out *draft.Draft
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		d, err := r.lockOrCreate(ctx, owner, flow)
		if err != nil {
			return err
		}
		patch.Apply(d)
		if err := r.save(ctx, owner, d); err != nil {
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

func (r *DraftRepository) SetFinalAmount(ctx context.Context, owner string, flow draft.Flow, amount decimal.Decimal) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		d, err := r.lock(ctx, owner, flow)
		if err != nil {
			return err
		}
		if d == nil {
			return domainErrors.ErrDraftNotFound
		}
		d.FinalAmount = &amount
		return r.save(ctx, owner, d)
	})
}

func (r *DraftRepository) Clear(ctx context.Context, owner string, flow draft.Flow) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var guardKey *string
		err := r.db(ctx).QueryRow(ctx,
			`DELETE FROM drafts WHERE owner = $1 AND flow = $2 RETURNING guard_key`,
			owner, string(flow),
		).Scan(&guardKey)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete draft: %w", err)
		}
		if guardKey == nil || *guardKey == "" {
			return nil
		}
		if _, err := r.db(ctx).Exec(ctx,
			`DELETE FROM submission_guards WHERE owner = $1 AND guard_key = $2`,
			owner, *guardKey,
		); err != nil {
			return fmt.Errorf("delete guard: %w", err)
		}
		return nil
	})
}

func (r *DraftRepository) HasGuard(ctx context.Context, owner string, key string) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submission_guards WHERE owner = $1 AND guard_key = $2 AND expires_at > NOW())`,
		owner, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check guard: %w", err)
	}
	return exists, nil
}

func (r *DraftRepository) MarkSubmitted(ctx context.Context, owner string, flow draft.Flow, guardKey string, requestID string) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		d, err := r.lock(ctx, owner, flow)
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
		if err := r.save(ctx, owner, d); err != nil {
			return err
		}

		if _, err := r.db(ctx).Exec(ctx,
			`INSERT INTO submission_guards (owner, guard_key, request_id, expires_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (owner, guard_key) DO UPDATE
			 SET request_id = EXCLUDED.request_id, expires_at = EXCLUDED.expires_at`,
			owner, guardKey, requestID, time.Now().Add(r.ttl),
		); err != nil {
			return fmt.Errorf("insert guard: %w", err)
		}
		return nil
	})
}

// DeleteExpired removes expired drafts and guards and reports how many rows went.
func (r *DraftRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM drafts WHERE expires_at < NOW()`,
		`DELETE FROM submission_guards WHERE expires_at < NOW()`,
	} {
		tag, err := r.db(ctx).Exec(ctx, q)
		if err != nil {
			return total, fmt.Errorf("delete expired: %w", err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// lock reads the row FOR UPDATE. Expired rows read as missing.
func (r *DraftRepository) lock(ctx context.Context, owner string, flow draft.Flow) (*draft.Draft, error) {
	var (
		doc     []byte
		expired bool
	)
	err := r.db(ctx).QueryRow(ctx,
		`SELECT document, expires_at <= NOW() FROM drafts WHERE owner = $1 AND flow = $2 FOR UPDATE`,
		owner, string(flow),
	).Scan(&doc, &expired)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock draft: %w", err)
	}
	if expired {
		return nil, nil
	}
	return decodeDraft(doc)
}

// lockOrCreate inserts a fresh draft when none is live, then locks the row.
// The insert uses DO NOTHING so concurrent first writes converge on one flow id.
func (r *DraftRepository) lockOrCreate(ctx context.Context, owner string, flow draft.Flow) (*draft.Draft, error) {
	fresh := draft.New(flow)
	doc, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}

	if _, err := r.db(ctx).Exec(ctx,
		`DELETE FROM drafts WHERE owner = $1 AND flow = $2 AND expires_at <= NOW()`,
		owner, string(flow),
	); err != nil {
		return nil, fmt.Errorf("drop expired draft: %w", err)
	}
	if _, err := r.db(ctx).Exec(ctx,
		`INSERT INTO drafts (owner, flow, flow_id, document, created_at, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $5, $6)
		 ON CONFLICT (owner, flow) DO NOTHING`,
		owner, string(flow), fresh.FlowID, doc, fresh.CreatedAt, time.Now().Add(r.ttl),
	); err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}

	d, err := r.lock(ctx, owner, flow)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domainErrors.ErrDraftNotFound
	}
	return d, nil
}

func (r *DraftRepository) save(ctx context.Context, owner string, d *draft.Draft) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`UPDATE drafts
		 SET document = $3, request_id = NULLIF($4, ''), guard_key = NULLIF($5, ''),
		     updated_at = $6, expires_at = $7
		 WHERE owner = $1 AND flow = $2`,
		owner, string(d.Flow), doc, d.RequestID, d.GuardKey, d.UpdatedAt, time.Now().Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	return nil
}

func decodeDraft(doc []byte) (*draft.Draft, error) {
	var d draft.Draft
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}
