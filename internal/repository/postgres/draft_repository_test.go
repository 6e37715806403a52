package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	"github.com/cassiomorais/cashdesk/internal/testutil/storetest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// These tests need a migrated database; set CASHDESK_TEST_DATABASE_URL to run them.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("CASHDESK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CASHDESK_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)
	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE drafts, submission_guards`)
	require.NoError(t, err)
}

func TestDraftRepository(t *testing.T) {
	pool := testPool(t)
	storetest.RunDraftStoreSuite(t, func(t *testing.T) draft.Store {
		truncate(t, pool)
		return NewDraftRepository(pool, time.Hour)
	})
}

func TestDraftRepository_DeleteExpired(t *testing.T) {
	pool := testPool(t)
	truncate(t, pool)
	ctx := context.Background()

	repo := NewDraftRepository(pool, time.Hour)
	_, err := repo.Set(ctx, "u1", draft.FlowDeposit, draft.Patch{Bank: draft.Ptr("mbank")})
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE drafts SET expires_at = NOW() - INTERVAL '1 minute'`)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "u1", draft.FlowDeposit)
	require.NoError(t, err)
	require.Nil(t, got)

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
