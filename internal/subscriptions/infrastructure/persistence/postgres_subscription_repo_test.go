package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only when TEST_DATABASE_URL points at a disposable PostgreSQL.
func setupPostgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	_, err := migrations.RunPostgresMigrations(url)
	require.NoError(t, err)

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepository_RoundTripAndFilters(t *testing.T) {
	pool := setupPostgresPool(t)
	repo := NewPostgresSubscriptionRepository(pool)
	ctx := context.Background()

	// A fresh owner keeps the assertions independent of rows left by earlier runs.
	owner := uuid.NewString()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	in3 := newSub(t, owner, now.AddDate(0, 0, 3))
	in1 := newSub(t, owner, now.AddDate(0, 0, 1))
	in10 := newSub(t, owner, now.AddDate(0, 0, 10))
	cancelled := newSub(t, owner, now.AddDate(0, 0, 2))
	cancelled.Cancel()

	for _, s := range []*subscription.Subscription{in3, in1, in10, cancelled} {
		require.NoError(t, repo.Create(ctx, s))
		t.Cleanup(func() { _ = repo.Delete(context.Background(), s.ID()) })
	}

	found, err := repo.FindByID(ctx, in3.ID())
	require.NoError(t, err)
	assert.Equal(t, owner, found.UserID())
	assert.Equal(t, 15.49, found.Price())
	assert.True(t, in3.NextBillingDate().Equal(found.NextBillingDate()))

	from, to := now, now.AddDate(0, 0, 7)
	window, err := repo.Find(ctx, subscription.Filter{
		UserID:          owner,
		Status:          subscription.StatusActive,
		NextBillingFrom: &from,
		NextBillingTo:   &to,
		SortBy:          subscription.SortByNextBillingDate,
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, in1.ID(), window[0].ID())
	assert.Equal(t, in3.ID(), window[1].ID())

	in3.Cancel()
	require.NoError(t, repo.Update(ctx, in3))
	found, err = repo.FindByID(ctx, in3.ID())
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, found.Status())

	require.NoError(t, repo.Delete(ctx, in10.ID()))
	_, err = repo.FindByID(ctx, in10.ID())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, in10.ID()), subscription.ErrSubscriptionNotFound)
}

func TestPostgresRepository_JoinsUnitOfWork(t *testing.T) {
	pool := setupPostgresPool(t)
	repo := NewPostgresSubscriptionRepository(pool)
	uow := sharedPersistence.NewPostgresUnitOfWork(pool)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	s := newSub(t, uuid.NewString(), time.Now().UTC().AddDate(0, 0, 5))
	require.NoError(t, repo.Create(txCtx, s))

	found, err := repo.FindByID(txCtx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.ID(), found.ID())

	require.NoError(t, uow.Rollback(txCtx))

	_, err = repo.FindByID(context.Background(), s.ID())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}
