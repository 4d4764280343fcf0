package outbox_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	return db
}

func TestSQLiteRepository_SaveBatchAndGetUnpublished(t *testing.T) {
	db := setupSQLite(t)
	repo := outbox.NewSQLiteRepository(db)
	ctx := context.Background()

	msgs := saveEvents(t, repo, "subscription.created", "subscription.reminder.requested")
	assert.NotZero(t, msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "subscription.created", pending[0].RoutingKey)
	assert.Equal(t, msgs[0].EventID, pending[0].EventID)
	assert.Equal(t, msgs[0].AggregateID, pending[0].AggregateID)
	assert.JSONEq(t, string(msgs[0].Payload), string(pending[0].Payload))
	assert.NotEmpty(t, pending[0].Metadata)

	limited, err := repo.GetUnpublished(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRepository_MarkTransitions(t *testing.T) {
	db := setupSQLite(t)
	repo := outbox.NewSQLiteRepository(db)
	ctx := context.Background()

	msgs := saveEvents(t, repo, "subscription.created", "subscription.reminder.requested", "subscription.deleted")

	require.NoError(t, repo.MarkPublished(ctx, msgs[0].ID))
	require.NoError(t, repo.MarkFailed(ctx, msgs[1].ID, "timeout", time.Now().Add(time.Hour)))
	require.NoError(t, repo.MarkDead(ctx, msgs[2].ID, "rejected"))

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.MarkFailed(ctx, msgs[1].ID, "timeout again", time.Now().Add(-time.Minute)))

	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "timeout again", *pending[0].LastError)
	assert.NotNil(t, pending[0].NextRetryAt)
}

func TestSQLiteRepository_DeferKeepsRetryCount(t *testing.T) {
	db := setupSQLite(t)
	repo := outbox.NewSQLiteRepository(db)
	ctx := context.Background()

	msgs := saveEvents(t, repo, "subscription.reminder.requested")

	require.NoError(t, repo.Defer(ctx, msgs[0].ID, "trigger off", time.Now().Add(time.Hour)))
	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.Defer(ctx, msgs[0].ID, "trigger off", time.Now().Add(-time.Minute)))
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Zero(t, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "trigger off", *pending[0].LastError)
	assert.Nil(t, pending[0].DeadLetteredAt)
}

func TestSQLiteRepository_DeleteOld(t *testing.T) {
	db := setupSQLite(t)
	repo := outbox.NewSQLiteRepository(db)
	ctx := context.Background()

	msgs := saveEvents(t, repo, "subscription.created", "subscription.cancelled")
	require.NoError(t, repo.MarkPublished(ctx, msgs[0].ID))

	_, err := db.Exec(`UPDATE outbox SET published_at = ? WHERE id = ?`,
		time.Now().AddDate(0, 0, -30).UTC().Format(time.RFC3339), msgs[0].ID)
	require.NoError(t, err)

	deleted, err := repo.DeleteOld(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, msgs[1].ID, pending[0].ID)
}

func TestSQLiteRepository_SaveBatchJoinsTransaction(t *testing.T) {
	db := setupSQLite(t)
	repo := outbox.NewSQLiteRepository(db)
	uow := sharedPersistence.NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	saveEventsCtx(t, txCtx, repo, "subscription.created")
	require.NoError(t, uow.Rollback(txCtx))

	pending, err := repo.GetUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
