package workflow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only when TEST_REDIS_URL points at a disposable Redis.
func TestRedisRunStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisRunStore(client, time.Minute)
	ctx := context.Background()
	key := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, redisRunKeyPrefix+key) })

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, err := store.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = store.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, store.Put(ctx, key, "run-1"))
	require.NoError(t, store.Put(ctx, key, "run-2"))
	require.NoError(t, store.Release(ctx, key))

	runID, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)
}
