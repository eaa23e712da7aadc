package dedup

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

func TestRedisClaimer(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	claimer := NewRedisClaimer(client, "test-dedup", time.Minute)
	key := uuid.NewString()

	ok, err := claimer.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = claimer.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, claimer.Release(ctx, key))
	ok, err = claimer.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	_ = claimer.Release(ctx, key)
}
