package keystore

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/kenchrcum/streamseal/internal/resource"
)

// startRedis runs a throwaway Redis container, covering the store against
// a real server in addition to the miniredis-backed unit tests.
func startRedis(t *testing.T) *RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreAgainstRealServer(t *testing.T) {
	store := startRedis(t)
	ctx := context.Background()

	id, key, err := resource.New()
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, id, key))
	require.NoError(t, store.Save(ctx, id, key))

	got, err := store.Lookup(ctx, id)
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, otherKey, err := resource.New()
	require.NoError(t, err)
	require.Error(t, store.Save(ctx, id, otherKey))

	require.NoError(t, store.HealthCheck(ctx))
}
