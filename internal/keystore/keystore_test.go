package keystore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreSaveThenLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, key, err := resource.New()
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, id, key))

	got, err := store.Lookup(ctx, id)
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestRedisStoreLookupMissingIsKeyNotFound(t *testing.T) {
	store := newTestStore(t)
	id, _, err := resource.New()
	require.NoError(t, err)

	_, err = store.Lookup(context.Background(), id)
	require.True(t, streamerr.IsKind(err, streamerr.KindKeyNotFound))
}

func TestRedisStoreSaveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, key, err := resource.New()
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, id, key))
	require.NoError(t, store.Save(ctx, id, key))
}

func TestRedisStoreSaveRejectsConflictingKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, key, err := resource.New()
	require.NoError(t, err)
	_, otherKey, err := resource.New()
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, id, key))
	err = store.Save(ctx, id, otherKey)
	require.Error(t, err)
}

func TestRedisStoreHealthCheck(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))
}
