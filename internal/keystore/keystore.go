// Package keystore implements the external key-lookup and key-persistence
// contracts the decryptor and higher layers depend on, plus a Redis-backed
// reference implementation. Redis is a natural fit: resource keys are
// small, addressed by a flat 16-byte id, and have no query requirements
// beyond get-by-id and idempotent first-write-wins put.
package keystore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kenchrcum/streamseal/internal/pipeline"
	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// Lookup resolves a resource's key given its identifier, satisfying
// pipeline.KeyLookup.
type Lookup interface {
	Lookup(ctx context.Context, id resource.ID) (resource.Key, error)
}

// Saver persists a (ResourceId, ResourceKey) pair. Save is idempotent on
// the pair: a second Save of the same pair is a no-op, and a conflicting
// key for an id that already has one is rejected rather than silently
// overwritten.
type Saver interface {
	Save(ctx context.Context, id resource.ID, key resource.Key) error
}

// Store combines Lookup and Saver, the shape most callers want.
type Store interface {
	Lookup
	Saver
}

const keyPrefix = "streamseal:key:"

// RedisStore is the reference Store implementation, backed by a single
// Redis key per resource. It never expires keys on its own; callers that
// want TTL-based expiry configure it at the Redis level.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured *redis.Client. The caller
// owns the client's lifecycle (including Close).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)
var _ pipeline.KeyLookup = (*RedisStore)(nil)

// Lookup fetches the resource key stored under id. A missing key is
// reported as KindKeyNotFound so callers can distinguish "not found" from
// a transport failure.
func (s *RedisStore) Lookup(ctx context.Context, id resource.ID) (resource.Key, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id.String()).Bytes()
	if err == redis.Nil {
		return resource.Key{}, streamerr.New(streamerr.KindKeyNotFound, fmt.Sprintf("no key for resource %s", id))
	}
	if err != nil {
		return resource.Key{}, streamerr.Wrap(streamerr.KindInvalidArgument, "redis lookup failed", err)
	}
	key, err := resource.ParseKey(raw)
	if err != nil {
		return resource.Key{}, streamerr.Wrap(streamerr.KindInvalidArgument, "stored key is malformed", err)
	}
	return key, nil
}

// Save stores key under id, first-writer-wins: if a different key is
// already stored for id, Save fails rather than overwriting it.
func (s *RedisStore) Save(ctx context.Context, id resource.ID, key resource.Key) error {
	ok, err := s.client.SetNX(ctx, keyPrefix+id.String(), key.Bytes(), 0).Result()
	if err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, "redis save failed", err)
	}
	if ok {
		return nil
	}

	existing, err := s.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if existing != key {
		return streamerr.New(streamerr.KindInvalidArgument, "resource id already bound to a different key")
	}
	return nil
}

// HealthCheck verifies the Redis connection is reachable, in the same
// spirit as the KMS HealthCheck contract this module's KMIP adapter
// exposes.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, "redis health check failed", err)
	}
	return nil
}
