package flowstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/KickTools/ape-server/internal/domain"
)

// RedisPendingStore is a PendingStore backed by Redis, for multi-instance
// deployments where the callback may land on a different process than the
// one that issued the redirect. TTL handling and single-use consumption are
// delegated to Redis (SET EX + GETDEL).
type RedisPendingStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisPendingStore(rdb *goredis.Client, ttl time.Duration) *RedisPendingStore {
	return &RedisPendingStore{rdb: rdb, ttl: ttl}
}

func (s *RedisPendingStore) Put(ctx context.Context, state string, entry PendingEntry) error {
	entry.CreatedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal pending entry: %w", err)
	}
	return s.rdb.Set(ctx, pendingKey(state), data, s.ttl).Err()
}

func (s *RedisPendingStore) Consume(ctx context.Context, state string) (*PendingEntry, error) {
	data, err := s.rdb.GetDel(ctx, pendingKey(state)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending entry: %w", err)
	}

	var entry PendingEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending entry: %w", err)
	}
	return &entry, nil
}

// RedisVerificationCache is a VerificationCache backed by Redis.
type RedisVerificationCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisVerificationCache(rdb *goredis.Client, ttl time.Duration) *RedisVerificationCache {
	return &RedisVerificationCache{rdb: rdb, ttl: ttl}
}

func (c *RedisVerificationCache) Stage(ctx context.Context, id uuid.UUID, payload VerificationPayload) error {
	payload.StagedAt = time.Now()
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal verification payload: %w", err)
	}
	return c.rdb.Set(ctx, verificationKey(id), data, c.ttl).Err()
}

func (c *RedisVerificationCache) Get(ctx context.Context, id uuid.UUID) (*VerificationPayload, error) {
	data, err := c.rdb.Get(ctx, verificationKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrVerificationExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read verification payload: %w", err)
	}

	var payload VerificationPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verification payload: %w", err)
	}
	return &payload, nil
}

func (c *RedisVerificationCache) Clear(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, verificationKey(id)).Err()
}

func pendingKey(state string) string {
	return "pending_auth:" + state
}

func verificationKey(id uuid.UUID) string {
	return "verification:" + id.String()
}
