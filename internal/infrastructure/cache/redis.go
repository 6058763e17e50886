package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const (
	watchKeySpace   = "watch:"
	sessionKeySpace = "close-session:"
	claimKeySpace   = "close-claim:"
	// absentWatch is stored for known-absent watch details
	absentWatch = "null"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisWatchDetailCache shares watch details across instances
type RedisWatchDetailCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisWatchDetailCacheWithClient creates a cache on an existing client
func NewRedisWatchDetailCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisWatchDetailCache {
	return &RedisWatchDetailCache{client: client, keyPrefix: keyPrefix + watchKeySpace, ttl: ttl}
}

func (c *RedisWatchDetailCache) Get(ctx context.Context, picint string) (*sales.WatchDetail, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+picint).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read watch detail: %w", err)
	}
	if raw == absentWatch {
		return nil, true, nil
	}
	var d sales.WatchDetail
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, false, fmt.Errorf("failed to decode watch detail: %w", err)
	}
	return &d, true, nil
}

func (c *RedisWatchDetailCache) Set(ctx context.Context, picint string, detail *sales.WatchDetail) error {
	value := absentWatch
	if detail != nil {
		buf, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to encode watch detail: %w", err)
		}
		value = string(buf)
	}
	if err := c.client.Set(ctx, c.keyPrefix+picint, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store watch detail: %w", err)
	}
	return nil
}

// Invalidate deletes every watch key under the prefix
func (c *RedisWatchDetailCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to invalidate watch details: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan watch details: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to invalidate watch details: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the client belongs to the Factory
func (c *RedisWatchDetailCache) Close() error {
	return nil
}

var _ WatchDetailCache = (*RedisWatchDetailCache)(nil)

// RedisSessionStore keeps close sessions in Redis so any instance can resume them
type RedisSessionStore struct {
	client      *redis.Client
	keyPrefix   string
	claimPrefix string
	ttl         time.Duration
}

// NewRedisSessionStoreWithClient creates a session store on an existing client
func NewRedisSessionStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		client:      client,
		keyPrefix:   keyPrefix + sessionKeySpace,
		claimPrefix: keyPrefix + claimKeySpace,
		ttl:         ttl,
	}
}

func (s *RedisSessionStore) Save(ctx context.Context, snap sales.CloseSessionSnapshot) error {
	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode close session: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+snap.ID, buf, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store close session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*sales.CloseSessionSnapshot, error) {
	buf, err := s.client.Get(ctx, s.keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read close session: %w", err)
	}
	var snap sales.CloseSessionSnapshot
	if err := json.Unmarshal(buf, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode close session: %w", err)
	}
	return &snap, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete close session: %w", err)
	}
	return nil
}

// Claim uses SETNX so only one instance can submit a session at a time
func (s *RedisSessionStore) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.claimKey(id), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim close session: %w", err)
	}
	return ok, nil
}

func (s *RedisSessionStore) Release(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.claimKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to release close session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) claimKey(id string) string {
	return s.claimPrefix + id
}

// Close is a no-op; the client belongs to the Factory
func (s *RedisSessionStore) Close() error {
	return nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
