package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"game-guard/internal/util"
)

// RedisStore is the production KeyValueStore.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis from a redis:// or rediss:// URL and
// verifies connectivity before returning.
func NewRedisStore(url string, poolSize int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if poolSize > 0 {
		opts.PoolSize = poolSize
		opts.MinIdleConns = poolSize / 2
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	util.Info("Redis store initialized",
		zap.String("url", url),
		zap.Int("pool_size", opts.PoolSize))

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client, mainly for tests.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity and data integrity.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	testKey := "healthcheck"
	testValue := []byte(fmt.Sprintf("%d", time.Now().Unix()))
	if err := s.Set(ctx, testKey, testValue, 10*time.Second); err != nil {
		return fmt.Errorf("redis set operation failed: %w", err)
	}
	val, err := s.Get(ctx, testKey)
	if err != nil {
		return fmt.Errorf("redis get operation failed: %w", err)
	}
	if string(val) != string(testValue) {
		return fmt.Errorf("redis data integrity failed")
	}
	_ = s.Delete(ctx, testKey)
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		util.Error("failed to close Redis store", zap.Error(err))
		return err
	}
	util.Info("Redis store closed")
	return nil
}
