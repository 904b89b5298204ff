package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tillpoint/backend/internal/domain"
)

type RedisLowStockCache struct {
	client *redis.Client
}

func NewRedisLowStockCache(addr string, password string, db int) *RedisLowStockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisLowStockCache{client: client}
}

func (c *RedisLowStockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisLowStockCache) Close() error {
	return c.client.Close()
}

func (c *RedisLowStockCache) Get(ctx context.Context, key string) (*domain.LowStockResponse, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp domain.LowStockResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisLowStockCache) Set(ctx context.Context, key string, value *domain.LowStockResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
