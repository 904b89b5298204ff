package cache

import (
	"context"
	"time"

	"tillpoint/backend/internal/domain"
)

type LowStockCache interface {
	Get(ctx context.Context, key string) (*domain.LowStockResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.LowStockResponse, ttl time.Duration) error
}

type NoopLowStockCache struct{}

func (NoopLowStockCache) Get(_ context.Context, _ string) (*domain.LowStockResponse, bool, error) {
	return nil, false, nil
}

func (NoopLowStockCache) Set(_ context.Context, _ string, _ *domain.LowStockResponse, _ time.Duration) error {
	return nil
}
