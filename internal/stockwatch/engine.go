// Package stockwatch derives low-stock alerts for the register UI: which
// active products sit at or below the configured threshold, how fast they
// have been selling, and a suggested reorder quantity.
package stockwatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/domain"
)

type Engine struct {
	cache    cache.LowStockCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.LowStockCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopLowStockCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Report builds the alert list from a catalog snapshot and the units sold in
// the trailing window. Results are cached briefly; the key covers threshold
// and catalog size so settings changes take effect immediately.
func (e *Engine) Report(
	ctx context.Context,
	products []domain.Product,
	soldLast7Days map[string]int,
	threshold int,
) domain.LowStockResponse {
	cacheKey := buildCacheKey(products, threshold)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	resp := domain.LowStockResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Alerts:      []domain.LowStockAlert{},
	}
	for _, p := range products {
		if !p.Active || p.StockQty > threshold {
			continue
		}
		sold := soldLast7Days[p.ID]
		resp.Alerts = append(resp.Alerts, domain.LowStockAlert{
			ProductID:      p.ID,
			SKU:            p.SKU,
			Name:           p.Name,
			StockQty:       p.StockQty,
			Threshold:      threshold,
			SoldLast7Days:  sold,
			SuggestedOrder: suggestedOrder(p.StockQty, sold, threshold),
		})
	}

	sort.Slice(resp.Alerts, func(i, j int) bool {
		if resp.Alerts[i].StockQty == resp.Alerts[j].StockQty {
			return resp.Alerts[i].SKU < resp.Alerts[j].SKU
		}
		return resp.Alerts[i].StockQty < resp.Alerts[j].StockQty
	})

	_ = e.cache.Set(ctx, cacheKey, &resp, e.cacheTTL)
	return resp
}

// suggestedOrder covers roughly two weeks at the recent sales rate, and at
// minimum restores stock above the threshold.
func suggestedOrder(stock, soldLast7Days, threshold int) int {
	byVelocity := soldLast7Days*2 - stock
	floor := threshold - stock + 1
	if byVelocity > floor {
		return byVelocity
	}
	if floor > 0 {
		return floor
	}
	return 0
}

func buildCacheKey(products []domain.Product, threshold int) string {
	newest := time.Time{}
	for _, p := range products {
		if p.UpdatedAt.After(newest) {
			newest = p.UpdatedAt
		}
	}
	return fmt.Sprintf("pos:lowstock:%d:%d:%d", threshold, len(products), newest.Unix())
}
