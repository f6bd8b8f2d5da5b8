package repository

import (
	"context"
	"fmt"
	"time"

	"StatArb/internal/domain/models"
	domrepo "StatArb/internal/domain/repository"
	"StatArb/pkg/cache"
)

const marketNamespace = "market"

// MarketCache stores the latest per-symbol views under market:{symbol}.
type MarketCache struct {
	svc cache.Service
	ttl time.Duration
}

func NewMarketCache(svc cache.Service, ttl time.Duration) *MarketCache {
	return &MarketCache{svc: svc, ttl: ttl}
}

func (c *MarketCache) PutAll(ctx context.Context, views map[string]*models.MarketData) error {
	if len(views) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(views))
	for sym, v := range views {
		if v == nil {
			continue
		}
		values[cache.Key(marketNamespace, sym)] = v
	}
	if err := c.svc.MSet(ctx, values, c.ttl); err != nil {
		return fmt.Errorf("cache market views: %w", err)
	}
	return nil
}

func (c *MarketCache) Get(ctx context.Context, symbol string) (*models.MarketData, error) {
	var md models.MarketData
	if err := c.svc.Get(ctx, cache.Key(marketNamespace, symbol), &md); err != nil {
		return nil, err
	}
	return &md, nil
}

var _ domrepo.MarketDataCache = (*MarketCache)(nil)
