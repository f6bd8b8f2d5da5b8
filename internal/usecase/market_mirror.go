package usecase

import (
	"context"
	"time"

	domrepo "StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
	"StatArb/pkg/logger"
)

// MarketMirror periodically copies the engine's published views into a
// shared cache so other processes can read them.
type MarketMirror struct {
	reader   service.MarketReader
	cache    domrepo.MarketDataCache
	interval time.Duration
	metrics  domrepo.Metrics
	logger   *logger.Logger
}

func NewMarketMirror(reader service.MarketReader, cache domrepo.MarketDataCache, interval time.Duration, metrics domrepo.Metrics, log *logger.Logger) *MarketMirror {
	if interval <= 0 {
		interval = time.Second
	}
	return &MarketMirror{reader: reader, cache: cache, interval: interval, metrics: metrics, logger: log}
}

func (m *MarketMirror) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.Sync(ctx, now)
		}
	}
}

// Sync writes one round of views.
func (m *MarketMirror) Sync(ctx context.Context, now time.Time) {
	start := time.Now()
	if err := m.cache.PutAll(ctx, m.reader.AllMarketData(now)); err != nil {
		m.metrics.RecordError("mirror")
		m.logger.Warn("market mirror failed", logger.Error(err))
		return
	}
	m.metrics.RecordLatency("mirror", time.Since(start).Seconds())
}
