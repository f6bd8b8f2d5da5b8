package repository

import (
	"context"
	"time"

	"StatArb/internal/domain/models"
)

// FeedAdapter is one exchange connection emitting normalized quotes.
type FeedAdapter interface {
	Exchange() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher emits engine events to the event bus.
type Publisher interface {
	PublishTrade(ctx context.Context, t *models.Trade) error
	PublishTrades(ctx context.Context, trades []*models.Trade) error
	PublishSignal(ctx context.Context, s *models.Signal) error
	Close() error
}

// TradeStore is the full-history store behind the bounded in-memory ledger.
type TradeStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, t *models.Trade) error
	StoreBatch(ctx context.Context, trades []*models.Trade) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Trade, error)
	Health(ctx context.Context) error
	Close() error
}

// MarketDataCache mirrors the latest per-symbol views for out-of-process readers.
type MarketDataCache interface {
	PutAll(ctx context.Context, views map[string]*models.MarketData) error
	Get(ctx context.Context, symbol string) (*models.MarketData, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordSignal(s *models.Signal)
	RecordStale(symbol string)
	RecordRejection(symbol, reason string)
	RecordTrade(t *models.Trade)
	RecordPosition(symbol string, open bool)
}
