package service

import (
	"context"
	"time"

	"StatArb/internal/domain/models"
)

// QuoteSink accepts normalized quotes for the engine. Implementations route
// each quote to the task that owns its symbol.
type QuoteSink interface {
	Dispatch(ctx context.Context, q *models.Quote) error
	// Disconnect drops every stored quote of exchange so affected symbols go
	// stale immediately.
	Disconnect(exchange string)
}

// MarketReader is the read side of the engine. Reads never recompute.
type MarketReader interface {
	Symbols() []string
	MarketData(symbol string, now time.Time) (*models.MarketData, error)
	AllMarketData(now time.Time) map[string]*models.MarketData
	OpenPositions() int
}

// LedgerReader exposes consistent point-in-time copies of the ledger.
type LedgerReader interface {
	Status() models.SimulationStatus
	Recent(limit int) []models.Trade
	Leaderboard() []models.LeaderboardEntry
}

// Notifier delivers trade notifications to operators.
type Notifier interface {
	NotifyTrade(ctx context.Context, t *models.Trade) error
}
