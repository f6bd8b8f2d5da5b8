package orderbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StatArb/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func quote(ex string, bid, ask float64, at time.Time) *models.Quote {
	return &models.Quote{
		Exchange: ex, Symbol: "BTC/USDT",
		Bid: bid, Ask: ask, BidSize: 1, AskSize: 1,
		Timestamp: at,
	}
}

func newAgg() *Aggregator {
	return New("BTC/USDT", Config{Exchanges: []string{"binance", "kraken"}, StaleAfter: 5 * time.Second})
}

func TestAggregator_StaleUntilAllLegsPresent(t *testing.T) {
	a := newAgg()

	snap, changed := a.Update(quote("binance", 100.4, 100.5, t0))
	require.True(t, changed)
	assert.True(t, snap.Stale)
	assert.False(t, snap.Valid)

	snap, changed = a.Update(quote("kraken", 100.0, 100.1, t0.Add(time.Second)))
	require.True(t, changed)
	assert.False(t, snap.Stale)
	assert.True(t, snap.Valid)
	assert.InDelta(t, 0.5, snap.Spread, 1e-12) // ask(A) - bid(B)
	assert.InDelta(t, (100.45+100.05)/2, snap.MidPrice, 1e-12)
}

func TestAggregator_DuplicateIsNoop(t *testing.T) {
	a := newAgg()
	a.Update(quote("binance", 100.4, 100.5, t0))
	first, _ := a.Update(quote("kraken", 100.0, 100.1, t0))

	again, changed := a.Update(quote("kraken", 100.0, 100.1, t0))
	assert.False(t, changed)
	assert.Equal(t, first, again)
}

func TestAggregator_SilentLegGoesStaleAndCarriesForward(t *testing.T) {
	a := newAgg()
	a.Update(quote("kraken", 100.0, 100.1, t0))
	fresh, _ := a.Update(quote("binance", 100.4, 100.5, t0))
	require.False(t, fresh.Stale)

	// kraken goes quiet while binance keeps moving
	snap, changed := a.Update(quote("binance", 101.4, 101.5, t0.Add(6*time.Second)))
	require.True(t, changed)
	assert.True(t, snap.Stale)
	assert.Equal(t, fresh.Spread, snap.Spread, "last spread carried forward")
	assert.Equal(t, fresh.MidPrice, snap.MidPrice)

	// kraken comes back
	snap, _ = a.Update(quote("kraken", 101.0, 101.1, t0.Add(7*time.Second)))
	assert.False(t, snap.Stale)
	assert.InDelta(t, 0.5, snap.Spread, 1e-12)
}

func TestAggregator_ClearOnDisconnect(t *testing.T) {
	a := newAgg()
	a.Update(quote("kraken", 100.0, 100.1, t0))
	a.Update(quote("binance", 100.4, 100.5, t0))

	snap, changed := a.Clear("kraken", t0)
	require.True(t, changed)
	assert.True(t, snap.Stale)
	_, ok := snap.Leg("kraken")
	assert.False(t, ok)

	_, changed = a.Clear("kraken", t0)
	assert.False(t, changed)
}

func TestAggregator_IgnoresForeignQuotes(t *testing.T) {
	a := newAgg()
	q := quote("coinbase", 1, 2, t0)
	_, changed := a.Update(q)
	assert.False(t, changed)

	q = quote("binance", 1, 2, t0)
	q.Symbol = "ETH/USDT"
	_, changed = a.Update(q)
	assert.False(t, changed)
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	a := newAgg()
	snap, _ := a.Update(quote("binance", 100.4, 100.5, t0))
	snap.Quotes["binance"] = models.Quote{}

	cur := a.Snapshot()
	q, ok := cur.Leg("binance")
	require.True(t, ok)
	assert.Equal(t, 100.5, q.Ask)
}
