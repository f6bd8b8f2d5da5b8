package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"StatArb/internal/domain/models"
	"StatArb/pkg/util"
)

const DefaultCapacity = 1000

type symbolStats struct {
	pnl    float64
	trades int
	wins   int
}

// Ledger is the authoritative performance record. Exactly one writer may call
// Record at a time; a second concurrent writer gets ErrLedgerWriteConflict.
// Readers receive copies and never observe a half-applied trade.
type Ledger struct {
	writing atomic.Bool
	mu      sync.RWMutex

	ring []models.Trade
	next int
	size int

	totalPnL float64
	trades   int
	wins     int
	fees     float64
	sumSq    float64
	peak     float64
	drawdown float64
	day      time.Time
	dailyPnL float64
	symbols  map[string]*symbolStats
	order    []string
	exVolume map[string]float64
}

// New creates a ledger tracking symbols. Trades for other symbols are still
// recorded and join the leaderboard when first seen.
func New(capacity int, symbols []string) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Ledger{
		ring:     make([]models.Trade, capacity),
		symbols:  make(map[string]*symbolStats, len(symbols)),
		exVolume: make(map[string]float64),
	}
	for _, s := range symbols {
		l.track(s)
	}
	return l
}

func (l *Ledger) track(symbol string) *symbolStats {
	st, ok := l.symbols[symbol]
	if !ok {
		st = &symbolStats{}
		l.symbols[symbol] = st
		l.order = append(l.order, symbol)
	}
	return st
}

// Record appends t and updates every aggregate in one step.
func (l *Ledger) Record(t models.Trade) error {
	if !l.writing.CompareAndSwap(false, true) {
		return fmt.Errorf("record trade %s: %w", t.ID, models.ErrLedgerWriteConflict)
	}
	defer l.writing.Store(false)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = t
	l.next = (l.next + 1) % len(l.ring)
	if l.size < len(l.ring) {
		l.size++
	}

	l.totalPnL += t.PnL
	l.trades++
	l.fees += t.Fees
	l.sumSq += t.PnL * t.PnL
	if t.Win() {
		l.wins++
	}

	if l.totalPnL > l.peak {
		l.peak = l.totalPnL
	}
	if dd := l.peak - l.totalPnL; dd > l.drawdown {
		l.drawdown = dd
	}

	day := util.StartOfDayUTC(t.Timestamp)
	if day.After(l.day) {
		l.day = day
		l.dailyPnL = 0
	}
	if day.Equal(l.day) {
		l.dailyPnL += t.PnL
	}

	st := l.track(t.Symbol)
	st.pnl += t.PnL
	st.trades++
	if t.Win() {
		st.wins++
	}

	l.exVolume[t.BuyExchange] += t.BuyPrice * t.Amount
	l.exVolume[t.SellExchange] += t.SellPrice * t.Amount
	return nil
}

// Status returns the aggregate. The configured thresholds are left for the
// caller to fill in.
func (l *Ledger) Status() models.SimulationStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := models.SimulationStatus{
		TotalPnL:      l.totalPnL,
		TotalTrades:   l.trades,
		TotalFeesPaid: l.fees,
		MaxDrawdown:   l.drawdown,
		DailyPnL:      l.dailyPnL,
	}
	if l.trades > 0 {
		n := float64(l.trades)
		s.WinRate = float64(l.wins) / n
		s.AvgPnLPerTrade = l.totalPnL / n
		s.SharpeRatio = sharpe(l.totalPnL, l.sumSq, n)
	}
	return s
}

// sharpe is mean/std * sqrt(n) over per-trade PnL.
func sharpe(sum, sumSq, n float64) float64 {
	if n < 2 {
		return 0
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance <= 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(n)
}

// Recent returns up to limit trades, newest first.
func (l *Ledger) Recent(limit int) []models.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]models.Trade, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

// Leaderboard lists every tracked symbol ordered by total PnL, best first.
func (l *Ledger) Leaderboard() []models.LeaderboardEntry {
	l.mu.RLock()
	out := make([]models.LeaderboardEntry, 0, len(l.order))
	for _, sym := range l.order {
		st := l.symbols[sym]
		e := models.LeaderboardEntry{Symbol: sym, TotalPnL: st.pnl, TradeCount: st.trades}
		if st.trades > 0 {
			e.WinRate = float64(st.wins) / float64(st.trades)
		}
		out = append(out, e)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalPnL > out[j].TotalPnL })
	return out
}

// DailyPnL is the realized PnL of the UTC day containing now.
func (l *Ledger) DailyPnL(now time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !util.StartOfDayUTC(now).Equal(l.day) {
		return 0
	}
	return l.dailyPnL
}

// ExchangeVolume is the notional traded on exchange since start.
func (l *Ledger) ExchangeVolume(exchange string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.exVolume[exchange]
}
