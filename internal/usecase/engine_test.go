package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StatArb/internal/domain/models"
	"StatArb/internal/services/execution"
	"StatArb/internal/services/ledger"
	"StatArb/internal/services/signal"
	"StatArb/pkg/logger"
	"StatArb/pkg/metrics"
)

const sym = "BTC/USDT"

var t0 = time.Date(2024, 5, 2, 18, 0, 0, 0, time.UTC)

func engineConfig() EngineConfig {
	return EngineConfig{
		Symbols:    []string{sym},
		Exchanges:  []string{"binance", "kraken"},
		StaleAfter: time.Minute,
		QueueSize:  64,
		Signal: signal.Config{
			WindowSize:        10,
			MinSamples:        5,
			Epsilon:           1e-9,
			ShortWindow:       2,
			LongWindow:        4,
			VolumeWeightFloor: 0.25,
			VolumeWeightCap:   2,
			BaseThreshold:     2,
			MinThreshold:      0.5,
			MaxThreshold:      5,
			VolHistory:        20,
		},
		Execution: execution.Config{
			TradeAmount:     0.5,
			ExitZThreshold:  0.5,
			StopLossAmount:  5,
			StartingBalance: 10_000,
			Fees: execution.FeeSchedule{
				"binance": {},
				"kraken":  {},
			},
		},
	}
}

func quote(ex string, bid, ask float64, at time.Time) *models.Quote {
	return &models.Quote{Exchange: ex, Symbol: sym, Bid: bid, Ask: ask, BidSize: 5, AskSize: 5, Timestamp: at}
}

type harness struct {
	engine   *Engine
	recorder *TradeRecorder
	ledger   *ledger.Ledger
	runErr   chan error
}

func newHarness(t *testing.T, cfg EngineConfig) *harness {
	t.Helper()
	l := ledger.New(100, cfg.Symbols)
	rec := NewTradeRecorder(RecorderConfig{Backend: BackendNone}, l, nil, nil, nil, metrics.Nop{}, logger.Nop())
	e, err := NewEngine(cfg, l, rec, metrics.Nop{}, logger.Nop())
	require.NoError(t, err)

	h := &harness{engine: e, recorder: rec, ledger: l, runErr: make(chan error, 1)}
	go func() { h.runErr <- rec.Run(context.Background()) }()
	e.Start(context.Background())
	return h
}

// finish drains the engine then the recorder.
func (h *harness) finish(t *testing.T) {
	t.Helper()
	h.engine.Stop()
	h.recorder.Close()
	select {
	case err := <-h.runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}
}

func TestEngine_RoundTrip(t *testing.T) {
	h := newHarness(t, engineConfig())
	ctx := context.Background()
	e := h.engine

	require.NoError(t, e.Dispatch(ctx, quote("kraken", 100.0, 100.1, t0)))
	for i := 1; i <= 9; i++ {
		require.NoError(t, e.Dispatch(ctx, quote("binance", 100.0, 100.1, t0.Add(time.Duration(i)*time.Second))))
	}
	// binance rich: z = 3 on a window of nine equal spreads plus one outlier
	require.NoError(t, e.Dispatch(ctx, quote("binance", 100.9, 101.0, t0.Add(10*time.Second))))
	// kraken catches up, the spread reverts
	require.NoError(t, e.Dispatch(ctx, quote("kraken", 100.9, 101.0, t0.Add(11*time.Second))))

	h.finish(t)

	trades := h.ledger.Recent(10)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, models.SideShort, tr.Side)
	assert.Equal(t, "kraken", tr.BuyExchange)
	assert.Equal(t, "binance", tr.SellExchange)
	assert.InDelta(t, 100.1, tr.BuyPrice, 1e-9)
	assert.InDelta(t, 100.9, tr.SellPrice, 1e-9)
	assert.InDelta(t, 0.4, tr.PnL, 1e-9)
	assert.Equal(t, models.ExitReversion, tr.ExitReason)
	assert.InDelta(t, 3.0, tr.EntryZScore, 1e-6)

	st := h.ledger.Status()
	assert.Equal(t, 1, st.TotalTrades)
	assert.InDelta(t, 0.4, st.TotalPnL, 1e-9)
	assert.Equal(t, 0, e.OpenPositions())
}

func TestEngine_MarketDataView(t *testing.T) {
	h := newHarness(t, engineConfig())
	ctx := context.Background()
	e := h.engine

	md, err := e.MarketData(sym, t0)
	require.NoError(t, err)
	assert.Equal(t, "awaiting quotes", md.Error)
	assert.Nil(t, md.MidPrice)

	require.NoError(t, e.Dispatch(ctx, quote("kraken", 100.0, 100.1, t0)))
	require.NoError(t, e.Dispatch(ctx, quote("binance", 100.2, 100.3, t0)))
	h.finish(t)

	md, err = e.MarketData(sym, t0)
	require.NoError(t, err)
	require.NotNil(t, md.MidPrice)
	assert.InDelta(t, 100.15, *md.MidPrice, 1e-9)
	assert.InDelta(t, 0.3, *md.Spread, 1e-9)
	assert.Nil(t, md.RawZScore)
	assert.Equal(t, models.SignalHold, md.Signal)
	assert.Equal(t, models.PositionFlat, md.Position)
	assert.Len(t, md.Books, 2)
	assert.Empty(t, md.Error, "warm-up leaves the signal fields null without an error")

	// a view older than the staleness window reads as stale
	md, err = e.MarketData(sym, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.ErrFeedStale.Error(), md.Error)
	assert.Nil(t, md.RawZScore)

	all := e.AllMarketData(t0)
	assert.Len(t, all, 1)
	assert.Contains(t, all, sym)
}

func TestEngine_DisconnectMarksStale(t *testing.T) {
	h := newHarness(t, engineConfig())
	ctx := context.Background()
	e := h.engine

	require.NoError(t, e.Dispatch(ctx, quote("kraken", 100.0, 100.1, t0)))
	require.NoError(t, e.Dispatch(ctx, quote("binance", 100.2, 100.3, t0)))
	e.Disconnect("kraken")
	h.finish(t)

	md, err := e.MarketData(sym, t0)
	require.NoError(t, err)
	assert.Equal(t, models.ErrFeedStale.Error(), md.Error)
	assert.Len(t, md.Books, 1)
}

func TestEngine_StaleViewDropsSignalFields(t *testing.T) {
	h := newHarness(t, engineConfig())
	ctx := context.Background()
	e := h.engine

	require.NoError(t, e.Dispatch(ctx, quote("kraken", 100.0, 100.1, t0)))
	for i := 1; i <= 6; i++ {
		require.NoError(t, e.Dispatch(ctx, quote("binance", 100.0, 100.1, t0.Add(time.Duration(i)*time.Second))))
	}
	require.Eventually(t, func() bool {
		md, err := e.MarketData(sym, t0)
		return err == nil && md.RawZScore != nil
	}, 2*time.Second, 5*time.Millisecond)

	e.Disconnect("kraken")
	h.finish(t)

	md, err := e.MarketData(sym, t0)
	require.NoError(t, err)
	assert.Equal(t, models.ErrFeedStale.Error(), md.Error)
	assert.Nil(t, md.RawZScore)
	assert.Nil(t, md.AdaptiveThreshold)
	assert.Nil(t, md.SignalStrength)
	assert.Nil(t, md.MomentumScore)
	assert.Equal(t, models.SignalHold, md.Signal)
}

func TestEngine_UnknownSymbol(t *testing.T) {
	h := newHarness(t, engineConfig())
	defer h.finish(t)

	q := quote("binance", 1, 2, t0)
	q.Symbol = "DOGE/USDT"
	assert.ErrorIs(t, h.engine.Dispatch(context.Background(), q), models.ErrInvalidSymbol)

	_, err := h.engine.MarketData("DOGE/USDT", t0)
	assert.ErrorIs(t, err, models.ErrInvalidSymbol)
}

func TestEngine_StopRefusesQuotes(t *testing.T) {
	h := newHarness(t, engineConfig())
	h.finish(t)
	err := h.engine.Dispatch(context.Background(), quote("binance", 100, 100.1, t0))
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngine_Backpressure(t *testing.T) {
	cfg := engineConfig()
	cfg.QueueSize = 1
	cfg.DispatchTimeout = 10 * time.Millisecond
	l := ledger.New(10, cfg.Symbols)
	rec := NewTradeRecorder(RecorderConfig{}, l, nil, nil, nil, metrics.Nop{}, logger.Nop())
	e, err := NewEngine(cfg, l, rec, metrics.Nop{}, logger.Nop())
	require.NoError(t, err)

	// not started: the single slot fills and the next send times out
	require.NoError(t, e.Dispatch(context.Background(), quote("binance", 100, 100.1, t0)))
	err = e.Dispatch(context.Background(), quote("binance", 100, 100.2, t0))
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestNewEngine_Validation(t *testing.T) {
	cfg := engineConfig()
	cfg.Exchanges = []string{"binance"}
	_, err := NewEngine(cfg, ledger.New(1, nil), nil, metrics.Nop{}, logger.Nop())
	assert.Error(t, err)

	cfg = engineConfig()
	cfg.Symbols = []string{sym, sym}
	_, err = NewEngine(cfg, ledger.New(1, nil), nil, metrics.Nop{}, logger.Nop())
	assert.Error(t, err)
}

func TestEngine_MaxPositionOverride(t *testing.T) {
	cfg := engineConfig()
	cfg.MaxPosition = map[string]float64{sym: 0.1}
	h := newHarness(t, cfg)
	ctx := context.Background()
	e := h.engine

	require.NoError(t, e.Dispatch(ctx, quote("kraken", 100.0, 100.1, t0)))
	for i := 1; i <= 9; i++ {
		require.NoError(t, e.Dispatch(ctx, quote("binance", 100.0, 100.1, t0.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, e.Dispatch(ctx, quote("binance", 100.9, 101.0, t0.Add(10*time.Second))))
	require.NoError(t, e.Dispatch(ctx, quote("kraken", 100.9, 101.0, t0.Add(11*time.Second))))
	h.finish(t)

	trades := h.ledger.Recent(1)
	require.Len(t, trades, 1)
	assert.InDelta(t, 0.1, trades[0].Amount, 1e-12)
}
