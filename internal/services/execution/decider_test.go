package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"StatArb/internal/domain/models"
)

var t0 = time.Date(2024, 5, 2, 18, 0, 0, 0, time.UTC)

type mockAccount struct{ mock.Mock }

func (m *mockAccount) DailyPnL(now time.Time) float64 {
	return m.Called(now).Get(0).(float64)
}

func (m *mockAccount) ExchangeVolume(exchange string) float64 {
	return m.Called(exchange).Get(0).(float64)
}

func testConfig() Config {
	return Config{
		TradeAmount:       0.5,
		ExitZThreshold:    0.5,
		StopLossAmount:    5,
		StartingBalance:   10_000,
		SlippageAllowance: 0.02,
		DepthImpact:       0.001,
		TransferCost:      0.05,
		Cooldown:          30 * time.Second,
		Fees: FeeSchedule{
			"binance": {Maker: 0.001, Taker: 0.001},
			"kraken":  {Maker: 0.001, Taker: 0.001},
		},
	}
}

// book builds a snapshot with A=binance, B=kraken.
func book(aBid, aAsk, bBid, bAsk float64, at time.Time) models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol: "BTC/USDT",
		Legs:   [2]string{"binance", "kraken"},
		Quotes: map[string]models.Quote{
			"binance": {Exchange: "binance", Symbol: "BTC/USDT", Bid: aBid, Ask: aAsk, BidSize: 5, AskSize: 5, Timestamp: at},
			"kraken":  {Exchange: "kraken", Symbol: "BTC/USDT", Bid: bBid, Ask: bAsk, BidSize: 5, AskSize: 5, Timestamp: at},
		},
		MidPrice:  (aBid + aAsk + bBid + bAsk) / 4,
		Spread:    aAsk - bBid,
		Valid:     true,
		Timestamp: at,
	}
}

func sigZ(z, strength, threshold float64, at time.Time) *models.Signal {
	return &models.Signal{
		Symbol:            "BTC/USDT",
		RawZScore:         z,
		SignalStrength:    strength,
		AdaptiveThreshold: threshold,
		Side:              models.SideFromZ(z),
		Timestamp:         at,
	}
}

func openPosition(t *testing.T, d *Decider) {
	t.Helper()
	dec := d.OnCycle(book(100.40, 100.50, 100.00, 100.10, t0), sigZ(2.5, 2.5, 1.2, t0))
	require.Equal(t, ActionOpen, dec.Action, dec.Reason)
}

func TestDecider_EntryScenario(t *testing.T) {
	d := NewDecider("BTC/USDT", testConfig(), nil)

	dec := d.OnCycle(book(100.40, 100.50, 100.00, 100.10, t0), sigZ(2.5, 2.5, 1.2, t0))

	require.Equal(t, ActionOpen, dec.Action)
	assert.Nil(t, dec.Trade, "entry records no trade")
	assert.InDelta(t, 0.50, dec.Edge.Gross, 1e-9)
	assert.InDelta(t, 0.1005+0.1000, dec.Edge.Fees, 1e-9)
	assert.InDelta(t, 0.02, dec.Edge.Slippage, 1e-9)
	assert.InDelta(t, 0.2295, dec.Edge.Net, 1e-9)

	p := d.Position()
	assert.Equal(t, models.PositionOpen, p.State)
	assert.Equal(t, 0.5, p.Amount)
	assert.Equal(t, "kraken", p.BuyExchange, "spread rich: buy on B")
	assert.Equal(t, "binance", p.SellExchange)
	assert.Equal(t, 100.10, p.BuyPrice)
	assert.Equal(t, 2.5, p.EntryZScore)
}

func TestDecider_AmountCaps(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPosition = 0.1
	d := NewDecider("BTC/USDT", cfg, nil)
	openPosition(t, d)
	assert.Equal(t, 0.1, d.Position().Amount)

	cfg = testConfig()
	cfg.StartingBalance = 10
	d = NewDecider("BTC/USDT", cfg, nil)
	openPosition(t, d)
	assert.InDelta(t, 10/100.10, d.Position().Amount, 1e-12)
}

func TestDecider_EntryRequiresThresholdAndEdge(t *testing.T) {
	cases := []struct {
		name      string
		strength  float64
		threshold float64
		fee       float64
		slippage  float64
		wantOpen  bool
		reason    string
	}{
		{"clears both", 2.5, 1.2, 0.001, 0.02, true, ""},
		{"at threshold", 1.2, 1.2, 0.001, 0.02, true, ""},
		{"below threshold", 1.1, 1.2, 0.001, 0.02, false, ReasonBelowThresh},
		{"fees eat the edge", 2.5, 1.2, 0.003, 0.02, false, ReasonNoEdge},
		{"slippage eats the edge", 2.5, 1.2, 0.001, 0.25, false, ReasonNoEdge},
		{"negative strength clears", -2.5, 1.2, 0.001, 0.02, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.SlippageAllowance = tc.slippage
			cfg.Fees = FeeSchedule{"binance": {Taker: tc.fee}, "kraken": {Taker: tc.fee}}
			d := NewDecider("BTC/USDT", cfg, nil)

			z := 2.5
			if tc.strength < 0 {
				z = -2.5
			}
			snap := book(100.40, 100.50, 100.00, 100.10, t0)
			dec := d.OnCycle(snap, sigZ(z, tc.strength, tc.threshold, t0))

			if tc.wantOpen {
				assert.Equal(t, ActionOpen, dec.Action)
				assert.Greater(t, dec.Edge.Net, 0.0)
				assert.True(t, posOpen(d.Position()))
			} else {
				assert.Equal(t, ActionNone, dec.Action)
				assert.Equal(t, tc.reason, dec.Reason)
				assert.False(t, posOpen(d.Position()))
			}
		})
	}
}

func TestDecider_NoEntryWhileOpen(t *testing.T) {
	d := NewDecider("BTC/USDT", testConfig(), nil)
	openPosition(t, d)
	before := d.Position()

	dec := d.OnCycle(book(100.40, 100.50, 100.00, 100.10, t0.Add(time.Second)), sigZ(3, 3, 1.2, t0.Add(time.Second)))
	assert.Equal(t, ActionNone, dec.Action)
	assert.Equal(t, ReasonHolding, dec.Reason)
	assert.Equal(t, before, d.Position())
}

func TestDecider_ReversionExit(t *testing.T) {
	d := NewDecider("BTC/USDT", testConfig(), nil)
	openPosition(t, d)
	entry := d.Position()

	at := t0.Add(time.Minute)
	dec := d.OnCycle(book(100.60, 100.70, 100.20, 100.30, at), sigZ(0.3, 0.3, 1.2, at))

	require.Equal(t, ActionClose, dec.Action)
	tr := dec.Trade
	require.NotNil(t, tr)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, models.ExitReversion, tr.ExitReason)
	assert.Equal(t, "kraken", tr.BuyExchange)
	assert.Equal(t, 100.10, tr.BuyPrice)
	assert.Equal(t, "binance", tr.SellExchange)
	assert.Equal(t, 100.60, tr.SellPrice)
	assert.Equal(t, 2.5, tr.EntryZScore)
	assert.Equal(t, 0.3, tr.ExitZScore)

	exitFee := 0.001 * 100.60 * 0.5
	assert.InDelta(t, entry.EntryFees+exitFee, tr.Fees, 1e-12)
	assert.InDelta(t, (tr.SellPrice-tr.BuyPrice)*tr.Amount-tr.Fees, tr.PnL, 1e-12)
	assert.False(t, posOpen(d.Position()))
	assert.InDelta(t, testConfig().StartingBalance+tr.PnL, d.Balance(), 1e-9)
}

func TestDecider_StopLossBeforeReversion(t *testing.T) {
	d := NewDecider("BTC/USDT", testConfig(), nil)
	openPosition(t, d)

	// z has reverted, but the sell venue crashed far enough to trip the stop
	at := t0.Add(time.Minute)
	dec := d.OnCycle(book(80.00, 80.10, 79.90, 80.00, at), sigZ(0.1, 0.1, 1.2, at))

	require.Equal(t, ActionClose, dec.Action)
	assert.Equal(t, models.ExitStopLoss, dec.Trade.ExitReason)
	assert.Less(t, dec.Trade.PnL, -testConfig().StopLossAmount)
}

func TestDecider_StopLossOnStaleCycle(t *testing.T) {
	d := NewDecider("BTC/USDT", testConfig(), nil)
	openPosition(t, d)

	stale := book(100.40, 100.50, 100.00, 100.10, t0.Add(time.Minute))
	stale.Stale = true
	dec := d.OnCycle(stale, nil)
	assert.Equal(t, ReasonHolding, dec.Reason)
	assert.True(t, posOpen(d.Position()))

	crashed := book(70, 70.1, 100.00, 100.10, t0.Add(2*time.Minute))
	crashed.Stale = true
	dec = d.OnCycle(crashed, nil)
	require.Equal(t, ActionClose, dec.Action)
	assert.Equal(t, models.ExitStopLoss, dec.Trade.ExitReason)
}

func TestDecider_RejectedFillLeavesStateUnchanged(t *testing.T) {
	d := NewDecider("BTC/USDT", testConfig(), nil)

	snap := book(100.40, 100.50, 100.00, 100.10, t0)
	kr := snap.Quotes["kraken"]
	kr.AskSize = 0
	snap.Quotes["kraken"] = kr

	dec := d.OnCycle(snap, sigZ(2.5, 2.5, 1.2, t0))
	assert.Equal(t, ActionNone, dec.Action)
	assert.ErrorIs(t, dec.Err, models.ErrExecutionRejected)
	assert.Equal(t, models.PositionFlat, d.Position().State)
	assert.Equal(t, testConfig().StartingBalance, d.Balance())
}

func TestDecider_CooldownAfterExit(t *testing.T) {
	d := NewDecider("BTC/USDT", testConfig(), nil)
	openPosition(t, d)
	exitAt := t0.Add(time.Minute)
	d.OnCycle(book(100.60, 100.70, 100.20, 100.30, exitAt), sigZ(0.2, 0.2, 1.2, exitAt))
	require.False(t, posOpen(d.Position()))

	soon := exitAt.Add(10 * time.Second)
	dec := d.OnCycle(book(100.40, 100.50, 100.00, 100.10, soon), sigZ(2.5, 2.5, 1.2, soon))
	assert.Equal(t, ReasonCooldown, dec.Reason)

	later := exitAt.Add(31 * time.Second)
	dec = d.OnCycle(book(100.40, 100.50, 100.00, 100.10, later), sigZ(2.5, 2.5, 1.2, later))
	assert.Equal(t, ActionOpen, dec.Action)
}

func TestDecider_DailyLossHalt(t *testing.T) {
	acc := new(mockAccount)
	acc.On("DailyPnL", t0).Return(-120.0)
	acc.On("ExchangeVolume", mock.Anything).Return(0.0)

	cfg := testConfig()
	cfg.MaxDailyLoss = 100
	d := NewDecider("BTC/USDT", cfg, acc)

	dec := d.OnCycle(book(100.40, 100.50, 100.00, 100.10, t0), sigZ(2.5, 2.5, 1.2, t0))
	assert.Equal(t, ReasonDailyLossHalt, dec.Reason)
	assert.False(t, posOpen(d.Position()))
	acc.AssertCalled(t, "DailyPnL", t0)
}

func TestFeeSchedule_Tiers(t *testing.T) {
	fs := FeeSchedule{
		"binance": {Maker: 0.001, Taker: 0.001, Tiers: []FeeTier{
			{MinVolume: 500, Maker: 0.0007, Taker: 0.0007},
			{MinVolume: 50, Maker: 0.0009, Taker: 0.0009},
			{MinVolume: 100, Maker: 0.0008, Taker: 0.0008},
		}},
	}
	assert.Equal(t, 0.001, fs.Taker("binance", 10))
	assert.Equal(t, 0.0009, fs.Taker("binance", 50))
	assert.Equal(t, 0.0008, fs.Taker("binance", 499))
	assert.Equal(t, 0.0007, fs.Maker("binance", 1e6))
	assert.Equal(t, 0.0, fs.Taker("unknown", 1e6))
}

// posOpen binds the returned Position so its pointer-receiver IsOpen is callable.
func posOpen(p models.Position) bool { return p.IsOpen() }
