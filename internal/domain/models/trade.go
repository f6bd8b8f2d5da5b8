package models

import "time"

type PositionState string

const (
	PositionFlat PositionState = "FLAT"
	PositionOpen PositionState = "OPEN"
)

// Position is the per-symbol execution state. At most one is OPEN per symbol.
// The exchange pairing is fixed at entry: inventory bought on BuyExchange is
// sold on SellExchange when the position closes.
type Position struct {
	State        PositionState `json:"state"`
	Side         Side          `json:"side,omitempty"`
	BuyExchange  string        `json:"buy_exchange,omitempty"`
	SellExchange string        `json:"sell_exchange,omitempty"`
	BuyPrice     float64       `json:"buy_price,omitempty"`
	EntrySellBid float64       `json:"entry_sell_bid,omitempty"`
	EntryZScore  float64       `json:"entry_zscore,omitempty"`
	Amount       float64       `json:"amount,omitempty"`
	EntryFees    float64       `json:"entry_fees,omitempty"`
	OpenedAt     time.Time     `json:"opened_at,omitempty"`
}

func (p *Position) IsOpen() bool { return p.State == PositionOpen }

type ExitReason string

const (
	ExitReversion ExitReason = "reversion"
	ExitStopLoss  ExitReason = "stop_loss"
)

// Trade is a completed round trip. PnL = (SellPrice - BuyPrice) * Amount - Fees.
type Trade struct {
	ID           string     `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	OpenedAt     time.Time  `json:"opened_at"`
	Symbol       string     `json:"symbol"`
	Side         Side       `json:"side"`
	BuyExchange  string     `json:"buy_exchange"`
	BuyPrice     float64    `json:"buy_price"`
	SellExchange string     `json:"sell_exchange"`
	SellPrice    float64    `json:"sell_price"`
	Amount       float64    `json:"amount"`
	Fees         float64    `json:"fees"`
	PnL          float64    `json:"pnl"`
	EntryZScore  float64    `json:"entry_zscore"`
	ExitZScore   float64    `json:"exit_zscore"`
	ExitReason   ExitReason `json:"exit_reason"`
}

// Win reports a strictly positive realized PnL.
func (t *Trade) Win() bool { return t.PnL > 0 }

type LeaderboardEntry struct {
	Symbol     string  `json:"symbol"`
	TotalPnL   float64 `json:"total_pnl"`
	TradeCount int     `json:"trade_count"`
	WinRate    float64 `json:"win_rate"`
}

// SimulationStatus is the ledger aggregate. TotalPnL always equals the sum of
// every recorded Trade.PnL and TotalTrades their count.
type SimulationStatus struct {
	TotalPnL       float64 `json:"total_pnl"`
	TotalTrades    int     `json:"total_trades"`
	WinRate        float64 `json:"win_rate"`
	AvgPnLPerTrade float64 `json:"avg_pnl_per_trade"`
	TotalFeesPaid  float64 `json:"total_fees_paid"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	DailyPnL       float64 `json:"daily_pnl"`
	OpenPositions  int     `json:"open_positions"`

	ZScoreThreshold float64 `json:"z_score_threshold"`
	TradeAmount     float64 `json:"trade_amount"`
	ExitZThreshold  float64 `json:"exit_z_threshold"`
	StopLossAmount  float64 `json:"stop_loss_amount"`
}
