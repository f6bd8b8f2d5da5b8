package models

import "time"

// SignalHold is reported when no entry condition is met.
const SignalHold = "HOLD"

// MarketData is the per-symbol view published after every processing cycle.
// Nullable numbers are nil while the symbol has no signal yet.
// Note: a published value is never mutated, readers may share it.
type MarketData struct {
	Timestamp         time.Time            `json:"timestamp"`
	Symbol            string               `json:"symbol"`
	MidPrice          *float64             `json:"mid_price"`
	Spread            *float64             `json:"spread"`
	RawZScore         *float64             `json:"raw_zscore"`
	AdaptiveThreshold *float64             `json:"adaptive_threshold"`
	SignalStrength    *float64             `json:"signal_strength"`
	MomentumScore     *float64             `json:"momentum_score"`
	Signal            string               `json:"signal"`
	Position          PositionState        `json:"position"`
	Books             map[string]BookLevel `json:"books,omitempty"`
	Error             string               `json:"error,omitempty"`
}

// MarkStale replaces the signal fields with the stale error. Mid price, spread
// and books keep the last known market state.
func (m *MarketData) MarkStale() {
	m.RawZScore = nil
	m.AdaptiveThreshold = nil
	m.SignalStrength = nil
	m.MomentumScore = nil
	m.Signal = SignalHold
	m.Error = ErrFeedStale.Error()
}

func Float(v float64) *float64 { return &v }
