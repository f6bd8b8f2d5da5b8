package models

import (
	"math"
	"time"
)

// Side is the spread direction implied by the sign of the z-score.
//
// SideShort: the spread ask(A) - bid(B) is rich, so buy on B and sell on A.
// SideLong: the spread is cheap, so buy on A and sell on B.
type Side string

const (
	SideNone  Side = "NONE"
	SideLong  Side = "LONG_SPREAD"
	SideShort Side = "SHORT_SPREAD"
)

func SideFromZ(z float64) Side {
	switch {
	case z > 0:
		return SideShort
	case z < 0:
		return SideLong
	default:
		return SideNone
	}
}

// Signal is the per-cycle output of the signal engine.
type Signal struct {
	Symbol            string    `json:"symbol"`
	Spread            float64   `json:"spread"`
	RawZScore         float64   `json:"raw_zscore"`
	VolumeWeight      float64   `json:"volume_weight"`
	SignalStrength    float64   `json:"signal_strength"`
	MomentumScore     float64   `json:"momentum_score"`
	VolatilityRatio   float64   `json:"volatility_ratio"`
	AdaptiveThreshold float64   `json:"adaptive_threshold"`
	Side              Side      `json:"side"`
	Timestamp         time.Time `json:"timestamp"`
}

// Triggered reports whether the strength clears the adaptive threshold.
func (s *Signal) Triggered() bool {
	return math.Abs(s.SignalStrength) >= s.AdaptiveThreshold
}
