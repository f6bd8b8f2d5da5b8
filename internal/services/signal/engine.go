package signal

import (
	"fmt"
	"math"

	"StatArb/internal/domain/models"
)

// TimeFactor scales the threshold for UTC hours in [FromHour, ToHour]. A band
// with FromHour > ToHour wraps midnight.
type TimeFactor struct {
	FromHour int
	ToHour   int
	Factor   float64
}

type Config struct {
	WindowSize int
	MinSamples int
	Epsilon    float64

	ShortWindow    int
	LongWindow     int
	MomentumWeight float64

	VolumeWeightFloor float64
	VolumeWeightCap   float64

	BaseThreshold  float64
	MinThreshold   float64
	MaxThreshold   float64
	VolImpact      float64
	VolHistory     int
	MomentumImpact float64
	TimeFactors    []TimeFactor
}

func DefaultConfig() Config {
	return Config{
		WindowSize:        100,
		MinSamples:        50,
		Epsilon:           1e-9,
		ShortWindow:       5,
		LongWindow:        20,
		MomentumWeight:    0.2,
		VolumeWeightFloor: 0.25,
		VolumeWeightCap:   2,
		BaseThreshold:     1.2,
		MinThreshold:      0.5,
		MaxThreshold:      5,
		VolImpact:         0.5,
		VolHistory:        200,
		MomentumImpact:    0.1,
		TimeFactors: []TimeFactor{
			{FromHour: 8, ToHour: 16, Factor: 0.9},
			{FromHour: 0, ToHour: 4, Factor: 1.2},
		},
	}
}

// Engine holds the rolling statistics of one symbol. It is owned by that
// symbol's task and is not safe for concurrent use.
type Engine struct {
	symbol string
	cfg    Config

	spreads   *Window
	liquidity *Window
	volumes   *Window
	zscores   *Window
	stddevs   *Window

	last *models.Signal
}

func NewEngine(symbol string, cfg Config) *Engine {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = (cfg.WindowSize + 1) / 2
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-9
	}
	if cfg.VolHistory <= 0 {
		cfg.VolHistory = 2 * cfg.WindowSize
	}
	return &Engine{
		symbol:    symbol,
		cfg:       cfg,
		spreads:   NewWindow(cfg.WindowSize),
		liquidity: NewWindow(cfg.WindowSize),
		volumes:   NewWindow(cfg.WindowSize),
		zscores:   NewWindow(cfg.LongWindow),
		stddevs:   NewWindow(cfg.VolHistory),
	}
}

// Last returns the most recent signal, nil before the first one.
func (e *Engine) Last() *models.Signal { return e.last }

// Samples is the number of spreads currently in the window.
func (e *Engine) Samples() int { return e.spreads.Len() }

// OnSnapshot advances the window with snap's spread and computes a signal.
// A stale snapshot returns ErrFeedStale and leaves the window untouched.
// While fewer than MinSamples spreads are held it returns
// ErrInsufficientHistory; the sample still counts toward warm-up.
func (e *Engine) OnSnapshot(snap models.MarketSnapshot) (*models.Signal, error) {
	if snap.Stale || !snap.Valid {
		return nil, fmt.Errorf("%s: %w", e.symbol, models.ErrFeedStale)
	}
	qa, okA := snap.Leg(snap.Legs[0])
	qb, okB := snap.Leg(snap.Legs[1])
	if !okA || !okB {
		return nil, fmt.Errorf("%s: %w", e.symbol, models.ErrFeedStale)
	}

	spread := qa.Ask - qb.Bid
	e.spreads.Push(spread)
	e.liquidity.Push(math.Min(qa.AskSize, qb.BidSize))
	e.volumes.Push(qa.BaseVolume + qb.BaseVolume)

	if e.spreads.Len() < e.cfg.MinSamples {
		return nil, fmt.Errorf("%s: %d/%d samples: %w", e.symbol, e.spreads.Len(), e.cfg.MinSamples, models.ErrInsufficientHistory)
	}

	mean := e.spreads.Mean()
	std := e.spreads.StdDev()
	z := (spread - mean) / math.Max(std, e.cfg.Epsilon)

	e.zscores.Push(z)
	e.stddevs.Push(std)

	weight := e.volumeWeight()
	vwz := z * weight
	momentum := e.momentum()
	strength := vwz * (1 + e.cfg.MomentumWeight*math.Tanh(momentum)*sign(vwz))

	volRatio := 1.0
	if avg := e.stddevs.Mean(); avg > e.cfg.Epsilon {
		volRatio = std / avg
	}

	sig := &models.Signal{
		Symbol:            e.symbol,
		Spread:            spread,
		RawZScore:         z,
		VolumeWeight:      weight,
		SignalStrength:    strength,
		MomentumScore:     momentum,
		VolatilityRatio:   volRatio,
		AdaptiveThreshold: e.threshold(volRatio, momentum, snap),
		Side:              models.SideFromZ(z),
		Timestamp:         snap.Timestamp,
	}
	e.last = sig
	return sig, nil
}

// volumeWeight compares the thinner leg's top-of-book depth with its window
// average. Thin books dampen the z-score, deep books amplify it, clamped to
// [floor, cap]. Feeds without depth data yield 1.
func (e *Engine) volumeWeight() float64 {
	avg := e.liquidity.Mean()
	if avg <= 0 {
		return 1
	}
	cur, _ := e.liquidity.Last()
	return clamp(cur/avg, e.cfg.VolumeWeightFloor, e.cfg.VolumeWeightCap)
}

// momentum is SMA_short(z) - SMA_long(z).
func (e *Engine) momentum() float64 {
	if e.zscores.Len() < 2 {
		return 0
	}
	return e.zscores.TailMean(e.cfg.ShortWindow) - e.zscores.TailMean(e.cfg.LongWindow)
}

func (e *Engine) threshold(volRatio, momentum float64, snap models.MarketSnapshot) float64 {
	t := e.cfg.BaseThreshold
	t *= math.Max(1+e.cfg.VolImpact*(volRatio-1), 0.1)
	t *= e.volumeFactor()
	t *= e.timeFactor(snap)
	t *= 1 + e.cfg.MomentumImpact*math.Abs(momentum)
	return clamp(t, e.cfg.MinThreshold, e.cfg.MaxThreshold)
}

// volumeFactor lowers the threshold when traded volume runs above its window
// average and raises it when volume dries up. Equals 1 at the average.
func (e *Engine) volumeFactor() float64 {
	avg := e.volumes.Mean()
	if avg <= 0 {
		return 1
	}
	cur, _ := e.volumes.Last()
	return (1 + math.Ln2) / (1 + math.Log1p(cur/avg))
}

func (e *Engine) timeFactor(snap models.MarketSnapshot) float64 {
	h := snap.Timestamp.UTC().Hour()
	for _, tf := range e.cfg.TimeFactors {
		in := tf.FromHour <= h && h <= tf.ToHour
		if tf.FromHour > tf.ToHour {
			in = h >= tf.FromHour || h <= tf.ToHour
		}
		if in {
			return tf.Factor
		}
	}
	return 1
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
