package execution

// FeeTier applies once an exchange's traded notional reaches MinVolume.
type FeeTier struct {
	MinVolume float64
	Maker     float64
	Taker     float64
}

type ExchangeFees struct {
	Maker float64
	Taker float64
	Tiers []FeeTier
}

// FeeSchedule maps exchange name to its fee table. Fees are fractions of
// notional (0.001 = 10 bps).
type FeeSchedule map[string]ExchangeFees

// Taker returns the taker rate of exchange given its traded notional so far.
// The best tier reached wins; unknown exchanges pay nothing.
func (s FeeSchedule) Taker(exchange string, volume float64) float64 {
	f, ok := s[exchange]
	if !ok {
		return 0
	}
	rate := f.Taker
	best := -1.0
	for _, t := range f.Tiers {
		if volume >= t.MinVolume && t.MinVolume > best {
			best = t.MinVolume
			rate = t.Taker
		}
	}
	return rate
}

func (s FeeSchedule) Maker(exchange string, volume float64) float64 {
	f, ok := s[exchange]
	if !ok {
		return 0
	}
	rate := f.Maker
	best := -1.0
	for _, t := range f.Tiers {
		if volume >= t.MinVolume && t.MinVolume > best {
			best = t.MinVolume
			rate = t.Maker
		}
	}
	return rate
}
