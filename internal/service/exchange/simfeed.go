package exchange

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"StatArb/internal/domain/models"
	drepo "StatArb/internal/domain/repository"
)

// SimConfig drives a synthetic feed used for demos and soak runs.
type SimConfig struct {
	Exchange   string
	Symbols    []string
	StartPrice map[string]float64
	Interval   time.Duration
	// Offset shifts this venue's mid, in price units.
	Offset     float64
	Volatility float64
	HalfSpread float64
	Seed       int64
}

// SimFeed emits a seeded random walk per symbol with a mean-reverting venue
// offset, so two sim venues produce a tradable spread.
type SimFeed struct {
	cfg       SimConfig
	connected atomic.Bool
	now       func() time.Time

	mu     sync.Mutex
	rng    *rand.Rand
	mids   map[string]float64
	offset map[string]float64
	stop   chan struct{}
}

func NewSimFeed(cfg SimConfig) *SimFeed {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.0005
	}
	if cfg.HalfSpread <= 0 {
		cfg.HalfSpread = 0.01
	}
	f := &SimFeed{
		cfg:    cfg,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		mids:   make(map[string]float64, len(cfg.Symbols)),
		offset: make(map[string]float64, len(cfg.Symbols)),
	}
	for _, s := range cfg.Symbols {
		p := cfg.StartPrice[s]
		if p <= 0 {
			p = 100
		}
		f.mids[s] = p
	}
	return f
}

func (f *SimFeed) Exchange() string { return f.cfg.Exchange }

func (f *SimFeed) Connect(context.Context) error {
	f.mu.Lock()
	f.stop = make(chan struct{})
	f.mu.Unlock()
	f.connected.Store(true)
	return nil
}

func (f *SimFeed) Subscribe(context.Context) error { return nil }

func (f *SimFeed) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, len(f.cfg.Symbols))
	errs := make(chan error, 1)

	f.mu.Lock()
	stop := f.stop
	f.mu.Unlock()

	go func() {
		defer close(quotes)
		defer close(errs)
		if stop == nil {
			errs <- errors.New("sim feed not connected")
			return
		}
		t := time.NewTicker(f.cfg.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				for _, q := range f.Tick(f.now()) {
					select {
					case quotes <- q:
					case <-ctx.Done():
						return
					case <-stop:
						return
					}
				}
			}
		}
	}()
	return quotes, errs
}

// Tick advances every symbol one step and returns the new quotes.
func (f *SimFeed) Tick(at time.Time) []*models.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Quote, 0, len(f.cfg.Symbols))
	for _, s := range f.cfg.Symbols {
		mid := f.mids[s] * math.Exp(f.cfg.Volatility*f.rng.NormFloat64())
		f.mids[s] = mid
		// AR(1) pull of the venue offset back towards cfg.Offset
		off := f.offset[s]
		off = 0.8*off + 0.2*f.cfg.Offset + f.cfg.Volatility*mid*f.rng.NormFloat64()
		f.offset[s] = off

		m := mid + off
		out = append(out, &models.Quote{
			Exchange:   f.cfg.Exchange,
			Symbol:     s,
			Bid:        m - f.cfg.HalfSpread,
			Ask:        m + f.cfg.HalfSpread,
			BidSize:    1 + 4*f.rng.Float64(),
			AskSize:    1 + 4*f.rng.Float64(),
			BaseVolume: 1000 + 500*f.rng.Float64(),
			Timestamp:  at,
		})
	}
	return out
}

func (f *SimFeed) Reconnect(ctx context.Context) error {
	_ = f.Close()
	return f.Connect(ctx)
}

func (f *SimFeed) Close() error {
	f.connected.Store(false)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
	return nil
}

func (f *SimFeed) IsConnected() bool { return f.connected.Load() }

var _ drepo.FeedAdapter = (*SimFeed)(nil)
