package orderbook

import (
	"time"

	"StatArb/internal/domain/models"
)

const DefaultStaleAfter = 5 * time.Second

type Config struct {
	// Exchanges lists the venues that must all be fresh. The first two are
	// the spread legs A and B.
	Exchanges  []string
	StaleAfter time.Duration
}

// Aggregator merges per-exchange quotes of one symbol into a synchronized
// snapshot. It is owned by a single symbol task and is not safe for
// concurrent use.
type Aggregator struct {
	symbol  string
	legs    [2]string
	tracked map[string]struct{}
	stale   time.Duration
	quotes  map[string]models.Quote

	mid, spread float64
	valid       bool
	last        models.MarketSnapshot
}

func New(symbol string, cfg Config) *Aggregator {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	a := &Aggregator{
		symbol:  symbol,
		tracked: make(map[string]struct{}, len(cfg.Exchanges)),
		stale:   cfg.StaleAfter,
		quotes:  make(map[string]models.Quote, len(cfg.Exchanges)),
	}
	if len(cfg.Exchanges) >= 2 {
		a.legs = [2]string{cfg.Exchanges[0], cfg.Exchanges[1]}
	}
	for _, ex := range cfg.Exchanges {
		a.tracked[ex] = struct{}{}
	}
	a.last = a.build(time.Time{})
	return a
}

func (a *Aggregator) Symbol() string { return a.symbol }

// Update stores q and rebuilds the snapshot using q's timestamp as the clock.
// changed is false when q is an exact duplicate of the stored quote or does not
// belong to this aggregator; the previous snapshot is returned unchanged then.
func (a *Aggregator) Update(q *models.Quote) (models.MarketSnapshot, bool) {
	if q == nil || q.Symbol != a.symbol {
		return a.last, false
	}
	if _, ok := a.tracked[q.Exchange]; !ok {
		return a.last, false
	}
	if prev, ok := a.quotes[q.Exchange]; ok && prev.SameAs(q) {
		return a.last, false
	}

	a.quotes[q.Exchange] = *q
	a.last = a.build(q.Timestamp)
	return a.last, true
}

// Clear drops the stored quote of exchange, after a feed disconnect. The
// symbol is stale until that exchange delivers again.
func (a *Aggregator) Clear(exchange string, now time.Time) (models.MarketSnapshot, bool) {
	if _, ok := a.quotes[exchange]; !ok {
		return a.last, false
	}
	delete(a.quotes, exchange)
	a.last = a.build(now)
	return a.last, true
}

// Snapshot returns the last built snapshot.
func (a *Aggregator) Snapshot() models.MarketSnapshot { return a.last }

func (a *Aggregator) build(now time.Time) models.MarketSnapshot {
	fresh := len(a.quotes) == len(a.tracked) && len(a.tracked) >= 2
	if fresh {
		for _, q := range a.quotes {
			if now.Sub(q.Timestamp) > a.stale {
				fresh = false
				break
			}
		}
	}

	if fresh {
		var mids float64
		for _, q := range a.quotes {
			mids += q.Mid()
		}
		a.mid = mids / float64(len(a.quotes))
		qa, qb := a.quotes[a.legs[0]], a.quotes[a.legs[1]]
		a.spread = qa.Ask - qb.Bid
		a.valid = true
	}

	quotes := make(map[string]models.Quote, len(a.quotes))
	for ex, q := range a.quotes {
		quotes[ex] = q
	}
	return models.MarketSnapshot{
		Symbol:    a.symbol,
		Legs:      a.legs,
		Quotes:    quotes,
		MidPrice:  a.mid,
		Spread:    a.spread,
		Stale:     !fresh,
		Valid:     a.valid,
		Timestamp: now,
	}
}
