package execution

import (
	"fmt"
	"math"

	"StatArb/internal/domain/models"
)

// Edge is the per-unit economics of an entry, in quote currency.
type Edge struct {
	Gross    float64 `json:"gross"`
	Fees     float64 `json:"fees"`
	Slippage float64 `json:"slippage"`
	Transfer float64 `json:"transfer"`
	Net      float64 `json:"net"`
}

// legs resolves which exchange buys and which sells for side.
func legs(snap models.MarketSnapshot, side models.Side) (buy, sell string) {
	a, b := snap.Legs[0], snap.Legs[1]
	if side == models.SideShort {
		return b, a
	}
	return a, b
}

// slippage estimates the per-unit cost of filling amount against a single
// top-of-book level: a flat allowance plus an impact charge on the share of
// the order that does not fit in the displayed size.
func (d *Decider) slippage(amount, price, size float64) (float64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("no displayed depth: %w", models.ErrExecutionRejected)
	}
	overflow := math.Max(amount-size, 0) / amount
	return overflow * price * d.cfg.DepthImpact, nil
}

// estimateEdge prices an entry of amount on the given legs.
// net = |ask(A) - bid(B)| - taker fees on both legs - slippage - transfer.
func (d *Decider) estimateEdge(snap models.MarketSnapshot, buyQ, sellQ models.Quote, amount float64) (Edge, error) {
	qa, okA := snap.Leg(snap.Legs[0])
	qb, okB := snap.Leg(snap.Legs[1])
	if !okA || !okB {
		return Edge{}, fmt.Errorf("missing leg quote: %w", models.ErrExecutionRejected)
	}

	feeA := d.cfg.Fees.Taker(qa.Exchange, d.volume(qa.Exchange))
	feeB := d.cfg.Fees.Taker(qb.Exchange, d.volume(qb.Exchange))

	buySlip, err := d.slippage(amount, buyQ.Ask, buyQ.AskSize)
	if err != nil {
		return Edge{}, err
	}
	sellSlip, err := d.slippage(amount, sellQ.Bid, sellQ.BidSize)
	if err != nil {
		return Edge{}, err
	}

	e := Edge{
		Gross:    math.Abs(qa.Ask - qb.Bid),
		Fees:     feeA*qa.Ask + feeB*qb.Bid,
		Slippage: d.cfg.SlippageAllowance + buySlip + sellSlip,
		Transfer: d.cfg.TransferCost,
	}
	e.Net = e.Gross - e.Fees - e.Slippage - e.Transfer
	return e, nil
}

func (d *Decider) volume(exchange string) float64 {
	if d.account == nil {
		return 0
	}
	return d.account.ExchangeVolume(exchange)
}
