package models

import (
	"fmt"
	"time"
)

// Quote is one top-of-book observation from an exchange. Quotes are never
// mutated; a newer quote for the same (exchange, symbol) supersedes the old one.
type Quote struct {
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	BidSize    float64   `json:"bid_size"`
	AskSize    float64   `json:"ask_size"`
	BaseVolume float64   `json:"base_volume"`
	Timestamp  time.Time `json:"timestamp"`
}

func (q *Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }

// Validate rejects quotes that can never be priced. A crossed book is allowed
// through; some venues publish it briefly.
func (q *Quote) Validate() error {
	switch {
	case q.Exchange == "":
		return fmt.Errorf("quote: empty exchange")
	case q.Symbol == "":
		return fmt.Errorf("quote: empty symbol")
	case q.Bid <= 0 || q.Ask <= 0:
		return fmt.Errorf("quote %s %s: non-positive price bid=%v ask=%v", q.Exchange, q.Symbol, q.Bid, q.Ask)
	case q.BidSize < 0 || q.AskSize < 0 || q.BaseVolume < 0:
		return fmt.Errorf("quote %s %s: negative size", q.Exchange, q.Symbol)
	case q.Timestamp.IsZero():
		return fmt.Errorf("quote %s %s: missing timestamp", q.Exchange, q.Symbol)
	}
	return nil
}

// SameAs reports whether o carries exactly the same observation.
func (q *Quote) SameAs(o *Quote) bool {
	return q.Exchange == o.Exchange &&
		q.Symbol == o.Symbol &&
		q.Bid == o.Bid &&
		q.Ask == o.Ask &&
		q.BidSize == o.BidSize &&
		q.AskSize == o.AskSize &&
		q.BaseVolume == o.BaseVolume &&
		q.Timestamp.Equal(o.Timestamp)
}

// MarketSnapshot is the synchronized per-symbol view built from the latest
// quote of every configured exchange. Legs[0] is exchange A and Legs[1] is
// exchange B of the spread convention ask(A) - bid(B).
type MarketSnapshot struct {
	Symbol    string
	Legs      [2]string
	Quotes    map[string]Quote
	MidPrice  float64
	Spread    float64
	Stale     bool
	Valid     bool // a mid/spread has been computed at least once
	Timestamp time.Time
}

// Leg returns the stored quote for exchange ex.
func (s *MarketSnapshot) Leg(ex string) (Quote, bool) {
	q, ok := s.Quotes[ex]
	return q, ok
}

// BookLevel is the per-exchange top of book exposed on the read surface.
type BookLevel struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidSize   float64   `json:"bid_size"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}
