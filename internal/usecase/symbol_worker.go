package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"StatArb/internal/domain/models"
	drepo "StatArb/internal/domain/repository"
	"StatArb/internal/services/execution"
	"StatArb/internal/services/orderbook"
	"StatArb/internal/services/signal"
	"StatArb/pkg/logger"
)

// event is either a quote or a feed disconnect.
type event struct {
	quote      *models.Quote
	disconnect string
	at         time.Time
}

type symbolWorker struct {
	symbol string
	in     chan event

	agg *orderbook.Aggregator
	sig *signal.Engine
	dec *execution.Decider

	sink    TradeSink
	metrics drepo.Metrics
	logger  *logger.Logger

	view atomic.Pointer[models.MarketData]
}

func (w *symbolWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.in:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *symbolWorker) handle(ctx context.Context, ev event) {
	start := time.Now()

	var (
		snap    models.MarketSnapshot
		changed bool
	)
	if ev.quote != nil {
		snap, changed = w.agg.Update(ev.quote)
	} else {
		snap, changed = w.agg.Clear(ev.disconnect, ev.at)
		if changed {
			w.logger.Warn("feed lost, quotes cleared", logger.Exchange(ev.disconnect))
		}
	}
	if !changed {
		return
	}

	w.cycle(ctx, snap)
	w.metrics.RecordLatency("cycle", time.Since(start).Seconds())
}

// cycle runs signal, execution and publication for one snapshot.
func (w *symbolWorker) cycle(ctx context.Context, snap models.MarketSnapshot) {
	var (
		sig    *models.Signal
		sigErr error
	)
	if snap.Stale {
		w.metrics.RecordStale(w.symbol)
		sigErr = models.ErrFeedStale
	} else {
		w.metrics.RecordLastPrice(w.symbol, snap.MidPrice)
		sig, sigErr = w.sig.OnSnapshot(snap)
		if sig != nil {
			w.metrics.RecordSignal(sig)
			if sig.Triggered() {
				w.sink.OfferSignal(sig)
			}
		}
	}

	d := w.dec.OnCycle(snap, sig)
	switch d.Action {
	case execution.ActionOpen:
		pos := w.dec.Position()
		w.metrics.RecordPosition(w.symbol, true)
		w.logger.Info("position opened",
			logger.String("side", string(pos.Side)),
			logger.String("buy_exchange", pos.BuyExchange),
			logger.String("sell_exchange", pos.SellExchange),
			logger.Float64("buy_price", pos.BuyPrice),
			logger.Float64("amount", pos.Amount),
			logger.Float64("net_edge", d.Edge.Net))
	case execution.ActionClose:
		w.metrics.RecordPosition(w.symbol, false)
		w.metrics.RecordTrade(d.Trade)
		w.logger.Info("position closed",
			logger.String("trade_id", d.Trade.ID),
			logger.String("exit_reason", string(d.Trade.ExitReason)),
			logger.Float64("pnl", d.Trade.PnL),
			logger.Float64("fees", d.Trade.Fees))
		if err := w.sink.Submit(ctx, *d.Trade); err != nil {
			w.metrics.RecordError("trade_submit")
			w.logger.Error("trade not recorded", logger.String("trade_id", d.Trade.ID), logger.Error(err))
		}
	default:
		w.noteSkip(d)
	}

	w.publish(snap, sig, sigErr)
}

func (w *symbolWorker) noteSkip(d execution.Decision) {
	switch d.Reason {
	case execution.ReasonRejected:
		w.metrics.RecordRejection(w.symbol, d.Reason)
		w.logger.Warn("entry rejected", logger.Error(d.Err))
	case execution.ReasonCooldown, execution.ReasonDailyLossHalt,
		execution.ReasonNoEdge, execution.ReasonSpreadRatio:
		w.metrics.RecordRejection(w.symbol, d.Reason)
		w.logger.Debug("entry skipped",
			logger.String("reason", d.Reason),
			logger.Float64("net_edge", d.Edge.Net))
	}
}

// publish builds an immutable view and swaps it in for readers.
func (w *symbolWorker) publish(snap models.MarketSnapshot, sig *models.Signal, sigErr error) {
	v := &models.MarketData{
		Timestamp: snap.Timestamp,
		Symbol:    w.symbol,
		Signal:    models.SignalHold,
		Position:  w.dec.Position().State,
		Books:     make(map[string]models.BookLevel, len(snap.Quotes)),
	}
	for ex, q := range snap.Quotes {
		v.Books[ex] = models.BookLevel{
			Bid:       q.Bid,
			Ask:       q.Ask,
			BidSize:   q.BidSize,
			AskSize:   q.AskSize,
			Timestamp: q.Timestamp,
		}
	}
	if snap.Valid {
		v.MidPrice = models.Float(snap.MidPrice)
		v.Spread = models.Float(snap.Spread)
	}

	if errors.Is(sigErr, models.ErrFeedStale) {
		v.MarkStale()
		w.view.Store(v)
		return
	}

	last := sig
	if last == nil {
		last = w.sig.Last()
	}
	if last != nil {
		v.RawZScore = models.Float(last.RawZScore)
		v.AdaptiveThreshold = models.Float(last.AdaptiveThreshold)
		v.SignalStrength = models.Float(last.SignalStrength)
		v.MomentumScore = models.Float(last.MomentumScore)
	}
	if sig != nil && sig.Triggered() && sig.Side != models.SideNone {
		v.Signal = string(sig.Side)
	}
	// Warm-up is not an error: the signal fields simply stay null.
	if sigErr != nil && !errors.Is(sigErr, models.ErrInsufficientHistory) {
		v.Error = sigErr.Error()
	}
	w.view.Store(v)
}
