package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"StatArb/internal/domain/models"
	drepo "StatArb/internal/domain/repository"
	"StatArb/internal/services/execution"
	"StatArb/internal/services/ledger"
	"StatArb/internal/services/orderbook"
	"StatArb/internal/services/signal"
	"StatArb/pkg/logger"
)

var (
	// ErrEngineStopped is returned by Dispatch once Stop has begun.
	ErrEngineStopped = errors.New("engine stopped")
	// ErrBackpressure means a symbol queue stayed full past the dispatch timeout.
	ErrBackpressure = errors.New("symbol queue full")
)

type EngineConfig struct {
	Symbols    []string
	Exchanges  []string
	StaleAfter time.Duration
	QueueSize  int
	// DispatchTimeout bounds how long Dispatch waits on a full symbol queue.
	// Zero waits until the context ends.
	DispatchTimeout time.Duration

	Signal    signal.Config
	Execution execution.Config
	// MaxPosition overrides Execution.MaxPosition per symbol.
	MaxPosition map[string]float64
}

// TradeSink receives closed trades and signals from the symbol tasks. The
// TradeRecorder is the production implementation.
type TradeSink interface {
	Submit(ctx context.Context, t models.Trade) error
	OfferSignal(s *models.Signal)
}

// Engine owns one task per symbol. Each task holds its aggregator, signal
// state and position exclusively; the ledger is the only shared structure
// and is written by the TradeSink alone.
type Engine struct {
	cfg     EngineConfig
	workers map[string]*symbolWorker
	symbols []string
	ledger  *ledger.Ledger
	metrics drepo.Metrics
	logger  *logger.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewEngine(cfg EngineConfig, l *ledger.Ledger, sink TradeSink, metrics drepo.Metrics, log *logger.Logger) (*Engine, error) {
	if len(cfg.Exchanges) < 2 {
		return nil, fmt.Errorf("engine needs at least two exchanges, got %d", len(cfg.Exchanges))
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("engine needs at least one symbol")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	e := &Engine{
		cfg:     cfg,
		workers: make(map[string]*symbolWorker, len(cfg.Symbols)),
		ledger:  l,
		metrics: metrics,
		logger:  log,
	}
	for _, sym := range cfg.Symbols {
		if _, dup := e.workers[sym]; dup {
			return nil, fmt.Errorf("duplicate symbol %q", sym)
		}
		exec := cfg.Execution
		if max, ok := cfg.MaxPosition[sym]; ok {
			exec.MaxPosition = max
		}
		e.workers[sym] = &symbolWorker{
			symbol: sym,
			in:     make(chan event, cfg.QueueSize),
			agg: orderbook.New(sym, orderbook.Config{
				Exchanges:  cfg.Exchanges,
				StaleAfter: cfg.StaleAfter,
			}),
			sig:     signal.NewEngine(sym, cfg.Signal),
			dec:     execution.NewDecider(sym, exec, l),
			sink:    sink,
			metrics: metrics,
			logger:  log.With(logger.Symbol(sym)),
		}
		e.symbols = append(e.symbols, sym)
	}
	sort.Strings(e.symbols)
	return e, nil
}

// Start launches the symbol tasks. They run until ctx ends or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	for _, w := range e.workers {
		e.wg.Add(1)
		go func(w *symbolWorker) {
			defer e.wg.Done()
			w.run(ctx)
		}(w)
	}
	e.logger.Info("engine started",
		logger.Strings("symbols", e.symbols),
		logger.Strings("exchanges", e.cfg.Exchanges))
}

// Stop refuses new quotes, lets every task drain its queue and waits.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for _, w := range e.workers {
		close(w.in)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Dispatch routes q to the task owning its symbol. Quotes from one caller
// keep their order.
func (e *Engine) Dispatch(ctx context.Context, q *models.Quote) error {
	w, ok := e.workers[q.Symbol]
	if !ok {
		return fmt.Errorf("dispatch %s: %w", q.Symbol, models.ErrInvalidSymbol)
	}
	return e.send(ctx, w, event{quote: q})
}

// Disconnect clears exchange's quotes on every symbol.
func (e *Engine) Disconnect(exchange string) {
	now := time.Now()
	for _, w := range e.workers {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := e.send(ctx, w, event{disconnect: exchange, at: now}); err != nil && !errors.Is(err, ErrEngineStopped) {
			e.logger.Warn("disconnect not delivered", logger.Symbol(w.symbol), logger.Exchange(exchange), logger.Error(err))
		}
		cancel()
	}
}

func (e *Engine) send(ctx context.Context, w *symbolWorker, ev event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return ErrEngineStopped
	}

	select {
	case w.in <- ev:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if e.cfg.DispatchTimeout > 0 {
		t := time.NewTimer(e.cfg.DispatchTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case w.in <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%s: %w", w.symbol, ErrBackpressure)
	}
}

func (e *Engine) Symbols() []string {
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// MarketData returns the view last published by symbol's task. A view older
// than the staleness window at now is reported as stale.
func (e *Engine) MarketData(symbol string, now time.Time) (*models.MarketData, error) {
	w, ok := e.workers[symbol]
	if !ok {
		return nil, fmt.Errorf("market data %s: %w", symbol, models.ErrInvalidSymbol)
	}
	v := w.view.Load()
	if v == nil {
		return &models.MarketData{
			Symbol:   symbol,
			Signal:   models.SignalHold,
			Position: models.PositionFlat,
			Error:    "awaiting quotes",
		}, nil
	}
	if v.Error == "" && !v.Timestamp.IsZero() && now.Sub(v.Timestamp) > e.staleAfter() {
		cp := *v
		cp.MarkStale()
		return &cp, nil
	}
	return v, nil
}

func (e *Engine) AllMarketData(now time.Time) map[string]*models.MarketData {
	out := make(map[string]*models.MarketData, len(e.symbols))
	for _, sym := range e.symbols {
		v, _ := e.MarketData(sym, now)
		out[sym] = v
	}
	return out
}

func (e *Engine) OpenPositions() int {
	n := 0
	for _, w := range e.workers {
		if v := w.view.Load(); v != nil && v.Position == models.PositionOpen {
			n++
		}
	}
	return n
}

// Ledger exposes the performance ledger to the read side.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

func (e *Engine) staleAfter() time.Duration {
	if e.cfg.StaleAfter > 0 {
		return e.cfg.StaleAfter
	}
	return orderbook.DefaultStaleAfter
}
