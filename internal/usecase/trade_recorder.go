package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StatArb/internal/domain/models"
	drepo "StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
	"StatArb/internal/services/ledger"
	"StatArb/pkg/logger"
)

const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// ErrRecorderClosed is returned by Submit after the recorder stopped.
var ErrRecorderClosed = errors.New("trade recorder closed")

type RecorderConfig struct {
	Backend      string
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

// TradeRecorder is the single writer of the ledger. Closed trades arrive on
// one channel, are recorded in order, then forwarded in batches to the
// configured backend. Triggered signals go to the event bus best effort.
type TradeRecorder struct {
	cfg      RecorderConfig
	ledger   *ledger.Ledger
	pub      drepo.Publisher
	store    drepo.TradeStore
	notifier service.Notifier
	metrics  drepo.Metrics
	logger   *logger.Logger

	in      chan models.Trade
	signals chan *models.Signal
	done    chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func NewTradeRecorder(
	cfg RecorderConfig,
	l *ledger.Ledger,
	pub drepo.Publisher,
	store drepo.TradeStore,
	notifier service.Notifier,
	metrics drepo.Metrics,
	log *logger.Logger,
) *TradeRecorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendNone
	}
	return &TradeRecorder{
		cfg:      cfg,
		ledger:   l,
		pub:      pub,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   log,
		in:       make(chan models.Trade, cfg.QueueSize),
		signals:  make(chan *models.Signal, cfg.QueueSize),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Submit hands t to the writer. It blocks while the queue is full.
func (r *TradeRecorder) Submit(ctx context.Context, t models.Trade) error {
	select {
	case <-r.closed:
		return ErrRecorderClosed
	case <-r.done:
		return ErrRecorderClosed
	default:
	}
	select {
	case r.in <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRecorderClosed
	}
}

// OfferSignal queues s for publication and drops it when the queue is full.
func (r *TradeRecorder) OfferSignal(s *models.Signal) {
	if r.cfg.Backend != BackendKafka || r.pub == nil {
		return
	}
	select {
	case r.signals <- s:
	default:
		r.metrics.RecordError("signal_drop")
	}
}

// Close stops accepting trades. Run drains what is queued and returns.
// Callers must stop every submitter first.
func (r *TradeRecorder) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		close(r.in)
	})
}

// Done is closed once Run has returned.
func (r *TradeRecorder) Done() <-chan struct{} { return r.done }

// Run records trades until Close or ctx ends. A ledger write conflict means
// a second writer exists; that is fatal and returned.
func (r *TradeRecorder) Run(ctx context.Context) error {
	defer close(r.done)

	batch := make([]*models.Trade, 0, r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		r.forward(fctx, batch)
		batch = make([]*models.Trade, 0, r.cfg.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			err := r.drain(&batch)
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return err
		case t, ok := <-r.in:
			if !ok {
				fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(fctx)
				cancel()
				return nil
			}
			if err := r.record(ctx, t, &batch); err != nil {
				return err
			}
			if len(batch) >= r.cfg.BatchSize {
				flush(ctx)
			}
		case s := <-r.signals:
			if err := r.pub.PublishSignal(ctx, s); err != nil {
				r.metrics.RecordError("publish_signal")
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// drain records trades already queued when the context ended.
func (r *TradeRecorder) drain(batch *[]*models.Trade) error {
	for {
		select {
		case t, ok := <-r.in:
			if !ok {
				return nil
			}
			if err := r.record(context.Background(), t, batch); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (r *TradeRecorder) record(ctx context.Context, t models.Trade, batch *[]*models.Trade) error {
	if err := r.ledger.Record(t); err != nil {
		r.metrics.RecordError("ledger_record")
		if errors.Is(err, models.ErrLedgerWriteConflict) {
			r.logger.Error("concurrent ledger writer", logger.String("trade_id", t.ID), logger.Error(err))
			return fmt.Errorf("record trade %s: %w", t.ID, err)
		}
		r.logger.Warn("trade dropped", logger.String("trade_id", t.ID), logger.Error(err))
		return nil
	}

	if r.cfg.Backend != BackendNone {
		tc := t
		*batch = append(*batch, &tc)
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyTrade(ctx, &t); err != nil {
			r.metrics.RecordError("notify")
			r.logger.Warn("trade notification failed", logger.String("trade_id", t.ID), logger.Error(err))
		}
	}
	return nil
}

// forward ships a batch to the backend. Failures are logged; the ledger
// already holds the trades.
func (r *TradeRecorder) forward(ctx context.Context, trades []*models.Trade) {
	start := time.Now()
	var err error

	switch r.cfg.Backend {
	case BackendKafka:
		if r.pub == nil {
			err = fmt.Errorf("kafka backend without publisher")
			break
		}
		err = r.pub.PublishTrades(ctx, trades)
	case BackendClickHouse:
		if r.store == nil {
			err = fmt.Errorf("clickhouse backend without store")
			break
		}
		err = r.store.StoreBatch(ctx, trades)
	default:
		return
	}

	if err != nil {
		r.metrics.RecordError("forward_batch")
		r.logger.Error("forward trades", logger.String("backend", r.cfg.Backend), logger.Int("count", len(trades)), logger.Error(err))
		return
	}
	for _, t := range trades {
		r.metrics.RecordMessageSent(r.cfg.Backend, t.Symbol)
	}
	r.metrics.RecordLatency("forward_batch", time.Since(start).Seconds())
}
