package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StatArb/internal/domain/models"
	drepo "StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
	"StatArb/pkg/logger"
)

const backoffFactor = 1.8

type CollectorConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// QuoteCollector pumps one exchange feed into the engine and keeps it alive.
// A feed error clears that exchange's quotes before reconnecting, so no
// symbol trades on a dead leg.
type QuoteCollector struct {
	feed    drepo.FeedAdapter
	sink    service.QuoteSink
	metrics drepo.Metrics
	logger  *logger.Logger
	cfg     CollectorConfig
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewQuoteCollector(feed drepo.FeedAdapter, sink service.QuoteSink, metrics drepo.Metrics, log *logger.Logger, cfg CollectorConfig) *QuoteCollector {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	return &QuoteCollector{
		feed:    feed,
		sink:    sink,
		metrics: metrics,
		logger:  log.With(logger.Exchange(feed.Exchange())),
		cfg:     cfg,
		done:    make(chan struct{}),
	}
}

func (c *QuoteCollector) Exchange() string { return c.feed.Exchange() }

func (c *QuoteCollector) IsConnected() bool { return c.feed.IsConnected() }

// Start connects and subscribes, then consumes in the background until ctx
// ends.
func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.feed.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.feed.Exchange(), err)
	}
	if err := c.feed.Subscribe(ctx); err != nil {
		_ = c.feed.Close()
		return fmt.Errorf("subscribe %s: %w", c.feed.Exchange(), err)
	}
	ctx, c.cancel = context.WithCancel(ctx)
	go c.loop(ctx)
	c.logger.Info("feed collector started")
	return nil
}

// Done is closed when the collector has stopped.
func (c *QuoteCollector) Done() <-chan struct{} { return c.done }

func (c *QuoteCollector) loop(ctx context.Context) {
	defer close(c.done)
	for {
		qCh, errCh := c.feed.Read(ctx)
		err := c.consume(ctx, qCh, errCh)
		if ctx.Err() != nil {
			return
		}

		c.metrics.RecordError("stream")
		c.logger.Warn("feed interrupted", logger.Error(err))
		c.sink.Disconnect(c.feed.Exchange())

		if !c.reconnect(ctx) {
			return
		}
	}
}

// consume forwards quotes until the feed reports an error or closes.
func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan *models.Quote, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case q, ok := <-qCh:
			if !ok {
				return errors.New("quote stream closed")
			}
			if q == nil {
				continue
			}
			if err := c.sink.Dispatch(ctx, q); err != nil {
				if errors.Is(err, models.ErrInvalidSymbol) {
					c.metrics.RecordError("unknown_symbol")
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("quote not dispatched", logger.Symbol(q.Symbol), logger.Error(err))
			}
		}
	}
}

func (c *QuoteCollector) reconnect(ctx context.Context) bool {
	delay := c.cfg.ReconnectDelay
	for attempt := 1; ; attempt++ {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}

		err := c.feed.Reconnect(ctx)
		if err == nil {
			c.logger.Info("feed reconnected", logger.Int("attempt", attempt))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.metrics.RecordError("reconnect")
		c.logger.Warn("reconnect failed", logger.Int("attempt", attempt), logger.Duration("retry_in", delay), logger.Error(err))

		delay = time.Duration(float64(delay) * backoffFactor)
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// Shutdown closes the feed and waits for the loop to exit.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	if c.cancel == nil {
		return c.feed.Close()
	}
	c.cancel()
	err := c.feed.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
