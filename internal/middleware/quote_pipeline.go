package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StatArb/internal/domain/models"
	domrepo "StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
)

// Tap observes every accepted quote, e.g. to record a replay file.
type Tap interface {
	Write(q *models.Quote) error
}

// QuotePipeline sits between the feed collectors and the engine. It
// validates, throttles per (exchange, symbol), optionally records, and
// buffers quotes the engine could not take yet.
//
// The buffer holds at most one quote per (exchange, symbol), the newest. While
// a key has a buffered quote every later quote for it goes through the buffer
// too, so the engine never sees a key's quotes out of arrival order.
type QuotePipeline struct {
	sink    service.QuoteSink
	metrics domrepo.Metrics
	tap     Tap
	maxRPS  int
	bufSize int

	// gate orders buffered deliveries against Disconnect.
	gate sync.RWMutex

	mu       sync.Mutex
	lastSeen map[string]time.Time
	pending  map[string]*models.Quote
	order    []string
	wake     chan struct{}
	started  bool
	stopCh   chan struct{}
	done     chan struct{}
}

type PipelineOption func(*QuotePipeline)

// WithMaxRPS caps accepted quotes per second per (exchange, symbol). Zero
// disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *QuotePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many (exchange, symbol) keys may wait while the
// engine is busy.
func WithBufferSize(n int) PipelineOption {
	return func(p *QuotePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithTap(t Tap) PipelineOption {
	return func(p *QuotePipeline) { p.tap = t }
}

func NewQuotePipeline(sink service.QuoteSink, metrics domrepo.Metrics, opts ...PipelineOption) *QuotePipeline {
	p := &QuotePipeline{
		sink:     sink,
		metrics:  metrics,
		bufSize:  1024,
		lastSeen: make(map[string]time.Time),
		pending:  make(map[string]*models.Quote),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func quoteKey(q *models.Quote) string { return q.Exchange + "|" + q.Symbol }

// Start launches the retry loop draining buffered quotes.
func (p *QuotePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

func (p *QuotePipeline) flushLoop(ctx context.Context) {
	defer close(p.done)

	const minBackoff = 20 * time.Millisecond
	backoff := minBackoff
	retry := time.NewTimer(minBackoff)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.wake:
		case <-retry.C:
		}

		if p.flush(ctx) {
			backoff = minBackoff
			continue
		}
		p.metrics.RecordError("pipeline_flush")
		if backoff < time.Second {
			backoff *= 2
		}
		if !retry.Stop() {
			select {
			case <-retry.C:
			default:
			}
		}
		retry.Reset(backoff)
	}
}

// flush delivers buffered keys oldest first. It stops at the first key the
// engine refuses and reports false so the loop backs off.
func (p *QuotePipeline) flush(ctx context.Context) bool {
	for {
		p.mu.Lock()
		if len(p.order) == 0 {
			p.mu.Unlock()
			return true
		}
		key := p.order[0]
		p.mu.Unlock()

		p.gate.RLock()
		// Disconnect may have purged the key while unlocked.
		p.mu.Lock()
		q, ok := p.pending[key]
		p.mu.Unlock()
		if !ok {
			p.gate.RUnlock()
			continue
		}
		err := p.sink.Dispatch(ctx, q)
		p.gate.RUnlock()

		if err != nil && !errors.Is(err, models.ErrInvalidSymbol) {
			if ctx.Err() != nil {
				return true
			}
			return false
		}

		p.mu.Lock()
		if p.pending[key] == q {
			p.removeLocked(key)
		} else if len(p.order) > 0 && p.order[0] == key {
			// a newer quote arrived meanwhile; it goes to the back
			p.order = append(p.order[1:], key)
		}
		p.mu.Unlock()
	}
}

func (p *QuotePipeline) removeLocked(key string) {
	delete(p.pending, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// Stop ends the retry loop. Buffered quotes are dropped.
func (p *QuotePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
}

// Dispatch validates q and forwards it to the engine. Throttled quotes are
// dropped silently. A quote the engine refuses for load reasons is buffered
// and counts as accepted; only a full buffer is reported.
func (p *QuotePipeline) Dispatch(ctx context.Context, q *models.Quote) error {
	start := time.Now()
	if q == nil {
		p.metrics.RecordError("pipeline_validate")
		return fmt.Errorf("quote nil")
	}
	if err := q.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	key := quoteKey(q)
	if !p.allow(key, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if p.tap != nil {
		if err := p.tap.Write(q); err != nil {
			p.metrics.RecordError("pipeline_tap")
		}
	}

	p.mu.Lock()
	if _, waiting := p.pending[key]; waiting {
		// older quote still queued: supersede it in place
		p.pending[key] = q
		p.mu.Unlock()
		p.metrics.RecordError("pipeline_coalesced")
		return nil
	}
	p.mu.Unlock()

	p.gate.RLock()
	err := p.sink.Dispatch(ctx, q)
	p.gate.RUnlock()
	if err == nil {
		p.metrics.RecordLatency("pipeline_dispatch", time.Since(start).Seconds())
		return nil
	}
	if errors.Is(err, models.ErrInvalidSymbol) || ctx.Err() != nil {
		return err
	}

	p.metrics.RecordError("pipeline_dispatch")
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, waiting := p.pending[key]; !waiting && len(p.order) >= p.bufSize {
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("pipeline buffer full: %w", err)
	}
	if _, waiting := p.pending[key]; !waiting {
		p.order = append(p.order, key)
	}
	p.pending[key] = q
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Disconnect drops the exchange's buffered quotes, then passes feed loss
// through. It is never throttled, and no quote buffered before it can reach
// the engine after it.
func (p *QuotePipeline) Disconnect(exchange string) {
	p.gate.Lock()
	defer p.gate.Unlock()

	p.mu.Lock()
	for key, q := range p.pending {
		if q.Exchange == exchange {
			p.removeLocked(key)
		}
	}
	p.mu.Unlock()
	p.sink.Disconnect(exchange)
}

// Buffered reports how many quotes wait for retry.
func (p *QuotePipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

func (p *QuotePipeline) allow(key string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.lastSeen[key]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}
