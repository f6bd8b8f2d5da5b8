package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StatArb/internal/domain/models"
	"StatArb/pkg/metrics"
)

type fakeSink struct {
	mu          sync.Mutex
	got         []*models.Quote
	failures    int
	err         error
	disconnects []string
}

func (f *fakeSink) Dispatch(_ context.Context, q *models.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("queue full")
	}
	f.got = append(f.got, q)
	return nil
}

func (f *fakeSink) Disconnect(ex string) {
	f.mu.Lock()
	f.disconnects = append(f.disconnects, ex)
	f.mu.Unlock()
}

func (f *fakeSink) applied() []*models.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Quote(nil), f.got...)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type recTap struct{ n int }

func (r *recTap) Write(*models.Quote) error { r.n++; return nil }

func q(ex string, bid, ask float64) *models.Quote {
	return &models.Quote{Exchange: ex, Symbol: "BTC/USDT", Bid: bid, Ask: ask, Timestamp: time.Now()}
}

func TestQuotePipeline_ValidatesAndForwards(t *testing.T) {
	sink := &fakeSink{}
	tap := &recTap{}
	p := NewQuotePipeline(sink, metrics.Nop{}, WithTap(tap))

	require.NoError(t, p.Dispatch(context.Background(), q("binance", 100, 100.1)))
	assert.Error(t, p.Dispatch(context.Background(), q("binance", 0, 100.1)))
	assert.Error(t, p.Dispatch(context.Background(), nil))

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, tap.n)
}

func TestQuotePipeline_ThrottlesPerExchangeSymbol(t *testing.T) {
	sink := &fakeSink{}
	p := NewQuotePipeline(sink, metrics.Nop{}, WithMaxRPS(1))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Dispatch(context.Background(), q("binance", 100, 100.1)))
	}
	require.NoError(t, p.Dispatch(context.Background(), q("kraken", 100, 100.1)))
	assert.Equal(t, 2, sink.count())
}

func TestQuotePipeline_BuffersAndRetries(t *testing.T) {
	sink := &fakeSink{failures: 2}
	p := NewQuotePipeline(sink, metrics.Nop{}, WithBufferSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Dispatch(ctx, q("binance", 100, 100.1)))
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	defer p.Stop()
	assert.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestQuotePipeline_InvalidSymbolIsNotBuffered(t *testing.T) {
	sink := &fakeSink{err: models.ErrInvalidSymbol}
	p := NewQuotePipeline(sink, metrics.Nop{})

	err := p.Dispatch(context.Background(), q("binance", 100, 100.1))
	assert.ErrorIs(t, err, models.ErrInvalidSymbol)
	assert.Equal(t, 0, p.Buffered())
}

func TestQuotePipeline_DisconnectPassesThrough(t *testing.T) {
	sink := &fakeSink{}
	p := NewQuotePipeline(sink, metrics.Nop{})
	p.Disconnect("kraken")
	assert.Equal(t, []string{"kraken"}, sink.disconnects)
}

func TestQuotePipeline_BufferedKeyKeepsArrivalOrder(t *testing.T) {
	sink := &fakeSink{failures: 1}
	p := NewQuotePipeline(sink, metrics.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t0 := time.Now()
	older := &models.Quote{Exchange: "binance", Symbol: "BTC/USDT", Bid: 100, Ask: 100.1, Timestamp: t0}
	newer := &models.Quote{Exchange: "binance", Symbol: "BTC/USDT", Bid: 101, Ask: 101.1, Timestamp: t0.Add(time.Second)}

	require.NoError(t, p.Dispatch(ctx, older))
	require.NoError(t, p.Dispatch(ctx, newer))
	assert.Equal(t, 0, sink.count(), "newer quote must not overtake the buffered one")
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	defer p.Stop()
	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	got := sink.applied()
	assert.Equal(t, 101.0, got[len(got)-1].Bid)
	assert.Equal(t, 0, p.Buffered())
}

func TestQuotePipeline_OtherKeysStillFlowWhileOneWaits(t *testing.T) {
	sink := &fakeSink{failures: 1}
	p := NewQuotePipeline(sink, metrics.Nop{})

	require.NoError(t, p.Dispatch(context.Background(), q("binance", 100, 100.1)))
	require.NoError(t, p.Dispatch(context.Background(), q("kraken", 100, 100.1)))

	got := sink.applied()
	require.Len(t, got, 1)
	assert.Equal(t, "kraken", got[0].Exchange)
	assert.Equal(t, 1, p.Buffered())
}

func TestQuotePipeline_DisconnectPurgesBufferedQuotes(t *testing.T) {
	sink := &fakeSink{failures: 2}
	p := NewQuotePipeline(sink, metrics.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Dispatch(ctx, q("kraken", 100, 100.1)))
	require.NoError(t, p.Dispatch(ctx, q("binance", 100, 100.1)))
	require.Equal(t, 2, p.Buffered())

	p.Disconnect("kraken")
	assert.Equal(t, 1, p.Buffered())
	assert.Equal(t, []string{"kraken"}, sink.disconnects)

	p.Start(ctx)
	defer p.Stop()
	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "binance", sink.applied()[0].Exchange)
	assert.Never(t, func() bool { return sink.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestQuotePipeline_FullBufferReportsError(t *testing.T) {
	sink := &fakeSink{failures: 2}
	p := NewQuotePipeline(sink, metrics.Nop{}, WithBufferSize(1))

	require.NoError(t, p.Dispatch(context.Background(), q("binance", 100, 100.1)))
	assert.Error(t, p.Dispatch(context.Background(), q("kraken", 100, 100.1)))
	assert.Equal(t, 1, p.Buffered())
}
