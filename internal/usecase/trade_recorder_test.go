package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"StatArb/internal/domain/models"
	"StatArb/internal/services/ledger"
	"StatArb/pkg/logger"
	"StatArb/pkg/metrics"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishTrade(ctx context.Context, t *models.Trade) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockPublisher) PublishTrades(ctx context.Context, trades []*models.Trade) error {
	return m.Called(ctx, trades).Error(0)
}

func (m *mockPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

type mockStore struct{ mock.Mock }

func (m *mockStore) Init(ctx context.Context) error { return nil }

func (m *mockStore) Store(ctx context.Context, t *models.Trade) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockStore) StoreBatch(ctx context.Context, trades []*models.Trade) error {
	return m.Called(ctx, trades).Error(0)
}

func (m *mockStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Trade, error) {
	args := m.Called(ctx, symbol, from, to, limit)
	out, _ := args.Get(0).([]*models.Trade)
	return out, args.Error(1)
}

func (m *mockStore) Health(ctx context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyTrade(ctx context.Context, t *models.Trade) error {
	return m.Called(ctx, t).Error(0)
}

func closedTrade(id string, pnl float64) models.Trade {
	return models.Trade{
		ID: id, Timestamp: t0, Symbol: sym,
		BuyExchange: "kraken", BuyPrice: 100,
		SellExchange: "binance", SellPrice: 100 + pnl,
		Amount: 1, PnL: pnl, ExitReason: models.ExitReversion,
	}
}

func runRecorder(r *TradeRecorder) chan error {
	ch := make(chan error, 1)
	go func() { ch <- r.Run(context.Background()) }()
	return ch
}

func TestTradeRecorder_KafkaBatches(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("PublishTrades", mock.Anything, mock.MatchedBy(func(ts []*models.Trade) bool { return len(ts) == 2 })).
		Return(nil).Twice()

	l := ledger.New(10, []string{sym})
	r := NewTradeRecorder(RecorderConfig{Backend: BackendKafka, BatchSize: 2, BatchTimeout: time.Hour}, l, pub, nil, nil, metrics.Nop{}, logger.Nop())
	done := runRecorder(r)

	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, r.Submit(ctx, closedTrade(id, float64(i))))
	}
	r.Close()
	require.NoError(t, <-done)

	pub.AssertExpectations(t)
	assert.Equal(t, 4, l.Status().TotalTrades)
	assert.InDelta(t, 6.0, l.Status().TotalPnL, 1e-12)
}

func TestTradeRecorder_ClickHouseFlushOnClose(t *testing.T) {
	store := &mockStore{}
	store.On("StoreBatch", mock.Anything, mock.MatchedBy(func(ts []*models.Trade) bool { return len(ts) == 1 })).
		Return(nil).Once()

	l := ledger.New(10, []string{sym})
	r := NewTradeRecorder(RecorderConfig{Backend: BackendClickHouse, BatchSize: 10, BatchTimeout: time.Hour}, l, nil, store, nil, metrics.Nop{}, logger.Nop())
	done := runRecorder(r)

	require.NoError(t, r.Submit(context.Background(), closedTrade("a", 1)))
	r.Close()
	require.NoError(t, <-done)
	store.AssertExpectations(t)
}

func TestTradeRecorder_BackendFailureKeepsLedger(t *testing.T) {
	store := &mockStore{}
	store.On("StoreBatch", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	l := ledger.New(10, []string{sym})
	r := NewTradeRecorder(RecorderConfig{Backend: BackendClickHouse, BatchSize: 1}, l, nil, store, nil, metrics.Nop{}, logger.Nop())
	done := runRecorder(r)

	require.NoError(t, r.Submit(context.Background(), closedTrade("a", -1)))
	r.Close()
	require.NoError(t, <-done)
	assert.Equal(t, 1, l.Status().TotalTrades)
}

func TestTradeRecorder_Notifies(t *testing.T) {
	n := &mockNotifier{}
	n.On("NotifyTrade", mock.Anything, mock.MatchedBy(func(tr *models.Trade) bool { return tr.ID == "a" })).Return(nil).Once()

	l := ledger.New(10, []string{sym})
	r := NewTradeRecorder(RecorderConfig{}, l, nil, nil, n, metrics.Nop{}, logger.Nop())
	done := runRecorder(r)

	require.NoError(t, r.Submit(context.Background(), closedTrade("a", 1)))
	r.Close()
	require.NoError(t, <-done)
	n.AssertExpectations(t)
}

func TestTradeRecorder_SignalsOnlyOnKafka(t *testing.T) {
	got := make(chan struct{})
	pub := &mockPublisher{}
	pub.On("PublishSignal", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(got) }).
		Return(nil).Once()

	l := ledger.New(10, []string{sym})
	r := NewTradeRecorder(RecorderConfig{Backend: BackendKafka}, l, pub, nil, nil, metrics.Nop{}, logger.Nop())
	done := runRecorder(r)
	r.OfferSignal(&models.Signal{Symbol: sym, RawZScore: 3})

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("signal not published")
	}
	r.Close()
	require.NoError(t, <-done)

	none := NewTradeRecorder(RecorderConfig{}, l, pub, nil, nil, metrics.Nop{}, logger.Nop())
	none.OfferSignal(&models.Signal{Symbol: sym})
	assert.Empty(t, none.signals)
}

func TestTradeRecorder_SubmitAfterStop(t *testing.T) {
	r := NewTradeRecorder(RecorderConfig{}, ledger.New(1, nil), nil, nil, nil, metrics.Nop{}, logger.Nop())
	done := runRecorder(r)
	r.Close()
	require.NoError(t, <-done)

	assert.ErrorIs(t, r.Submit(context.Background(), closedTrade("x", 0)), ErrRecorderClosed)
}

func TestTradeRecorder_ContextCancelDrains(t *testing.T) {
	l := ledger.New(10, []string{sym})
	r := NewTradeRecorder(RecorderConfig{}, l, nil, nil, nil, metrics.Nop{}, logger.Nop())

	// queued before Run starts, so the drain path has to pick them up
	require.NoError(t, r.Submit(context.Background(), closedTrade("a", 1)))
	require.NoError(t, r.Submit(context.Background(), closedTrade("b", 2)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 2, l.Status().TotalTrades)
}
