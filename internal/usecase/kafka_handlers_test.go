package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"StatArb/internal/domain/models"
	"StatArb/pkg/metrics"
)

func TestKafkaQuotesHandler(t *testing.T) {
	sink := &recordingSink{}
	h := NewKafkaQuotesHandler("quotes", sink, metrics.Nop{})
	assert.Equal(t, "quotes", h.Topic())

	b, err := json.Marshal(quote("binance", 100, 100.1, t0))
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), b))

	// malformed and invalid payloads are dropped, not retried
	assert.NoError(t, h.Handle(context.Background(), []byte("{")))
	bad, _ := json.Marshal(models.Quote{Exchange: "binance", Symbol: sym})
	assert.NoError(t, h.Handle(context.Background(), bad))

	n, _ := sink.snapshot()
	assert.Equal(t, 1, n)

	unknown := quote("binance", 100, 100.1, t0)
	unknown.Symbol = "DOGE/USDT"
	b, _ = json.Marshal(unknown)
	assert.NoError(t, h.Handle(context.Background(), b))
	n, _ = sink.snapshot()
	assert.Equal(t, 1, n)
}

func TestKafkaTradesHandler(t *testing.T) {
	store := &mockStore{}
	store.On("Store", mock.Anything, mock.MatchedBy(func(tr *models.Trade) bool { return tr.ID == "t-1" })).Return(nil).Once()
	store.On("Store", mock.Anything, mock.MatchedBy(func(tr *models.Trade) bool { return tr.ID == "t-2" })).Return(errors.New("down")).Once()

	h := NewKafkaTradesHandler("trades", store, metrics.Nop{})
	assert.Equal(t, "trades", h.Topic())

	b, _ := json.Marshal(closedTrade("t-1", 1))
	require.NoError(t, h.Handle(context.Background(), b))

	b, _ = json.Marshal(closedTrade("t-2", 1))
	assert.Error(t, h.Handle(context.Background(), b))

	assert.Error(t, h.Handle(context.Background(), []byte("nope")))
	store.AssertExpectations(t)
}
