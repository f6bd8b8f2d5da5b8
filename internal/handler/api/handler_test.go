package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"StatArb/internal/domain/models"
	"StatArb/internal/services/ledger"
	"StatArb/pkg/logger"
)

var now = time.Date(2024, 5, 2, 18, 0, 0, 0, time.UTC)

type stubMarket struct {
	views map[string]*models.MarketData
	open  int
}

func (s *stubMarket) Symbols() []string {
	out := make([]string, 0, len(s.views))
	for k := range s.views {
		out = append(out, k)
	}
	return out
}

func (s *stubMarket) MarketData(symbol string, _ time.Time) (*models.MarketData, error) {
	md, ok := s.views[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, models.ErrInvalidSymbol)
	}
	return md, nil
}

func (s *stubMarket) AllMarketData(time.Time) map[string]*models.MarketData { return s.views }

func (s *stubMarket) OpenPositions() int { return s.open }

type mockStore struct{ mock.Mock }

func (m *mockStore) Init(context.Context) error                        { return nil }
func (m *mockStore) Store(context.Context, *models.Trade) error        { return nil }
func (m *mockStore) StoreBatch(context.Context, []*models.Trade) error { return nil }
func (m *mockStore) Health(context.Context) error                      { return nil }
func (m *mockStore) Close() error                                      { return nil }
func (m *mockStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Trade, error) {
	args := m.Called(symbol, from, to, limit)
	out, _ := args.Get(0).([]*models.Trade)
	return out, args.Error(1)
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, opts ...Option) (*echo.Echo, *ledger.Ledger) {
	t.Helper()
	market := &stubMarket{
		open: 1,
		views: map[string]*models.MarketData{
			"BTC/USDT": {
				Timestamp: now, Symbol: "BTC/USDT",
				MidPrice: models.Float(64000.5), RawZScore: models.Float(2.4),
				Signal: string(models.SideShort), Position: models.PositionOpen,
			},
			"ETH/USDT": {
				Timestamp: now, Symbol: "ETH/USDT",
				Signal: models.SignalHold, Position: models.PositionFlat,
				Error: models.ErrFeedStale.Error(),
			},
		},
	}
	l := ledger.New(100, []string{"BTC/USDT", "ETH/USDT"})
	for i, pnl := range []float64{1.5, -0.5, 2} {
		require.NoError(t, l.Record(models.Trade{
			ID: fmt.Sprintf("t%d", i), Symbol: "BTC/USDT", Timestamp: now.Add(time.Duration(i) * time.Minute),
			BuyExchange: "kraken", SellExchange: "binance", BuyPrice: 100, SellPrice: 100 + pnl, Amount: 1, PnL: pnl,
		}))
	}

	h := NewHandler(market, l, Thresholds{ZScoreThreshold: 1.2, TradeAmount: 0.001, ExitZThreshold: 0.3, StopLossAmount: 5}, logger.Nop(), opts...)
	h.now = func() time.Time { return now }
	e := echo.New()
	h.RegisterRoutes(e)
	return e, l
}

func get(t *testing.T, e *echo.Echo, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestMarketData(t *testing.T) {
	e, _ := newTestServer(t)

	for _, path := range []string{"/market_data/BTC/USDT", "/market_data/BTC%2FUSDT"} {
		rec, env := get(t, e, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var md models.MarketData
		require.NoError(t, json.Unmarshal(env.Data, &md))
		assert.Equal(t, "BTC/USDT", md.Symbol)
		require.NotNil(t, md.MidPrice)
		assert.InDelta(t, 64000.5, *md.MidPrice, 1e-9)
		assert.Equal(t, "SHORT_SPREAD", md.Signal)
	}

	// stale symbols answer 200 with the error field and null numbers
	rec, env := get(t, e, "/market_data/ETH/USDT")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &raw))
	assert.Equal(t, "feed stale", raw["error"])
	assert.Nil(t, raw["raw_zscore"])
	assert.Contains(t, raw, "raw_zscore")

	rec, env = get(t, e, "/market_data/DOGE/USDT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, string(env.Data), "InvalidSymbol")
}

func TestAllMarketData(t *testing.T) {
	e, _ := newTestServer(t)
	rec, env := get(t, e, "/market_data/all")
	require.Equal(t, http.StatusOK, rec.Code)

	var all map[string]models.MarketData
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)
	assert.Equal(t, models.SignalHold, all["ETH/USDT"].Signal)
}

func TestStatus(t *testing.T) {
	e, _ := newTestServer(t)
	rec, env := get(t, e, "/simulation/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.SimulationStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 3, st.TotalTrades)
	assert.InDelta(t, 3.0, st.TotalPnL, 1e-12)
	assert.InDelta(t, 2.0/3.0, st.WinRate, 1e-12)
	assert.Equal(t, 1, st.OpenPositions)
	assert.Equal(t, 1.2, st.ZScoreThreshold)
	assert.Equal(t, 0.001, st.TradeAmount)
	assert.Equal(t, 0.3, st.ExitZThreshold)
	assert.Equal(t, 5.0, st.StopLossAmount)
}

func TestTrades(t *testing.T) {
	e, _ := newTestServer(t)

	rec, env := get(t, e, "/simulation/trades?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []models.Trade
	require.NoError(t, json.Unmarshal(env.Data, &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, "t2", trades[0].ID)
	assert.Equal(t, "t1", trades[1].ID)

	// default limit
	_, env = get(t, e, "/simulation/trades")
	require.NoError(t, json.Unmarshal(env.Data, &trades))
	assert.Len(t, trades, 3)

	for _, q := range []string{"limit=5000", "limit=-1", "limit=abc"} {
		rec, _ := get(t, e, "/simulation/trades?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestLeaderboard(t *testing.T) {
	e, _ := newTestServer(t)
	rec, env := get(t, e, "/simulation/leaderboard")
	require.Equal(t, http.StatusOK, rec.Code)

	var board []models.LeaderboardEntry
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board, 2)
	assert.Equal(t, "BTC/USDT", board[0].Symbol)
	assert.Equal(t, 3, board[0].TradeCount)
	assert.Equal(t, "ETH/USDT", board[1].Symbol)
	assert.Equal(t, 0, board[1].TradeCount)
}

func TestHistory(t *testing.T) {
	e, _ := newTestServer(t)
	rec, _ := get(t, e, "/simulation/history")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	store := &mockStore{}
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.On("Query", "BTC/USDT", from, now, 50).
		Return([]*models.Trade{{ID: "h1"}, {ID: "h2"}}, nil).Once()
	store.On("Query", "", now.Add(-24*time.Hour), now, 100).
		Return(nil, errors.New("clickhouse: connection refused")).Once()

	e, _ = newTestServer(t, WithHistory(store))
	rec, env := get(t, e, "/simulation/history?symbol=BTC/USDT&from=2024-05-01T00:00:00Z&limit=50")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.Trade `json:"rows"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
	assert.Equal(t, "h1", list.Rows[0].ID)

	rec, _ = get(t, e, "/simulation/history")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = get(t, e, "/simulation/history?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, e, "/simulation/history?from=2024-05-03T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, e, "/simulation/history?symbol=DOGE/USDT")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t,
		WithHealthCheck("engine", func(context.Context) error { return nil }),
		WithHealthCheck("clickhouse", func(context.Context) error { return errors.New("down") }))
	rec, env := get(t, e, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, string(env.Data), `"clickhouse":"down"`)
}

func TestBasePath(t *testing.T) {
	e, _ := newTestServer(t, WithBasePath("/api/v1/"))
	rec, _ := get(t, e, "/api/v1/simulation/status")
	assert.Equal(t, http.StatusOK, rec.Code)
}
