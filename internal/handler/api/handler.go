// Package api serves the read-only HTTP surface: per-symbol market views and
// the simulation ledger. Nothing here mutates engine state.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	drepo "StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
	"StatArb/internal/service/metrics"
	xhttp "StatArb/pkg/http"
	xlogger "StatArb/pkg/logger"
)

// Thresholds are the start-up trading parameters echoed by /simulation/status.
type Thresholds struct {
	ZScoreThreshold float64
	TradeAmount     float64
	ExitZThreshold  float64
	StopLossAmount  float64
}

// HealthCheck reports one dependency.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	basePath   string
	market     service.MarketReader
	ledger     service.LedgerReader
	history    drepo.TradeStore
	thresholds Thresholds
	checks     map[string]HealthCheck
	logger     *xlogger.Logger
	now        func() time.Time
}

type Option func(*Handler)

// WithHistory enables /simulation/history against an external trade store.
func WithHistory(store drepo.TradeStore) Option {
	return func(h *Handler) { h.history = store }
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) { h.checks[name] = check }
}

func WithBasePath(p string) Option {
	return func(h *Handler) { h.basePath = strings.TrimRight(p, "/") }
}

func NewHandler(market service.MarketReader, ledger service.LedgerReader, th Thresholds, logger *xlogger.Logger, opts ...Option) *Handler {
	metrics.Register()
	h := &Handler{
		market:     market,
		ledger:     ledger,
		thresholds: th,
		checks:     make(map[string]HealthCheck),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group(h.basePath)
	g.GET("/market_data/all", h.AllMarketData)
	g.GET("/market_data/*", h.MarketData)
	g.GET("/simulation/status", h.Status)
	g.GET("/simulation/trades", h.Trades)
	g.GET("/simulation/leaderboard", h.Leaderboard)
	g.GET("/simulation/history", h.History)
	g.GET("/health", h.Health)
}

// Health is 200 when every registered check passes, 503 otherwise.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	report := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			healthy = false
			continue
		}
		report[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, report)
	}
	return xhttp.SuccessResponse(c, report)
}

var _ xhttp.Handler = (*Handler)(nil)
