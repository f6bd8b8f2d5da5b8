package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"StatArb/internal/domain/models"
	"StatArb/internal/service/metrics"
	xhttp "StatArb/pkg/http"
	xlogger "StatArb/pkg/logger"
)

// MarketData serves GET /market_data/{symbol}. The symbol contains a slash,
// so it is matched by the wildcard and may arrive escaped.
func (h *Handler) MarketData(c echo.Context) error {
	defer metrics.Since("market_data", time.Now())

	symbol, err := url.PathUnescape(c.Param("*"))
	if err != nil || symbol == "" {
		metrics.Error("market_data", "bad_symbol")
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("malformed symbol %q", c.Param("*")))
	}

	md, err := h.market.MarketData(symbol, h.now())
	if err != nil {
		if errors.Is(err, models.ErrInvalidSymbol) {
			metrics.Error("market_data", "InvalidSymbol")
			return xhttp.AppErrorResponse(c, invalidSymbol(symbol).WithError(err))
		}
		h.logger.Error("market data read failed", xlogger.Symbol(symbol), xlogger.Error(err))
		metrics.Error("market_data", "internal")
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, md)
}

func invalidSymbol(symbol string) *xhttp.AppError {
	return xhttp.NewAppError("InvalidSymbol", "symbol", "symbol is not configured", http.StatusNotFound).
		WithParam("symbol", symbol)
}

// AllMarketData serves GET /market_data/all keyed by symbol.
func (h *Handler) AllMarketData(c echo.Context) error {
	defer metrics.Since("market_data_all", time.Now())
	return xhttp.SuccessResponse(c, h.market.AllMarketData(h.now()))
}
