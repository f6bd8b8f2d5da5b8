package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"StatArb/internal/domain/models"
	"StatArb/internal/service/metrics"
	xhttp "StatArb/pkg/http"
	xlogger "StatArb/pkg/logger"
	"StatArb/pkg/util"
)

func (h *Handler) Status(c echo.Context) error {
	defer metrics.Since("status", time.Now())

	st := h.ledger.Status()
	st.OpenPositions = h.market.OpenPositions()
	st.ZScoreThreshold = h.thresholds.ZScoreThreshold
	st.TradeAmount = h.thresholds.TradeAmount
	st.ExitZThreshold = h.thresholds.ExitZThreshold
	st.StopLossAmount = h.thresholds.StopLossAmount
	return xhttp.SuccessResponse(c, st)
}

// Trades serves the most recent trades from the in-memory ledger, newest
// first.
func (h *Handler) Trades(c echo.Context) error {
	defer metrics.Since("trades", time.Now())

	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Error("trades", "validation")
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.ledger.Recent(req.Limit))
}

func (h *Handler) Leaderboard(c echo.Context) error {
	defer metrics.Since("leaderboard", time.Now())
	return xhttp.SuccessResponse(c, h.ledger.Leaderboard())
}

// History reads the full trade history from the external store. The window
// defaults to the last 24 hours.
func (h *Handler) History(c echo.Context) error {
	defer metrics.Since("history", time.Now())

	if h.history == nil {
		metrics.Error("history", "unavailable")
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("trade history store is not configured"))
	}

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Error("history", "validation")
		return xhttp.BadRequestResponse(c, verr)
	}

	now := h.now().UTC()
	to := now
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			metrics.Error("history", "validation")
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("to %q: want RFC3339 or unix time", req.To))
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			metrics.Error("history", "validation")
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from %q: want RFC3339 or unix time", req.From))
		}
		from = t
	}
	if from.After(to) {
		metrics.Error("history", "validation")
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must not be after to"))
	}
	if req.Symbol != "" {
		if _, err := h.market.MarketData(req.Symbol, now); err != nil {
			metrics.Error("history", "InvalidSymbol")
			return xhttp.AppErrorResponse(c, invalidSymbol(req.Symbol))
		}
	}

	trades, err := h.history.Query(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("history query failed", xlogger.Symbol(req.Symbol), xlogger.Error(err))
		metrics.Error("history", "store")
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("trade history store unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}
