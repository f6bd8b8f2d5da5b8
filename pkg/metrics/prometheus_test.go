package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"StatArb/internal/domain/models"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordTrade(&models.Trade{Symbol: "BTC/USDT", PnL: 1.5, ExitReason: models.ExitReversion})
	r.RecordTrade(&models.Trade{Symbol: "BTC/USDT", PnL: -0.5, ExitReason: models.ExitStopLoss})
	r.RecordPosition("BTC/USDT", true)
	r.RecordSignal(&models.Signal{Symbol: "BTC/USDT", RawZScore: 2, SignalStrength: 2, AdaptiveThreshold: 1.2, Side: models.SideShort})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.pnl.WithLabelValues("BTC/USDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trades.WithLabelValues("BTC/USDT", "stop_loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.openPos.WithLabelValues("BTC/USDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signals.WithLabelValues("BTC/USDT", "SHORT_SPREAD", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.zscore.WithLabelValues("BTC/USDT")))
}
