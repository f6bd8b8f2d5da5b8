package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"StatArb/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec

	zscore     *prometheus.GaugeVec
	threshold  *prometheus.GaugeVec
	signals    *prometheus.CounterVec
	staleTotal *prometheus.CounterVec
	rejections *prometheus.CounterVec
	trades     *prometheus.CounterVec
	pnl        *prometheus.GaugeVec
	openPos    *prometheus.GaugeVec
}

// New creates a recorder registered on reg. Nil means the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_messages_sent_total",
			Help: "Messages delivered to a backend",
		}, []string{"backend", "symbol"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_errors_total",
			Help: "Errors encountered, by kind",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statarb_mid_price",
			Help: "Last synchronized mid price",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "statarb_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"operation"}),

		zscore: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statarb_raw_zscore",
			Help: "Latest raw spread z-score",
		}, []string{"symbol"}),
		threshold: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statarb_adaptive_threshold",
			Help: "Latest adaptive entry threshold",
		}, []string{"symbol"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_signals_total",
			Help: "Signals computed, by side and whether they cleared the threshold",
		}, []string{"symbol", "side", "triggered"}),
		staleTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_stale_cycles_total",
			Help: "Processing cycles skipped because a feed was stale",
		}, []string{"symbol"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_entry_rejections_total",
			Help: "Entries not taken, by reason",
		}, []string{"symbol", "reason"}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_trades_total",
			Help: "Closed trades, by exit reason",
		}, []string{"symbol", "exit_reason"}),
		pnl: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statarb_realized_pnl",
			Help: "Cumulative realized PnL per symbol",
		}, []string{"symbol"}),
		openPos: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statarb_position_open",
			Help: "1 while the symbol holds an open position",
		}, []string{"symbol"}),
	}
}

func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSignal(s *models.Signal) {
	r.zscore.WithLabelValues(s.Symbol).Set(s.RawZScore)
	r.threshold.WithLabelValues(s.Symbol).Set(s.AdaptiveThreshold)
	triggered := "false"
	if s.Triggered() {
		triggered = "true"
	}
	r.signals.WithLabelValues(s.Symbol, string(s.Side), triggered).Inc()
}

func (r *Recorder) RecordStale(symbol string) {
	r.staleTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordRejection(symbol, reason string) {
	r.rejections.WithLabelValues(symbol, reason).Inc()
}

func (r *Recorder) RecordTrade(t *models.Trade) {
	r.trades.WithLabelValues(t.Symbol, string(t.ExitReason)).Inc()
	r.pnl.WithLabelValues(t.Symbol).Add(t.PnL)
}

func (r *Recorder) RecordPosition(symbol string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	r.openPos.WithLabelValues(symbol).Set(v)
}

// Nop discards everything. Used by tools and tests that don't scrape.
type Nop struct{}

func (Nop) RecordMessageSent(string, string) {}
func (Nop) RecordError(string)               {}
func (Nop) RecordLastPrice(string, float64)  {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordSignal(*models.Signal)      {}
func (Nop) RecordStale(string)               {}
func (Nop) RecordRejection(string, string)   {}
func (Nop) RecordTrade(*models.Trade)        {}
func (Nop) RecordPosition(string, bool)      {}
