// Package metrics holds per-endpoint collectors for the read API.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statarb",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Handler latency by endpoint",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statarb",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Handler errors by endpoint and code",
		},
		[]string{"endpoint", "code"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}

// Since observes the latency of endpoint; use with defer.
func Since(endpoint string, start time.Time) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func Error(endpoint, code string) {
	APIErrors.WithLabelValues(endpoint, code).Inc()
}
