package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statarb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statarb",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method", "class"},
	)

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being served",
	})

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statarb",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"route", "method"},
	)
)

// Metrics records request counters and latency, labelled by route template.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route, method := routeOf(c), c.Request().Method
			status := c.Response().Status
			httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(route, method, statusClass(status)).Observe(time.Since(start).Seconds())
			httpResponseSize.WithLabelValues(route, method).Observe(float64(c.Response().Size))
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
