package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"StatArb/internal/domain/repository"
	"StatArb/internal/handler/api"
	mid "StatArb/internal/middleware"
	internalrepo "StatArb/internal/repository"
	"StatArb/internal/service/ratelimit"
	"StatArb/internal/services/ledger"
	"StatArb/internal/usecase"
	"StatArb/pkg/cache"
	pkgch "StatArb/pkg/clickhouse"
	"StatArb/pkg/config"
	xhttp "StatArb/pkg/http"
	"StatArb/pkg/http/middleware"
	pkgkafka "StatArb/pkg/kafka"
	applogger "StatArb/pkg/logger"
	"StatArb/pkg/queue"
	"StatArb/pkg/server"
)

func ProvideAPIHandler(
	cfg *config.Config,
	e *usecase.Engine,
	l *ledger.Ledger,
	store repository.TradeStore,
	collectors []*usecase.QuoteCollector,
	rc *redis.Client,
	log *applogger.Logger,
) *api.Handler {
	opts := []api.Option{api.WithBasePath(cfg.Server.BasePath)}
	if store != nil {
		opts = append(opts,
			api.WithHistory(store),
			api.WithHealthCheck("clickhouse", store.Health))
	}
	if rc != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}))
	}
	if len(collectors) > 0 {
		opts = append(opts, api.WithHealthCheck("feeds", func(context.Context) error {
			var down []string
			for _, c := range collectors {
				if !c.IsConnected() {
					down = append(down, c.Exchange())
				}
			}
			if len(down) > 0 {
				return fmt.Errorf("disconnected: %s", strings.Join(down, ","))
			}
			return nil
		}))
	}

	return api.NewHandler(e, l, api.Thresholds{
		ZScoreThreshold: cfg.Signal.BaseThreshold,
		TradeAmount:     cfg.Execution.TradeAmount,
		ExitZThreshold:  cfg.Execution.ExitZThreshold,
		StopLossAmount:  cfg.Execution.StopLossAmount,
	}, log.With(applogger.String("component", "api")), opts...)
}

// ProvideHTTPServer serves the API behind a per-client token bucket. Health
// and metrics scrapes are not limited.
func ProvideHTTPServer(cfg *config.Config, h *api.Handler, log *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	limiter := ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
	skip := func(c echo.Context) bool {
		p := c.Request().URL.Path
		return strings.HasSuffix(p, "/health") || (metricsPath != "" && p == metricsPath)
	}

	return xhttp.NewServer(log, h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithMiddleware(middleware.RateLimit(limiter, skip)),
	)
}

// ProvideApp assembles the lifecycle. Closers run in reverse order of
// registration.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	e *usecase.Engine,
	rec *usecase.TradeRecorder,
	pipe *mid.QuotePipeline,
	collectors []*usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	mirror *usecase.MarketMirror,
	httpServer *xhttp.Server,
	pub *internalrepo.KafkaPublisher,
	ch *pkgch.Client,
	rc *redis.Client,
	cacheSvc cache.Service,
	qlog *internalrepo.QuoteLog,
) *server.App {
	var closers []server.Closer
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if pub != nil {
		closers = append(closers, server.Closer{Name: "kafka producer", Close: pub.Close})
	}
	// A Redis-backed cache owns the shared client.
	closers = append(closers, server.Closer{Name: "cache", Close: cacheSvc.Close})
	if rc != nil && cfg.Cache.Type == "memory" {
		closers = append(closers, server.Closer{Name: "redis", Close: rc.Close})
	}
	if qlog != nil {
		closers = append(closers, server.Closer{Name: "quote log", Close: qlog.Close})
	}

	if cfg.Log.Collector.Enabled && pub != nil {
		// flushed before the producer closes
		closers = append(closers, server.Closer{Name: "log collector", Close: func() error {
			log.RemoveCollector()
			return nil
		}})
	}

	return server.New(server.Components{
		Engine:     e,
		Recorder:   rec,
		Pipeline:   pipe,
		Collectors: collectors,
		Consumer:   consumer,
		Queue:      q,
		Mirror:     mirror,
		HTTP:       httpServer,
		Closers:    closers,
	}, log, cfg.Server.ShutdownTimeout)
}
