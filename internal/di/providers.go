package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
	internalrepo "StatArb/internal/repository"
	"StatArb/internal/service/notify"
	"StatArb/pkg/cache"
	pkgch "StatArb/pkg/clickhouse"
	"StatArb/pkg/config"
	xhttp "StatArb/pkg/http"
	pkgkafka "StatArb/pkg/kafka"
	applogger "StatArb/pkg/logger"
	"StatArb/pkg/metrics"
	"StatArb/pkg/queue"
)

const tradesTable = "trades"

// ProvideLogger builds the root logger from the log section. With the
// collector enabled, error entries are aggregated and shipped to Kafka.
func ProvideLogger(cfg *config.Config, pub *internalrepo.KafkaPublisher) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	// attached before any child logger is derived so every child shares it
	if cfg.Log.Collector.Enabled && pub != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      pub,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideClickHouseClient connects when ClickHouse is enabled and returns
// nil otherwise.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	l.Info("clickhouse connected",
		applogger.String("host", cfg.ClickHouse.Host),
		applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideTradeStore creates the trade history table and its store. Nil
// without ClickHouse.
func ProvideTradeStore(client *pkgch.Client, l *applogger.Logger) (repository.TradeStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseTradeStore(client, client.Database(), tradesTable, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideKafkaPublisher(producer *pkgkafka.Producer, cfg *config.Config) *internalrepo.KafkaPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic, cfg.Kafka.SignalsTopic)
}

// ProvidePublisher narrows the Kafka publisher to the domain interface,
// keeping a missing producer a nil interface.
func ProvidePublisher(p *internalrepo.KafkaPublisher) repository.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func redisNeeded(cfg *config.Config) bool {
	return cfg.Cache.Type != "memory" || cfg.Notifications.Enabled
}

// ProvideRedisClient is shared by the cache and the notification queue. Nil
// when neither needs Redis.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !redisNeeded(cfg) {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdle, 30*time.Second),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, err
	}
	return rc.Client(), nil
}

// ProvideCache picks the market view cache by cache.type.
func ProvideCache(cfg *config.Config, rc *redis.Client) (cache.Service, error) {
	switch cfg.Cache.Type {
	case "memory":
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(4*len(cfg.Feed.Symbols)+64),
			cache.WithMemoryCleanup(cfg.Cache.TTL),
		), nil
	case "redis":
		return cache.NewRedisCacheFromClient(rc, cfg.Cache.Redis.Prefix), nil
	case "layered":
		return cache.NewLayeredCache(
			cache.NewRedisCacheFromClient(rc, cfg.Cache.Redis.Prefix),
			cache.WithLayeredMemoryTTL(cfg.Cache.Mirror),
			cache.WithLayeredMemorySize(4*len(cfg.Feed.Symbols)+64),
		), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
}

func ProvideMarketCache(svc cache.Service, cfg *config.Config) repository.MarketDataCache {
	return internalrepo.NewMarketCache(svc, cfg.Cache.TTL)
}

// ProvideJobQueue backs trade notifications. Nil when notifications are off.
func ProvideJobQueue(cfg *config.Config, rc *redis.Client, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Notifications.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		RetryLimit: cfg.Notifications.RetryLimit,
	}, rc, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Cache.Redis.Prefix+":notify"))

	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Notifications.Timeout))
	for _, job := range notify.Jobs(cfg.Notifications.WebhookURL, client, l) {
		q.RegisterJob(job)
	}
	return q
}

func ProvideNotifier(q *queue.RedisQueue) service.Notifier {
	if q == nil {
		return nil
	}
	return notify.NewQueueNotifier(q)
}
