package di

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"StatArb/internal/domain/repository"
	"StatArb/internal/domain/service"
	mid "StatArb/internal/middleware"
	internalrepo "StatArb/internal/repository"
	"StatArb/internal/service/exchange"
	"StatArb/internal/services/execution"
	"StatArb/internal/services/ledger"
	"StatArb/internal/services/signal"
	"StatArb/internal/usecase"
	"StatArb/pkg/config"
	pkgkafka "StatArb/pkg/kafka"
	applogger "StatArb/pkg/logger"
)

func ProvideLedger(cfg *config.Config) *ledger.Ledger {
	return ledger.New(cfg.Ledger.RecentCapacity, cfg.Feed.Symbols)
}

func ProvideTradeRecorder(
	cfg *config.Config,
	l *ledger.Ledger,
	pub repository.Publisher,
	store repository.TradeStore,
	notifier service.Notifier,
	metrics repository.Metrics,
	log *applogger.Logger,
) *usecase.TradeRecorder {
	return usecase.NewTradeRecorder(usecase.RecorderConfig{
		Backend:      cfg.Backend.Type,
		BatchSize:    cfg.Backend.BatchSize,
		BatchTimeout: cfg.Backend.BatchTimeout,
	}, l, pub, store, notifier, metrics, log.With(applogger.String("component", "recorder")))
}

// EngineConfig maps the signal and execution sections onto the engine.
func EngineConfig(cfg *config.Config) usecase.EngineConfig {
	sc := signal.Config{
		WindowSize:        cfg.Signal.WindowSize,
		MinSamples:        cfg.Signal.MinSamples,
		Epsilon:           cfg.Signal.Epsilon,
		ShortWindow:       cfg.Signal.ShortWindow,
		LongWindow:        cfg.Signal.LongWindow,
		MomentumWeight:    cfg.Signal.MomentumWeight,
		VolumeWeightFloor: cfg.Signal.VolumeWeightFloor,
		VolumeWeightCap:   cfg.Signal.VolumeWeightCap,
		BaseThreshold:     cfg.Signal.BaseThreshold,
		MinThreshold:      cfg.Signal.MinThreshold,
		MaxThreshold:      cfg.Signal.MaxThreshold,
		VolImpact:         cfg.Signal.VolImpact,
		VolHistory:        cfg.Signal.VolHistory,
		MomentumImpact:    cfg.Signal.MomentumImpact,
	}
	for _, tf := range cfg.Signal.TimeFactors {
		sc.TimeFactors = append(sc.TimeFactors, signal.TimeFactor{FromHour: tf.FromHour, ToHour: tf.ToHour, Factor: tf.Factor})
	}

	fees := make(execution.FeeSchedule, len(cfg.Execution.Fees))
	for ex, f := range cfg.Execution.Fees {
		ef := execution.ExchangeFees{Maker: f.Maker, Taker: f.Taker}
		for _, t := range f.Tiers {
			ef.Tiers = append(ef.Tiers, execution.FeeTier{MinVolume: t.MinVolume, Maker: t.Maker, Taker: t.Taker})
		}
		fees[ex] = ef
	}

	return usecase.EngineConfig{
		Symbols:         cfg.Feed.Symbols,
		Exchanges:       cfg.Feed.Exchanges,
		StaleAfter:      cfg.Feed.StaleAfter,
		QueueSize:       cfg.Feed.QueueSize,
		DispatchTimeout: cfg.Feed.DispatchTimeout,
		Signal:          sc,
		Execution: execution.Config{
			TradeAmount:       cfg.Execution.TradeAmount,
			ExitZThreshold:    cfg.Execution.ExitZThreshold,
			StopLossAmount:    cfg.Execution.StopLossAmount,
			StartingBalance:   cfg.Execution.StartingBalance,
			SlippageAllowance: cfg.Execution.SlippageAllowance,
			DepthImpact:       cfg.Execution.DepthImpact,
			TransferCost:      cfg.Execution.TransferCost,
			Cooldown:          cfg.Execution.Cooldown,
			MinSpreadRatio:    cfg.Execution.MinSpreadRatio,
			MaxDailyLoss:      cfg.Execution.MaxDailyLoss,
			Fees:              fees,
		},
		MaxPosition: cfg.Execution.MaxPosition,
	}
}

func ProvideEngine(
	cfg *config.Config,
	l *ledger.Ledger,
	rec *usecase.TradeRecorder,
	metrics repository.Metrics,
	log *applogger.Logger,
) (*usecase.Engine, error) {
	e, err := usecase.NewEngine(EngineConfig(cfg), l, rec, metrics, log.With(applogger.String("component", "engine")))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return e, nil
}

// ProvideQuoteLog opens the replay recording file when feed.record_path is
// set.
func ProvideQuoteLog(cfg *config.Config) (*internalrepo.QuoteLog, error) {
	if cfg.Feed.RecordPath == "" {
		return nil, nil
	}
	return internalrepo.OpenQuoteLog(cfg.Feed.RecordPath)
}

func ProvideQuotePipeline(cfg *config.Config, e *usecase.Engine, metrics repository.Metrics, qlog *internalrepo.QuoteLog) *mid.QuotePipeline {
	opts := []mid.PipelineOption{
		mid.WithMaxRPS(cfg.Feed.MaxRPS),
		mid.WithBufferSize(cfg.Feed.BufferSize),
	}
	if qlog != nil {
		opts = append(opts, mid.WithTap(qlog))
	}
	return mid.NewQuotePipeline(e, metrics, opts...)
}

// ProvideFeeds builds one adapter per configured exchange for the ws and sim
// feed modes. The kafka mode has no adapters.
func ProvideFeeds(cfg *config.Config, log *applogger.Logger) ([]repository.FeedAdapter, error) {
	var feeds []repository.FeedAdapter
	switch cfg.Feed.Mode {
	case "kafka":
		return nil, nil
	case "sim":
		for i, ex := range cfg.Feed.Exchanges {
			feeds = append(feeds, exchange.NewSimFeed(exchange.SimConfig{
				Exchange:   ex,
				Symbols:    cfg.Feed.Symbols,
				StartPrice: cfg.Feed.Sim.BasePrices,
				Interval:   cfg.Feed.Sim.Interval,
				Volatility: cfg.Feed.Sim.Volatility,
				Seed:       cfg.Feed.Sim.Seed + int64(i),
			}))
		}
	case "ws":
		for _, ex := range cfg.Feed.Exchanges {
			var (
				f   repository.FeedAdapter
				err error
			)
			switch ex {
			case exchange.Binance:
				f, err = exchange.NewBinanceFeed(cfg.Feed.Binance.WebSocketURL, cfg.Feed.Symbols, cfg.Feed.PingInterval, log)
			case exchange.Kraken:
				f, err = exchange.NewKrakenFeed(cfg.Feed.Kraken.WebSocketURL, cfg.Feed.Symbols, cfg.Feed.PingInterval, log)
			default:
				err = fmt.Errorf("no websocket adapter for exchange %q", ex)
			}
			if err != nil {
				return nil, fmt.Errorf("feed %s: %w", ex, err)
			}
			feeds = append(feeds, f)
		}
	default:
		return nil, fmt.Errorf("unknown feed mode %q", cfg.Feed.Mode)
	}
	return feeds, nil
}

func ProvideCollectors(
	cfg *config.Config,
	feeds []repository.FeedAdapter,
	pipe *mid.QuotePipeline,
	metrics repository.Metrics,
	log *applogger.Logger,
) []*usecase.QuoteCollector {
	out := make([]*usecase.QuoteCollector, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, usecase.NewQuoteCollector(f, pipe, metrics, log, usecase.CollectorConfig{
			ReconnectDelay:    cfg.Feed.ReconnectDelay,
			MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		}))
	}
	return out
}

// ProvideKafkaConsumer subscribes to the quotes topic in kafka feed mode
// and, when trades go to Kafka and ClickHouse is up, sinks the trades topic
// into the history store. Nil when neither applies.
func ProvideKafkaConsumer(
	cfg *config.Config,
	pipe *mid.QuotePipeline,
	store repository.TradeStore,
	metrics repository.Metrics,
	log *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	var handlers []pkgkafka.MessageHandler
	if cfg.Feed.Mode == "kafka" {
		handlers = append(handlers, usecase.NewKafkaQuotesHandler(cfg.Kafka.QuotesTopic, pipe, metrics))
	}
	if cfg.Backend.Type == usecase.BackendKafka && store != nil {
		handlers = append(handlers, usecase.NewKafkaTradesHandler(cfg.Kafka.Topic, store, metrics))
	}
	if len(handlers) == 0 {
		return nil, nil
	}

	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	for _, h := range handlers {
		consumer.RegisterHandler(h)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.HookFuncs{
			Err: func(ctx context.Context, topic string, _ kafkago.Message, _ []byte, err error) {
				metrics.RecordError("kafka_" + topic)
				log.Debug("kafka handler error",
					applogger.String("topic", topic),
					applogger.String("trace_id", pkgkafka.TraceID(ctx)),
					applogger.Error(err))
			},
		},
	))
	return consumer, nil
}

// ProvideMarketMirror copies engine views into the shared cache.
func ProvideMarketMirror(cfg *config.Config, e *usecase.Engine, c repository.MarketDataCache, metrics repository.Metrics, log *applogger.Logger) *usecase.MarketMirror {
	return usecase.NewMarketMirror(e, c, cfg.Cache.Mirror, metrics, log)
}

var _ service.QuoteSink = (*mid.QuotePipeline)(nil)
