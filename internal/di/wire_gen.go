//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

// This injector is maintained by hand in the shape wire emits. Keep it in
// step with the provider set in wire.go, or regenerate it with go generate.

package di

import (
	"StatArb/pkg/config"
	"StatArb/pkg/server"
)

// InitializeApp wires every component from cfg.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	kafkaPublisher := ProvideKafkaPublisher(producer, cfg)
	logger, err := ProvideLogger(cfg, kafkaPublisher)
	if err != nil {
		return nil, err
	}
	metrics := ProvideMetrics()
	client, err := ProvideClickHouseClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	tradeStore, err := ProvideTradeStore(client, logger)
	if err != nil {
		return nil, err
	}
	publisher := ProvidePublisher(kafkaPublisher)
	redisClient, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	service, err := ProvideCache(cfg, redisClient)
	if err != nil {
		return nil, err
	}
	marketDataCache := ProvideMarketCache(service, cfg)
	redisQueue := ProvideJobQueue(cfg, redisClient, logger)
	notifier := ProvideNotifier(redisQueue)
	ledger := ProvideLedger(cfg)
	tradeRecorder := ProvideTradeRecorder(cfg, ledger, publisher, tradeStore, notifier, metrics, logger)
	engine, err := ProvideEngine(cfg, ledger, tradeRecorder, metrics, logger)
	if err != nil {
		return nil, err
	}
	quoteLog, err := ProvideQuoteLog(cfg)
	if err != nil {
		return nil, err
	}
	quotePipeline := ProvideQuotePipeline(cfg, engine, metrics, quoteLog)
	v, err := ProvideFeeds(cfg, logger)
	if err != nil {
		return nil, err
	}
	v2 := ProvideCollectors(cfg, v, quotePipeline, metrics, logger)
	consumer, err := ProvideKafkaConsumer(cfg, quotePipeline, tradeStore, metrics, logger)
	if err != nil {
		return nil, err
	}
	marketMirror := ProvideMarketMirror(cfg, engine, marketDataCache, metrics, logger)
	handler := ProvideAPIHandler(cfg, engine, ledger, tradeStore, v2, redisClient, logger)
	httpServer := ProvideHTTPServer(cfg, handler, logger)
	app := ProvideApp(cfg, logger, engine, tradeRecorder, quotePipeline, v2, consumer, redisQueue, marketMirror, httpServer, kafkaPublisher, client, redisClient, service, quoteLog)
	return app, nil
}
