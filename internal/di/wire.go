//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"StatArb/pkg/config"
	"StatArb/pkg/server"
)

// InitializeApp wires every component from cfg. Wire generates the body.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// infrastructure
		ProvideClickHouseClient,
		ProvideTradeStore,
		ProvideKafkaProducer,
		ProvideKafkaPublisher,
		ProvidePublisher,
		ProvideRedisClient,
		ProvideCache,
		ProvideMarketCache,
		ProvideJobQueue,
		ProvideNotifier,

		// engine
		ProvideLedger,
		ProvideTradeRecorder,
		ProvideEngine,
		ProvideQuoteLog,
		ProvideQuotePipeline,
		ProvideFeeds,
		ProvideCollectors,
		ProvideKafkaConsumer,
		ProvideMarketMirror,

		// surface
		ProvideAPIHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil
}
