//go:build wireinject
// +build wireinject

package di

import (
	"SignalFeed/pkg/config"
	"SignalFeed/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup releases the store and client connections.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideEventStore,
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideClickHouseClient,

		// Change fan-out
		ProvideHub,
		ProvideRedisRelay,
		ProvideChangeNotifier,

		// Repositories
		ProvideEventPublisher,
		ProvideMirrorStore,

		// Use cases
		ProvideIngestor,
		ProvidePaginator,
		ProvideMirrorHandler,
		ProvideKafkaConsumer,

		// HTTP
		ProvidePageCache,
		ProvideRateLimiter,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
