//go:build wireinject
// +build wireinject

package di

import (
	"FinCoord/pkg/config"
	"FinCoord/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Engine and state
		ProvideCoordinator,
		ProvideCache,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Result delivery
		ProvideResultArchive,
		ProvideResultsHub,
		ProvideResultSinks,
		ProvideResultPipeline,

		// Use cases and transport
		ProvideCoordinationUseCase,
		ProvideCoordinationHandler,
		ProvideHTTPHandler,
		ProvideKafkaRequestsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
