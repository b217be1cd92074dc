package di

import (
	"context"
	"fmt"
	"time"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	domsvc "FinCoord/internal/domain/service"
	"FinCoord/internal/handler/api"
	"FinCoord/internal/handler/ws"
	mid "FinCoord/internal/middleware"
	internalrepo "FinCoord/internal/repository"
	"FinCoord/internal/services/coordination"
	"FinCoord/internal/services/notify"
	"FinCoord/internal/usecase"
	pkgcache "FinCoord/pkg/cache"
	pkgch "FinCoord/pkg/clickhouse"
	"FinCoord/pkg/config"
	xhttp "FinCoord/pkg/http"
	pkgkafka "FinCoord/pkg/kafka"
	applogger "FinCoord/pkg/logger"
	"FinCoord/pkg/metrics"
	"FinCoord/pkg/server"
)

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stdout",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// EngineConfig maps the coordination section onto engine tuning.
func EngineConfig(cfg *config.Config) coordination.Config {
	c := cfg.Coordination
	return coordination.Config{
		EventTTL:               c.EventTTL,
		MaxStoredEvents:        c.MaxStoredEvents,
		MaxActiveEvents:        c.MaxActiveEvents,
		DetectionTimeout:       c.DetectionTimeout,
		DetectionWorkers:       c.DetectionWorkers,
		ChainTimeout:           c.ChainTimeout,
		MaxChainLength:         c.MaxChainLength,
		MaxChainNodes:          c.MaxChainNodes,
		MaxChains:              c.MaxChains,
		MaxRelations:           c.MaxRelations,
		RelationWindow:         c.RelationWindow,
		MinCompositeConfidence: c.MinCompositeConfidence,
		CompositeMethod:        models.ResolutionMethod(c.CompositeMethod),
		TimeSeparationOffset:   c.TimeSeparationOffset,
		HistorySize:            c.HistorySize,
		MaxActiveSchedules:     c.MaxActiveSchedules,
		MaxPendingConflicts:    c.MaxPendingConflicts,
		MaxRetryAttempts:       c.MaxRetryAttempts,
		DefaultMode:            models.CoordinationMode(c.DefaultMode),
	}
}

// ProvideCoordinator creates the coordination engine.
func ProvideCoordinator(cfg *config.Config, log *applogger.Logger, rec *metrics.Recorder) domsvc.Coordinator {
	return coordination.New(EngineConfig(cfg),
		coordination.WithLogger(log),
		coordination.WithMetrics(rec),
	)
}

// ProvideCache creates the result cache: Redis behind an in-process layer when
// enabled, otherwise memory only.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(10000),
			pkgcache.WithMemoryCleanup(time.Minute),
		), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/4, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc,
		pkgcache.WithLayeredMemorySize(2000),
		pkgcache.WithLayeredMemoryTTL(30*time.Second),
	), nil
}

// ProvideClickHouseClient creates a ClickHouse client and the archive schema.
// Returns nil when the archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideResultArchive wraps the ClickHouse client. Returns nil without a client.
func ProvideResultArchive(ch *pkgch.Client, log *applogger.Logger) domrepo.ResultArchive {
	if ch == nil {
		return nil
	}
	a := internalrepo.NewClickHouseResultArchive(ch)
	a.SetLogger(log)
	return a
}

// ProvideKafkaProducer creates a Kafka producer and, when configured, ships
// aggregated warn and error logs through it. Returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Kafka.Logs.Enabled {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Kafka.Logs.Interval,
			CountThreshold: 100,
			Topic:          cfg.Kafka.Logs.Topic,
			Publisher:      producer,
		})
	}
	return producer, nil
}

// ProvideResultsHub creates the websocket fan-out. Returns nil when disabled.
func ProvideResultsHub(cfg *config.Config, log *applogger.Logger) *ws.ResultsHub {
	if !cfg.WebSocket.Enabled {
		return nil
	}
	return ws.NewResultsHub(ws.HubConfig{
		SendBuffer:   cfg.WebSocket.SendBuffer,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
	}, log)
}

// ProvideResultSinks collects every enabled result destination.
func ProvideResultSinks(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	archive domrepo.ResultArchive,
	hub *ws.ResultsHub,
) []domrepo.ResultSink {
	var sinks []domrepo.ResultSink
	if producer != nil && cfg.Kafka.ResultTopic != "" {
		sinks = append(sinks, internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultTopic))
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout, cfg.Webhook.MaxRetries))
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	return sinks
}

// ProvideResultPipeline creates the asynchronous result fan-out.
func ProvideResultPipeline(cfg *config.Config, rec *metrics.Recorder, sinks []domrepo.ResultSink, log *applogger.Logger) *mid.ResultPipeline {
	return mid.NewResultPipeline(rec, sinks,
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithRetryBackoff(cfg.Pipeline.RetryMin, cfg.Pipeline.RetryMax),
		mid.WithPipelineLogger(log),
	)
}

// ProvideCoordinationUseCase wires the engine to the cache, the pipeline and the archive.
func ProvideCoordinationUseCase(
	cfg *config.Config,
	engine domsvc.Coordinator,
	cache pkgcache.Service,
	pipeline *mid.ResultPipeline,
	archive domrepo.ResultArchive,
	log *applogger.Logger,
) *usecase.CoordinationUseCase {
	opts := []usecase.UseCaseOption{
		usecase.WithResultCache(cache, cfg.Coordination.ResultCacheTTL),
		usecase.WithDelivery(pipeline),
		usecase.WithUseCaseLogger(log),
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchive(archive))
	}
	return usecase.NewCoordinationUseCase(engine, opts...)
}

// ProvideCoordinationHandler creates the REST handler.
func ProvideCoordinationHandler(cfg *config.Config, log *applogger.Logger, uc *usecase.CoordinationUseCase) *api.CoordinationEchoHandler {
	return api.NewCoordinationEchoHandler(log, uc, api.RateLimit{
		Enabled:      cfg.RateLimit.Enabled,
		Capacity:     cfg.RateLimit.Capacity,
		RefillPerSec: cfg.RateLimit.RefillPerSec,
	})
}

// ProvideHTTPHandler merges the REST and websocket routes.
func ProvideHTTPHandler(h *api.CoordinationEchoHandler, hub *ws.ResultsHub) xhttp.Handler {
	handlers := xhttp.Handlers{h}
	if hub != nil {
		handlers = append(handlers, hub)
	}
	return handlers
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML. Returns
// nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.RequestTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.OffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaRequestsHandler handles coordination requests from the request topic.
func ProvideKafkaRequestsHandler(
	cfg *config.Config,
	uc *usecase.CoordinationUseCase,
	cache pkgcache.Service,
	rec *metrics.Recorder,
	log *applogger.Logger,
) *usecase.KafkaRequestsHandler {
	return usecase.NewKafkaRequestsHandler(cfg.Kafka.RequestTopic, uc, cache, cfg.Coordination.EventTTL, rec, log)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	engine domsvc.Coordinator,
	pipeline *mid.ResultPipeline,
	handler xhttp.Handler,
	apiHandler *api.CoordinationEchoHandler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaRequestsHandler,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	cache pkgcache.Service,
) *server.App {
	app := server.New(cfg, log, engine, pipeline, handler).
		WithStorage(ch, cache).
		WithPruner(apiHandler)
	if consumer != nil {
		app.WithKafka(consumer, kh, producer)
	} else {
		app.WithKafka(nil, nil, producer)
	}
	return app
}
