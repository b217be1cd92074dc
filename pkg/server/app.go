package server

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	domsvc "FinCoord/internal/domain/service"
	"FinCoord/internal/middleware"
	pkgcache "FinCoord/pkg/cache"
	pkgch "FinCoord/pkg/clickhouse"
	"FinCoord/pkg/config"
	xhttp "FinCoord/pkg/http"
	pkgkafka "FinCoord/pkg/kafka"
	applogger "FinCoord/pkg/logger"
)

// ClientPruner drops per-client state that has gone idle.
type ClientPruner interface {
	PruneClients(idle time.Duration) int
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	engine      domsvc.Coordinator
	pipeline    *middleware.ResultPipeline
	httpHandler xhttp.Handler
	pruner      ClientPruner

	consumer *pkgkafka.Consumer
	kh       pkgkafka.MessageHandler
	producer *pkgkafka.Producer
	chClient *pkgch.Client
	cache    pkgcache.Service

	httpServer *xhttp.Server
}

// New creates a new App instance with its core dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	engine domsvc.Coordinator,
	pipeline *middleware.ResultPipeline,
	handler xhttp.Handler,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:         cfg,
		log:         log,
		engine:      engine,
		pipeline:    pipeline,
		httpHandler: handler,
	}
}

// WithKafka attaches the request consumer and the result producer. Nil values are allowed.
func (a *App) WithKafka(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler, producer *pkgkafka.Producer) *App {
	a.consumer = consumer
	a.kh = kh
	a.producer = producer
	return a
}

// WithStorage attaches the archive client and the result cache so they are closed on shutdown.
func (a *App) WithStorage(ch *pkgch.Client, cache pkgcache.Service) *App {
	a.chClient = ch
	a.cache = cache
	return a
}

// WithPruner registers idle client cleanup run on every eviction tick.
func (a *App) WithPruner(p ClientPruner) *App {
	a.pruner = p
	return a
}

// Run starts the application and blocks until interrupted or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.log.Info("result pipeline started", applogger.Strings("sinks", a.pipeline.Sinks()))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.WithConsumerHook(pkgkafka.TraceHook{Logger: a.log, Slow: time.Second})
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return errors.Join(err, a.shutdown())
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithBodyLimit(a.cfg.Server.BodyLimit),
		xhttp.WithRequestTimeout(a.cfg.Server.RequestTimeout),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}

	go a.evictLoop(ctx)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// evictLoop drops stale events and idle rate limit buckets until ctx is done.
func (a *App) evictLoop(ctx context.Context) {
	interval := a.cfg.Coordination.EvictionInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.engine.EvictStale(); n > 0 {
				a.log.Debug("evicted stale events", applogger.Int("count", n))
			}
			if a.pruner != nil {
				a.pruner.PruneClients(10 * interval)
			}
		}
	}
}

// shutdown stops intake first, then drains results, then closes infrastructure.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.pipeline != nil {
		if err := a.pipeline.Close(ctx); err != nil {
			a.log.Warn("result pipeline close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	a.log.RemoveCollector()
	return errors.Join(errs...)
}
