package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	pkgcache "FinCoord/pkg/cache"
	xhttp "FinCoord/pkg/http"
	pkgkafka "FinCoord/pkg/kafka"
	applogger "FinCoord/pkg/logger"
)

const requestLockPrefix = "request"

// Coordinate is the use case entry point the Kafka handler drives.
type Coordinate interface {
	Coordinate(ctx context.Context, req models.CoordinateRequest) (*models.CoordinationResult, error)
}

// KafkaRequestsHandler consumes coordination requests from Kafka. Redelivered
// requests are dropped through a cache lock keyed by request id, or by payload
// hash when the producer did not set one.
type KafkaRequestsHandler struct {
	topic   string
	uc      Coordinate
	locks   pkgcache.Service
	lockTTL time.Duration
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewKafkaRequestsHandler(topic string, uc Coordinate, locks pkgcache.Service, lockTTL time.Duration, metrics domrepo.Metrics, log *applogger.Logger) *KafkaRequestsHandler {
	if log == nil {
		log = applogger.Nop()
	}
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	return &KafkaRequestsHandler{topic: topic, uc: uc, locks: locks, lockTTL: lockTTL, metrics: metrics, log: log}
}

func (h *KafkaRequestsHandler) Topic() string { return h.topic }

// incoming message schema: {request_id?, events, coordination_mode?}
func (h *KafkaRequestsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.CoordinateRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode request: %w", err))
	}
	if verrs := xhttp.ValidateStruct(ctx, &req); len(verrs) > 0 {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("invalid request: %s", verrs[0].Message))
	}

	key := req.RequestID
	if key == "" {
		key = pkgcache.HashKey(b)
	}
	lockKey := pkgcache.GenerateKey(requestLockPrefix, key)

	if h.locks != nil {
		ok, err := h.locks.TryLock(ctx, lockKey, h.lockTTL)
		if err != nil {
			h.log.Warn("request lock failed, processing anyway", applogger.String("key", lockKey), applogger.Error(err))
		} else if !ok {
			h.log.Debug("duplicate request skipped",
				applogger.String("key", lockKey),
				applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)))
			h.metrics.RecordCoordination(models.ModeLabel(req.CoordinationMode), "duplicate")
			return nil
		}
	}

	start := time.Now()
	res, err := h.uc.Coordinate(ctx, req)
	h.metrics.RecordLatency("kafka_request", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_coordinate")
		if h.locks != nil {
			// release so the retry is not mistaken for a duplicate
			if uerr := h.locks.Unlock(ctx, lockKey); uerr != nil {
				h.log.Warn("request unlock failed", applogger.String("key", lockKey), applogger.Error(uerr))
			}
		}
		return err
	}

	h.log.Debug("kafka request coordinated",
		applogger.String("request_id", req.RequestID),
		applogger.String("result_id", res.ID),
		applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)))
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRequestsHandler)(nil)
