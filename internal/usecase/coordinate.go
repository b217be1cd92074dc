package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	domsvc "FinCoord/internal/domain/service"
	pkgcache "FinCoord/pkg/cache"
	applogger "FinCoord/pkg/logger"
)

const resultKeyPrefix = "result"

var (
	ErrResultNotFound  = errors.New("coordination result not found")
	ErrArchiveDisabled = errors.New("result archive is not enabled")
)

// ResultDeliverer hands finished results to downstream sinks.
type ResultDeliverer interface {
	Deliver(ctx context.Context, r *models.CoordinationResult) error
}

// CoordinationUseCase runs coordination passes and keeps the surrounding
// state (result cache, delivery, archive) in step with the engine.
type CoordinationUseCase struct {
	engine   domsvc.Coordinator
	cache    pkgcache.Service
	delivery ResultDeliverer
	archive  domrepo.ResultArchive
	cacheTTL time.Duration
	log      *applogger.Logger
}

type UseCaseOption func(*CoordinationUseCase)

// WithResultCache caches each result by id for ttl.
func WithResultCache(c pkgcache.Service, ttl time.Duration) UseCaseOption {
	return func(u *CoordinationUseCase) {
		u.cache = c
		if ttl > 0 {
			u.cacheTTL = ttl
		}
	}
}

func WithDelivery(d ResultDeliverer) UseCaseOption {
	return func(u *CoordinationUseCase) { u.delivery = d }
}

func WithArchive(a domrepo.ResultArchive) UseCaseOption {
	return func(u *CoordinationUseCase) { u.archive = a }
}

func WithUseCaseLogger(l *applogger.Logger) UseCaseOption {
	return func(u *CoordinationUseCase) {
		if l != nil {
			u.log = l
		}
	}
}

func NewCoordinationUseCase(engine domsvc.Coordinator, opts ...UseCaseOption) *CoordinationUseCase {
	u := &CoordinationUseCase{
		engine:   engine,
		cacheTTL: time.Hour,
		log:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Coordinate runs one pass, caches the result and hands it to delivery.
// Cache and delivery failures are logged, not returned.
func (u *CoordinationUseCase) Coordinate(ctx context.Context, req models.CoordinateRequest) (*models.CoordinationResult, error) {
	res, err := u.engine.Coordinate(ctx, req.Events, req.CoordinationMode)
	if err != nil {
		return nil, fmt.Errorf("coordinate: %w", err)
	}

	if u.cache != nil {
		if err := u.cache.Set(ctx, resultKey(res.ID), res, u.cacheTTL); err != nil {
			u.log.Warn("cache result failed", applogger.String("result_id", res.ID), applogger.Error(err))
		}
	}
	if u.delivery != nil {
		if err := u.delivery.Deliver(ctx, res); err != nil {
			u.log.Warn("deliver result failed", applogger.String("result_id", res.ID), applogger.Error(err))
		}
	}

	u.log.Info("coordination completed",
		applogger.String("result_id", res.ID),
		applogger.String("request_id", req.RequestID),
		applogger.String("mode", string(res.CoordinationMode)),
		applogger.Int("events", len(res.ProcessedEventIDs)),
		applogger.Int("conflicts", len(res.ConflictsDetected)),
		applogger.Float64("effectiveness", res.Effectiveness),
		applogger.Int64("processing_ms", res.ProcessingTimeMs),
	)
	return res, nil
}

// Result looks a result up in the cache, then in the in-memory history.
func (u *CoordinationUseCase) Result(ctx context.Context, id string) (*models.CoordinationResult, error) {
	if u.cache != nil {
		var res models.CoordinationResult
		err := u.cache.Get(ctx, resultKey(id), &res)
		if err == nil {
			return &res, nil
		}
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			u.log.Warn("cache lookup failed", applogger.String("result_id", id), applogger.Error(err))
		}
	}
	for _, r := range u.engine.History(0) {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
}

// History returns the newest results first: summaries unless details are
// requested. The archive source only has summaries.
func (u *CoordinationUseCase) History(ctx context.Context, req models.HistoryRequest) (interface{}, int, error) {
	if req.Source == "archive" {
		if u.archive == nil {
			return nil, 0, ErrArchiveDisabled
		}
		rows, err := u.archive.RecentResults(ctx, req.Limit)
		if err != nil {
			return nil, 0, fmt.Errorf("archive history: %w", err)
		}
		return rows, len(rows), nil
	}

	results := u.engine.History(req.Limit)
	if req.IncludeDetails {
		return results, len(results), nil
	}
	rows := make([]models.ResultSummary, len(results))
	for i, r := range results {
		rows[i] = r.Summarize()
	}
	return rows, len(rows), nil
}

// ClearHistory clears engine history, active schedules and cached results.
func (u *CoordinationUseCase) ClearHistory(ctx context.Context) error {
	u.engine.ClearHistory()
	if u.cache == nil {
		return nil
	}
	if err := u.cache.DeleteByPattern(ctx, pkgcache.BuildPattern(resultKeyPrefix)); err != nil {
		return fmt.Errorf("clear cached results: %w", err)
	}
	return nil
}

func (u *CoordinationUseCase) Status() models.CoordinationStatus { return u.engine.Status() }

func (u *CoordinationUseCase) ActiveSchedules() []*models.EventSchedule {
	return u.engine.ActiveSchedules()
}

func (u *CoordinationUseCase) Mode() models.CoordinationMode { return u.engine.Mode() }

func (u *CoordinationUseCase) SetMode(m models.CoordinationMode) { u.engine.SetMode(m) }

// ArchiveHealth reports archive reachability; nil when no archive is configured.
func (u *CoordinationUseCase) ArchiveHealth(ctx context.Context) error {
	if u.archive == nil {
		return nil
	}
	return u.archive.Health(ctx)
}

func resultKey(id string) string {
	return pkgcache.GenerateKey(resultKeyPrefix, id)
}
