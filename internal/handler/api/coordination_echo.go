package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"FinCoord/internal/domain/models"
	svcmetrics "FinCoord/internal/service/metrics"
	"FinCoord/internal/service/ratelimit"
	"FinCoord/internal/services/coordination"
	"FinCoord/internal/usecase"
	xhttp "FinCoord/pkg/http"
	xlogger "FinCoord/pkg/logger"
)

// RateLimit configures the per-client token bucket on POST /coordinate.
type RateLimit struct {
	Enabled      bool
	Capacity     float64
	RefillPerSec float64
}

// CoordinationEchoHandler exposes the coordination engine over HTTP.
type CoordinationEchoHandler struct {
	logger  *xlogger.Logger
	uc      *usecase.CoordinationUseCase
	rl      *ratelimit.Limiter
	limit   RateLimit
	catalog models.Catalog
}

func NewCoordinationEchoHandler(logger *xlogger.Logger, uc *usecase.CoordinationUseCase, limit RateLimit) *CoordinationEchoHandler {
	svcmetrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &CoordinationEchoHandler{
		logger:  logger,
		uc:      uc,
		rl:      ratelimit.New(),
		limit:   limit,
		catalog: models.DefaultCatalog(),
	}
}

func (h *CoordinationEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/coordinate", h.Coordinate)
	e.GET("/coordination-status", h.Status)
	e.GET("/coordination-history", h.History)
	e.DELETE("/coordination-history", h.ClearHistory)
	e.GET("/coordination-results/:id", h.Result)
	e.GET("/active-schedules", h.ActiveSchedules)
	e.GET("/coordination-mode", h.GetMode)
	e.PUT("/coordination-mode", h.SetMode)
	e.GET("/conflict-types", h.ConflictTypes)
	e.GET("/healthz", h.Health)
}

func (h *CoordinationEchoHandler) Coordinate(c echo.Context) error {
	if !h.allow(c) {
		svcmetrics.RateLimited.WithLabelValues(c.Path()).Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded, retry later"))
	}

	req := &models.CoordinateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.Coordinate(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("coordinate usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CoordinationEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.uc.Status())
}

func (h *CoordinationEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, n, err := h.uc.History(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, rows, int64(n))
}

func (h *CoordinationEchoHandler) ClearHistory(c echo.Context) error {
	if err := h.uc.ClearHistory(c.Request().Context()); err != nil {
		h.logger.Error("clear history error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"message": "coordination history cleared"})
}

func (h *CoordinationEchoHandler) Result(c echo.Context) error {
	res, err := h.uc.Result(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CoordinationEchoHandler) ActiveSchedules(c echo.Context) error {
	schedules := h.uc.ActiveSchedules()
	return xhttp.ListResponse(c, schedules, int64(len(schedules)))
}

func (h *CoordinationEchoHandler) GetMode(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.ModeResponse{Mode: string(h.uc.Mode())})
}

func (h *CoordinationEchoHandler) SetMode(c echo.Context) error {
	req := &models.ModeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.uc.SetMode(models.CoordinationMode(req.Mode))
	return xhttp.SuccessResponse(c, models.ModeResponse{Mode: req.Mode})
}

func (h *CoordinationEchoHandler) ConflictTypes(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return xhttp.SuccessResponse(c, h.catalog)
}

// Health is a liveness check; archive reachability is reported, not enforced.
func (h *CoordinationEchoHandler) Health(c echo.Context) error {
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if err := h.uc.ArchiveHealth(c.Request().Context()); err != nil {
		body["archive"] = err.Error()
	}
	return xhttp.SuccessResponse(c, body)
}

func (h *CoordinationEchoHandler) allow(c echo.Context) bool {
	if !h.limit.Enabled {
		return true
	}
	return h.rl.Allow(c.RealIP(), h.limit.Capacity, h.limit.RefillPerSec)
}

// PruneClients forgets rate limit buckets idle for longer than idle.
func (h *CoordinationEchoHandler) PruneClients(idle time.Duration) int {
	return h.rl.Prune(idle)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrResultNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, usecase.ErrArchiveDisabled):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, coordination.ErrEngineClosed):
		return xhttp.ServiceUnavailableError(err.Error())
	default:
		return xhttp.InternalError(fmt.Sprintf("coordination failed: %v", err)).WithError(err)
	}
}

var _ xhttp.Handler = (*CoordinationEchoHandler)(nil)
