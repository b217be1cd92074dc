package service

import (
	"context"

	"FinCoord/internal/domain/models"
)

// Coordinator runs coordination passes and exposes engine state.
type Coordinator interface {
	Coordinate(ctx context.Context, events []models.EventPayload, mode string) (*models.CoordinationResult, error)
	Status() models.CoordinationStatus
	History(limit int) []*models.CoordinationResult
	ActiveSchedules() []*models.EventSchedule
	Mode() models.CoordinationMode
	SetMode(mode models.CoordinationMode)
	ClearHistory()
	EvictStale() int
	Close() error
}
