package repository

import (
	"context"

	"FinCoord/internal/domain/models"
)

// ResultSink receives every coordination result.
type ResultSink interface {
	Name() string
	Send(ctx context.Context, r *models.CoordinationResult) error
	Close() error
}

// ResultArchive stores result summaries for later analysis.
type ResultArchive interface {
	ResultSink
	RecentResults(ctx context.Context, limit int) ([]models.ResultSummary, error)
	Health(ctx context.Context) error
}

// Metrics is the observability port used by the coordination engine.
type Metrics interface {
	RecordCoordination(mode, outcome string)
	RecordConflict(conflictType string)
	RecordResolution(strategy string, resolved bool)
	RecordEffectiveness(mode string, value float64)
	SetActiveEvents(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// PipelineMetrics observes result delivery.
type PipelineMetrics interface {
	RecordSinkDelivery(sink string, ok bool)
	SetPipelineBuffered(n int)
	RecordPipelineDrop()
}
