package coordination

import (
	"fmt"
	"sync/atomic"
	"time"

	"FinCoord/internal/domain/models"
)

var t0 = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func seqIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("id-%d", atomic.AddInt64(&n, 1))
	}
}

func newEvent(id string, at time.Time, dir models.Direction, symbols ...string) *models.Event {
	return &models.Event{
		ID:              id,
		Category:        uncategorized,
		Severity:        models.SeverityMedium,
		Direction:       dir,
		EventTime:       at,
		Confidence:      0.8,
		ExpectedImpact:  0.3,
		AffectedSymbols: models.NormalizeSymbols(symbols),
	}
}

func payload(id string, at time.Time, sev, dir string, conf float64, symbols ...string) models.EventPayload {
	return models.EventPayload{
		ID:              id,
		Severity:        sev,
		Direction:       dir,
		EventTime:       models.FlexTime{Time: at},
		Confidence:      conf,
		ExpectedImpact:  0.4,
		AffectedSymbols: symbols,
	}
}

func relation(src, dst string, t models.RelationType, conf, lag float64, at time.Time) models.EventRelation {
	return models.EventRelation{
		SourceEventID:       src,
		TargetEventID:       dst,
		RelationType:        t,
		CorrelationStrength: 0.5,
		TimeLagHours:        lag,
		Confidence:          conf,
		ObservationCount:    1,
		LastObserved:        at,
	}
}

func index(events ...*models.Event) map[string]*models.Event {
	m := make(map[string]*models.Event, len(events))
	for _, e := range events {
		m[e.ID] = e
	}
	return m
}

func conflictTypes(cs []*models.EventConflict) []models.ConflictType {
	out := make([]models.ConflictType, len(cs))
	for i, c := range cs {
		out[i] = c.ConflictType
	}
	return out
}
