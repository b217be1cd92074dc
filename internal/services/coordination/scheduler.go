package coordination

import (
	"context"
	"math"
	"sort"
	"time"

	"FinCoord/internal/domain/models"
	"FinCoord/internal/services/features"
)

// Scheduler orders surviving events into an execution plan.
type Scheduler struct {
	workers int
	newID   func() string
}

func NewScheduler(workers int, newID func() string) *Scheduler {
	return &Scheduler{workers: workers, newID: newID}
}

// Build returns nil when no event survives.
func (s *Scheduler) Build(ctx context.Context, survivors []*models.Event, mode models.CoordinationMode, now time.Time) (*models.EventSchedule, error) {
	if len(survivors) == 0 {
		return nil, nil
	}
	feats, err := features.ExtractAll(ctx, survivors, now, s.workers)
	if err != nil {
		return nil, err
	}

	ordered := append([]*models.Event(nil), survivors...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := feats[ordered[i].ID].SortKey, feats[ordered[j].ID].SortKey
		if ki != kj {
			return ki > kj
		}
		if !ordered[i].EventTime.Equal(ordered[j].EventTime) {
			return ordered[i].EventTime.Before(ordered[j].EventTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	ids := make([]string, len(ordered))
	var duration, weightSum float64
	for i, e := range ordered {
		ids[i] = e.ID
		duration += feats[e.ID].ProcessingHours
		weightSum += e.Weight()
	}
	alloc := make(map[string]float64, len(ordered))
	for _, e := range ordered {
		alloc[e.ID] = e.Weight() / weightSum
	}

	return &models.EventSchedule{
		ID:                 s.newID(),
		EventIDs:           ids,
		CoordinationMode:   mode,
		TotalDurationHours: duration,
		ResourceAllocation: alloc,
		RiskAssessment:     assessRisk(ordered),
		CreatedAt:          now,
	}, nil
}

func assessRisk(ordered []*models.Event) models.RiskAssessment {
	var r models.RiskAssessment
	for i := 1; i < len(ordered); i++ {
		if models.HoursApart(ordered[i-1], ordered[i]) < 2 {
			r.TimingRisk += 0.2
		}
	}
	r.TimingRisk = math.Min(1, r.TimingRisk)

	perSymbol := make(map[string]int)
	maxShare := 0
	var confSum float64
	for _, e := range ordered {
		confSum += e.Confidence
		for _, sym := range e.AffectedSymbols {
			perSymbol[sym]++
			if perSymbol[sym] > maxShare {
				maxShare = perSymbol[sym]
			}
		}
	}
	r.ResourceRisk = models.Clamp01(float64(maxShare-1) * 0.3)
	r.CoordinationRisk = math.Min(1, 0.1*float64(len(ordered)))
	r.ExecutionRisk = models.Clamp01(1 - confSum/float64(len(ordered)))
	return r
}
