package coordination

import (
	"context"
	"math"
	"time"

	"FinCoord/internal/domain/models"
	xutil "FinCoord/pkg/util"
)

// inferRelations classifies co-occurring pairs into relation observations.
// events must be ordered by id. It only reads events.
func inferRelations(ctx context.Context, events []*models.Event, kb *Knowledge, window time.Duration, now time.Time) ([]models.EventRelation, error) {
	var out []models.EventRelation
	maxHours := window.Hours()
	for i := 0; i < len(events); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(events); j++ {
			if rel, ok := classifyPair(events[i], events[j], kb, maxHours, now); ok {
				out = append(out, rel)
			}
		}
	}
	return out, nil
}

func classifyPair(a, b *models.Event, kb *Knowledge, maxHours float64, now time.Time) (models.EventRelation, bool) {
	if models.HoursApart(a, b) > maxHours {
		return models.EventRelation{}, false
	}
	src, dst := a, b
	if b.EventTime.Before(a.EventTime) {
		src, dst = b, a
	}
	shared := models.IntersectSymbols(a.AffectedSymbols, b.AffectedSymbols)
	overlap := overlapRatio(len(shared), len(a.AffectedSymbols), len(b.AffectedSymbols))
	minConf := math.Min(a.Confidence, b.Confidence)

	obs := models.EventRelation{
		SourceEventID:    src.ID,
		TargetEventID:    dst.ID,
		TimeLagHours:     xutil.HoursBetween(src.EventTime, dst.EventTime),
		ObservationCount: 1,
		LastObserved:     now,
	}

	if len(shared) > 0 && a.Direction.Opposes(b.Direction) {
		obs.RelationType = models.RelationConflicting
		obs.CorrelationStrength = overlap
		obs.Confidence = minConf
		return obs, true
	}

	if kr, ok := kb.Lookup(a.Category, b.Category); ok {
		// Orient the instance edge along the category edge.
		if kr.SourceEventID != string(src.Category) {
			src, dst = dst, src
		}
		lag := xutil.HoursBetween(src.EventTime, dst.EventTime)
		if lag < 0 {
			return models.EventRelation{}, false
		}
		obs.SourceEventID, obs.TargetEventID = src.ID, dst.ID
		obs.TimeLagHours = lag
		obs.RelationType = kr.RelationType
		obs.CorrelationStrength = kr.CorrelationStrength
		obs.Confidence = kr.Confidence * minConf
		return obs, true
	}

	if len(shared) == 0 {
		return models.EventRelation{}, false
	}
	obs.CorrelationStrength = overlap
	obs.Confidence = minConf * overlap
	if a.Direction == b.Direction && a.Direction != models.DirectionNeutral {
		obs.RelationType = models.RelationReinforcing
	} else {
		obs.RelationType = models.RelationCorrelated
	}
	return obs, true
}

func overlapRatio(shared, n1, n2 int) float64 {
	m := n1
	if n2 > m {
		m = n2
	}
	if m == 0 {
		return 0
	}
	return float64(shared) / float64(m)
}
