package coordination

import (
	"math"
	"time"

	"FinCoord/internal/domain/models"
)

// CompositeBuilder groups related surviving events into composites.
type CompositeBuilder struct {
	minConfidence float64
	method        models.ResolutionMethod
	newID         func() string
}

func NewCompositeBuilder(minConfidence float64, method models.ResolutionMethod, newID func() string) *CompositeBuilder {
	return &CompositeBuilder{minConfidence: minConfidence, method: method, newID: newID}
}

// Build seeds from conflict members in detection order and expands each seed to
// its connected component over survivors.
func (b *CompositeBuilder) Build(conflicts []*models.EventConflict, survivors []*models.Event, graph *RelationGraph) []models.CompositeEvent {
	byID := make(map[string]*models.Event, len(survivors))
	active := make(map[string]struct{}, len(survivors))
	for _, e := range survivors {
		byID[e.ID] = e
		active[e.ID] = struct{}{}
	}

	visited := make(map[string]struct{})
	var out []models.CompositeEvent
	for _, c := range conflicts {
		for _, seed := range c.EventIDs {
			if _, ok := visited[seed]; ok {
				continue
			}
			if _, ok := active[seed]; !ok {
				continue
			}
			component := graph.ConnectedComponent(seed, active)
			for _, id := range component {
				visited[id] = struct{}{}
			}
			if len(component) < 2 {
				continue
			}
			members := make([]*models.Event, len(component))
			for i, id := range component {
				members[i] = byID[id]
			}
			if ce, ok := b.compose(members, graph.Between(component)); ok {
				out = append(out, ce)
			}
		}
	}
	return out
}

func (b *CompositeBuilder) compose(members []*models.Event, relations []models.EventRelation) (models.CompositeEvent, bool) {
	var confSum, sq float64
	start, end := members[0].EventTime, members[0].EventTime
	var maxBase time.Duration
	ids := make([]string, len(members))
	symbols := make([][]string, len(members))
	for i, e := range members {
		ids[i] = e.ID
		symbols[i] = e.AffectedSymbols
		confSum += e.Confidence
		sq += e.ExpectedImpact * e.ExpectedImpact
		if e.EventTime.Before(start) {
			start = e.EventTime
		}
		if e.EventTime.After(end) {
			end = e.EventTime
		}
		if d := e.Severity.BaseDuration(); d > maxBase {
			maxBase = d
		}
	}
	conf := confSum / float64(len(members))
	if conf < b.minConfidence {
		return models.CompositeEvent{}, false
	}

	ce := models.CompositeEvent{
		ID:                       b.newID(),
		ComponentEventIDs:        ids,
		Relations:                relations,
		AggregateConfidence:      conf,
		CompositeImpactMagnitude: math.Min(1, math.Sqrt(sq)),
		ExpectedStartTime:        start,
		ExpectedDurationHours:    end.Sub(start).Hours() + maxBase.Hours(),
		AffectedSymbols:          models.UnionSymbols(symbols...),
		DominantCategory:         dominantCategory(members),
		DominantDirection:        dominantDirection(members, nil),
	}
	if ce.Relations == nil {
		ce.Relations = []models.EventRelation{}
	}

	if hasConflicting(relations) {
		res := resolveComposite(members, b.method)
		res.ID = b.newID()
		ce.ID = "resolved_" + ce.ID
		res.CompositeID = ce.ID
		ce.CompositeImpactMagnitude = res.ResolvedImpact
		ce.DominantDirection = res.ResolvedDirection
		ce.ResolutionStrategy = b.method
		ce.Resolution = &res
	}
	ce.Priority = models.PriorityFromScore(0.6*ce.AggregateConfidence + 0.4*ce.CompositeImpactMagnitude)
	return ce, true
}

func hasConflicting(relations []models.EventRelation) bool {
	for _, r := range relations {
		if r.RelationType == models.RelationConflicting {
			return true
		}
	}
	return false
}

// resolveComposite weights members by 0.7·confidence + 0.3·impact, normalized.
func resolveComposite(members []*models.Event, method models.ResolutionMethod) models.ConflictResolution {
	weights := make(map[string]float64, len(members))
	raw := make([]float64, len(members))
	var total float64
	for i, e := range members {
		raw[i] = 0.7*e.Confidence + 0.3*e.ExpectedImpact
		total += raw[i]
	}
	for i, e := range members {
		if total > 0 {
			raw[i] /= total
		} else {
			raw[i] = 1 / float64(len(members))
		}
		weights[e.ID] = raw[i]
	}

	res := models.ConflictResolution{Method: method, EventWeights: weights}
	switch method {
	case models.MethodHighestConfidence:
		best := 0
		for i := range members {
			if raw[i] > raw[best] {
				best = i
			}
		}
		res.ResolvedConfidence = members[best].Confidence
		res.ResolvedImpact = members[best].ExpectedImpact
		res.ResolvedDirection = members[best].Direction
	case models.MethodMajorityDirection:
		dir := dominantDirection(members, raw)
		var w, c, imp float64
		for i, e := range members {
			if e.Direction != dir {
				continue
			}
			w += raw[i]
			c += raw[i] * e.Confidence
			imp += raw[i] * e.ExpectedImpact
		}
		if w > 0 {
			c /= w
			imp /= w
		}
		res.ResolvedConfidence = c
		res.ResolvedImpact = imp
		res.ResolvedDirection = dir
	default:
		for i, e := range members {
			res.ResolvedConfidence += raw[i] * e.Confidence
			res.ResolvedImpact += raw[i] * e.ExpectedImpact
		}
		res.ResolvedDirection = dominantDirection(members, raw)
	}
	res.ResolvedConfidence = models.Clamp01(res.ResolvedConfidence)
	res.ResolvedImpact = models.Clamp01(res.ResolvedImpact)
	return res
}

// dominantCategory is the most frequent category, first seen wins ties.
func dominantCategory(members []*models.Event) models.EventCategory {
	counts := make(map[models.EventCategory]int)
	var best models.EventCategory
	for _, e := range members {
		counts[e.Category]++
	}
	for _, e := range members {
		if best == "" || counts[e.Category] > counts[best] {
			best = e.Category
		}
	}
	return best
}

// dominantDirection sums weights per direction (a count when weights is nil);
// first seen wins ties.
func dominantDirection(members []*models.Event, weights []float64) models.Direction {
	sums := make(map[models.Direction]float64)
	for i, e := range members {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		sums[e.Direction] += w
	}
	var best models.Direction
	for _, e := range members {
		if best == "" || sums[e.Direction] > sums[best] {
			best = e.Direction
		}
	}
	return best
}
