package coordination

import (
	"FinCoord/internal/domain/models"
)

// Knowledge is the static category-level relation graph. Node ids are category
// names. It is built once and only read afterwards.
type Knowledge struct {
	graph *RelationGraph
}

// DefaultRelations seeds typical market cause and effect between categories.
func DefaultRelations() []models.EventRelation {
	rel := func(src, dst models.EventCategory, t models.RelationType, strength, lag, conf float64) models.EventRelation {
		return models.EventRelation{
			SourceEventID:       string(src),
			TargetEventID:       string(dst),
			RelationType:        t,
			CorrelationStrength: strength,
			TimeLagHours:        lag,
			Confidence:          conf,
			ObservationCount:    1,
		}
	}
	return []models.EventRelation{
		rel(models.CategoryMacro, models.CategoryVolatilitySpike, models.RelationCausal, 0.7, 2, 0.75),
		rel(models.CategoryMacro, models.CategoryMomentumShift, models.RelationCausal, 0.6, 6, 0.65),
		rel(models.CategoryEarnings, models.CategoryVolatilitySpike, models.RelationCausal, 0.65, 1, 0.7),
		rel(models.CategoryVolumeAnomaly, models.CategoryTechnicalBreakout, models.RelationCausal, 0.6, 1, 0.65),
		rel(models.CategoryTechnicalBreakout, models.CategoryMomentumShift, models.RelationSequential, 0.55, 4, 0.6),
		rel(models.CategoryVolatilitySpike, models.CategoryLiquidityCrisis, models.RelationCausal, 0.5, 3, 0.55),
		rel(models.CategoryNewsSentiment, models.CategoryMomentumShift, models.RelationCausal, 0.5, 2, 0.55),
		rel(models.CategoryNewsSentiment, models.CategoryVolumeAnomaly, models.RelationCausal, 0.55, 0.5, 0.6),
		rel(models.CategoryRegulatory, models.CategoryLiquidityCrisis, models.RelationCausal, 0.45, 12, 0.5),
		rel(models.CategoryCorrelationBreak, models.CategoryVolatilitySpike, models.RelationCorrelated, 0.5, 0, 0.5),
	}
}

func NewKnowledge(relations []models.EventRelation) *Knowledge {
	g := NewRelationGraph(0)
	for _, r := range relations {
		g.Upsert(r)
	}
	return &Knowledge{graph: g}
}

// Lookup returns the relation between two categories in either orientation.
func (k *Knowledge) Lookup(a, b models.EventCategory) (models.EventRelation, bool) {
	if k == nil || a == "" || b == "" || a == b {
		return models.EventRelation{}, false
	}
	return k.graph.Lookup(string(a), string(b))
}

// Requires reports the ordering relation under which src must precede dst.
func (k *Knowledge) Requires(src, dst models.EventCategory) (models.EventRelation, bool) {
	r, ok := k.Lookup(src, dst)
	if !ok || r.SourceEventID != string(src) {
		return models.EventRelation{}, false
	}
	if r.RelationType != models.RelationCausal && r.RelationType != models.RelationSequential {
		return models.EventRelation{}, false
	}
	return r, true
}

func (k *Knowledge) Len() int {
	if k == nil {
		return 0
	}
	return k.graph.Len()
}
