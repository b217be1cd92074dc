package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
)

func TestRelationGraphUpsertMatchesEitherOrientation(t *testing.T) {
	g := NewRelationGraph(0)
	g.Upsert(relation("a", "b", models.RelationCausal, 0.5, 2, t0))

	got := g.Upsert(relation("b", "a", models.RelationCausal, 1.0, 2, t0.Add(time.Hour)))

	require.Equal(t, 1, g.Len())
	assert.Equal(t, "a", got.SourceEventID)
	assert.Equal(t, "b", got.TargetEventID)
	assert.Equal(t, 2, got.ObservationCount)
	assert.InDelta(t, 0.55, got.Confidence, 1e-9)
	assert.InDelta(t, 1.6, got.TimeLagHours, 1e-9)
	assert.True(t, got.LastObserved.Equal(t0.Add(time.Hour)))

	r, ok := g.Lookup("b", "a")
	require.True(t, ok)
	assert.Equal(t, got, r)
}

func TestRelationGraphEvictsLeastRecentlyObserved(t *testing.T) {
	g := NewRelationGraph(3)
	g.Upsert(relation("a", "b", models.RelationCausal, 0.5, 1, t0))
	g.Upsert(relation("b", "c", models.RelationCausal, 0.5, 1, t0.Add(time.Hour)))
	g.Upsert(relation("c", "d", models.RelationCausal, 0.5, 1, t0.Add(2*time.Hour)))
	g.Upsert(relation("d", "e", models.RelationCausal, 0.5, 1, t0.Add(3*time.Hour)))

	assert.Equal(t, 3, g.Len())
	_, ok := g.Lookup("a", "b")
	assert.False(t, ok)

	all := map[string]struct{}{"a": {}, "b": {}, "c": {}, "d": {}, "e": {}}
	assert.Equal(t, []string{"a"}, g.ConnectedComponent("a", all))
	assert.Equal(t, []string{"b", "c", "d", "e"}, g.ConnectedComponent("c", all))
}

func TestConnectedComponentRestrictedToActive(t *testing.T) {
	g := NewRelationGraph(0)
	g.Upsert(relation("a", "b", models.RelationCausal, 0.5, 1, t0))
	g.Upsert(relation("c", "b", models.RelationCorrelated, 0.5, 1, t0))

	full := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	assert.Equal(t, []string{"a", "b", "c"}, g.ConnectedComponent("c", full))

	partial := map[string]struct{}{"a": {}, "c": {}}
	assert.Equal(t, []string{"a"}, g.ConnectedComponent("a", partial))
	assert.Nil(t, g.ConnectedComponent("missing", full))
	assert.Nil(t, g.ConnectedComponent("b", partial))
}

func TestRelationGraphOutgoingAndBetween(t *testing.T) {
	g := NewRelationGraph(0)
	g.Upsert(relation("a", "c", models.RelationCausal, 0.5, 1, t0))
	g.Upsert(relation("a", "b", models.RelationSequential, 0.5, 1, t0))
	g.Upsert(relation("d", "a", models.RelationCausal, 0.5, 1, t0))

	out := g.Outgoing("a")
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].TargetEventID)
	assert.Equal(t, "c", out[1].TargetEventID)

	between := g.Between([]string{"a", "b", "d"})
	require.Len(t, between, 2)
	assert.Equal(t, "a", between[0].SourceEventID)
	assert.Equal(t, "d", between[1].SourceEventID)
}

func TestRelationGraphCloneIsIndependent(t *testing.T) {
	g := NewRelationGraph(0)
	g.Upsert(relation("a", "b", models.RelationCausal, 0.5, 1, t0))

	c := g.Clone()
	c.Upsert(relation("b", "c", models.RelationCausal, 0.5, 1, t0))
	c.Upsert(relation("a", "b", models.RelationCausal, 1.0, 1, t0))

	assert.Equal(t, 1, g.Len())
	assert.Equal(t, 2, c.Len())
	orig, _ := g.Lookup("a", "b")
	assert.Equal(t, 1, orig.ObservationCount)
	assert.InDelta(t, 0.5, orig.Confidence, 1e-9)
}

func TestKnowledgeRequiresRespectsOrientation(t *testing.T) {
	kb := NewKnowledge(DefaultRelations())

	r, ok := kb.Requires(models.CategoryTechnicalBreakout, models.CategoryMomentumShift)
	require.True(t, ok)
	assert.Equal(t, models.RelationSequential, r.RelationType)

	_, ok = kb.Requires(models.CategoryMomentumShift, models.CategoryTechnicalBreakout)
	assert.False(t, ok)

	_, ok = kb.Requires(models.CategoryCorrelationBreak, models.CategoryVolatilitySpike)
	assert.False(t, ok, "correlated relations impose no ordering")

	_, ok = kb.Lookup(models.CategoryMacro, models.CategoryMacro)
	assert.False(t, ok)
}
