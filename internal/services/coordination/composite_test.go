package coordination

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
)

func TestCompositeWithConflictingRelationIsResolved(t *testing.T) {
	a := newEvent("A", t0, models.DirectionBullish, "BTC")
	a.Confidence, a.ExpectedImpact = 0.8, 0.6
	b := newEvent("B", t0.Add(15*time.Minute), models.DirectionBearish, "BTC")
	b.Confidence, b.ExpectedImpact = 0.6, 0.2
	g := NewRelationGraph(0)
	g.Upsert(relation("A", "B", models.RelationConflicting, 0.6, 0.25, t0))
	conflicts := []*models.EventConflict{manualConflict(models.ConflictDirection, 0.8, "A", "B")}

	out := NewCompositeBuilder(0.4, models.MethodWeightedAverage, seqIDs()).Build(conflicts, []*models.Event{a, b}, g)

	require.Len(t, out, 1)
	ce := out[0]
	assert.True(t, strings.HasPrefix(ce.ID, "resolved_"))
	assert.Equal(t, []string{"A", "B"}, ce.ComponentEventIDs)
	assert.InDelta(t, 0.7, ce.AggregateConfidence, 1e-9)
	require.NotNil(t, ce.Resolution)
	assert.Equal(t, ce.ID, ce.Resolution.CompositeID)
	assert.Equal(t, models.MethodWeightedAverage, ce.ResolutionStrategy)

	var sum float64
	for _, w := range ce.Resolution.EventWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// raw weights 0.74 and 0.48
	wa := 0.74 / 1.22
	wb := 0.48 / 1.22
	assert.InDelta(t, wa, ce.Resolution.EventWeights["A"], 1e-9)
	assert.InDelta(t, wa*0.6+wb*0.2, ce.CompositeImpactMagnitude, 1e-9)
	assert.Equal(t, models.DirectionBullish, ce.DominantDirection)
	assert.Len(t, ce.Relations, 1)
}

func TestCompositeBelowThresholdIsDiscarded(t *testing.T) {
	a := newEvent("A", t0, models.DirectionBullish, "BTC")
	a.Confidence = 0.2
	b := newEvent("B", t0, models.DirectionBullish, "BTC")
	b.Confidence = 0.3
	g := NewRelationGraph(0)
	g.Upsert(relation("A", "B", models.RelationReinforcing, 0.5, 0, t0))
	conflicts := []*models.EventConflict{manualConflict(models.ConflictTiming, 1, "A", "B")}

	out := NewCompositeBuilder(0.4, models.MethodWeightedAverage, seqIDs()).Build(conflicts, []*models.Event{a, b}, g)

	assert.Empty(t, out)
}

func TestCompositeAggregatesComponent(t *testing.T) {
	a := newEvent("A", t0, models.DirectionBullish, "BTC")
	a.Category = models.CategoryMacro
	a.ExpectedImpact = 0.6
	b := newEvent("B", t0.Add(2*time.Hour), models.DirectionBullish, "ETH")
	b.Category = models.CategoryEarnings
	b.Severity = models.SeverityCritical
	b.ExpectedImpact = 0.8
	c := newEvent("C", t0.Add(time.Hour), models.DirectionBearish, "SOL")
	c.Category = models.CategoryEarnings
	c.Confidence = 0.5
	c.ExpectedImpact = 0.0
	isolated := newEvent("D", t0, models.DirectionNeutral, "XRP")

	g := NewRelationGraph(0)
	g.Upsert(relation("A", "C", models.RelationReinforcing, 0.6, 1, t0))
	g.Upsert(relation("C", "B", models.RelationCausal, 0.6, 1, t0))
	conflicts := []*models.EventConflict{
		manualConflict(models.ConflictTiming, 0.5, "A", "D"),
		manualConflict(models.ConflictTiming, 0.5, "B", "C"),
	}

	out := NewCompositeBuilder(0.4, models.MethodWeightedAverage, seqIDs()).Build(conflicts, []*models.Event{a, b, c, isolated}, g)

	require.Len(t, out, 1)
	ce := out[0]
	assert.False(t, strings.HasPrefix(ce.ID, "resolved_"))
	assert.Nil(t, ce.Resolution)
	assert.Equal(t, []string{"A", "B", "C"}, ce.ComponentEventIDs)
	assert.InDelta(t, 0.7, ce.AggregateConfidence, 1e-9)
	assert.InDelta(t, 1.0, ce.CompositeImpactMagnitude, 1e-9)
	assert.Equal(t, models.CategoryEarnings, ce.DominantCategory)
	assert.Equal(t, models.DirectionBullish, ce.DominantDirection)
	assert.True(t, ce.ExpectedStartTime.Equal(t0))
	assert.InDelta(t, 2+4, ce.ExpectedDurationHours, 1e-9)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, ce.AffectedSymbols)
	assert.Equal(t, models.PriorityFromScore(0.6*0.7+0.4*1.0), ce.Priority)
}

func TestCompositeImpactIsL2Norm(t *testing.T) {
	a := newEvent("A", t0, models.DirectionBullish, "BTC")
	a.ExpectedImpact = 0.3
	b := newEvent("B", t0, models.DirectionBullish, "BTC")
	b.ExpectedImpact = 0.4
	g := NewRelationGraph(0)
	g.Upsert(relation("A", "B", models.RelationReinforcing, 0.5, 0, t0))

	out := NewCompositeBuilder(0.4, models.MethodWeightedAverage, seqIDs()).Build(
		[]*models.EventConflict{manualConflict(models.ConflictTiming, 1, "A", "B")}, []*models.Event{a, b}, g)

	require.Len(t, out, 1)
	assert.InDelta(t, math.Sqrt(0.09+0.16), out[0].CompositeImpactMagnitude, 1e-9)
}

func TestResolveCompositeMethods(t *testing.T) {
	a := newEvent("A", t0, models.DirectionBullish)
	a.Confidence, a.ExpectedImpact = 0.9, 0.5
	b := newEvent("B", t0, models.DirectionBearish)
	b.Confidence, b.ExpectedImpact = 0.5, 0.5
	c := newEvent("C", t0, models.DirectionBearish)
	c.Confidence, c.ExpectedImpact = 0.5, 0.3
	members := []*models.Event{a, b, c}

	hc := resolveComposite(members, models.MethodHighestConfidence)
	assert.Equal(t, models.DirectionBullish, hc.ResolvedDirection)
	assert.InDelta(t, 0.9, hc.ResolvedConfidence, 1e-9)

	md := resolveComposite(members, models.MethodMajorityDirection)
	assert.Equal(t, models.DirectionBearish, md.ResolvedDirection)
	assert.InDelta(t, 0.5, md.ResolvedConfidence, 1e-9)
	assert.Less(t, md.ResolvedImpact, 0.5)
	assert.Greater(t, md.ResolvedImpact, 0.3)

	wa := resolveComposite(members, models.MethodWeightedAverage)
	var sum float64
	for _, w := range wa.EventWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, models.DirectionBearish, wa.ResolvedDirection)
}
