package coordination

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
)

func lineGraph(t *testing.T) (*RelationGraph, []*models.Event) {
	t.Helper()
	g := NewRelationGraph(0)
	g.Upsert(relation("a", "b", models.RelationCausal, 0.8, 1, t0))
	g.Upsert(relation("b", "c", models.RelationSequential, 0.5, 2, t0))
	g.Upsert(relation("c", "d", models.RelationReinforcing, 0.8, 3, t0))
	var events []*models.Event
	for i, id := range []string{"a", "b", "c", "d"} {
		events = append(events, newEvent(id, t0.Add(time.Duration(i)*time.Hour), models.DirectionBullish))
	}
	return g, events
}

func TestChainsEnumerateSimplePaths(t *testing.T) {
	g, events := lineGraph(t)

	rep, err := NewChainDetector(8, 50, 100, time.Second, seqIDs()).Detect(context.Background(), g, events)
	require.NoError(t, err)

	require.Len(t, rep.Chains, 3)
	assert.False(t, rep.Truncated)
	assert.Equal(t, []string{"a", "b", "c", "d"}, rep.Chains[0].EventSequence)
	assert.InDelta(t, math.Cbrt(0.32), rep.Chains[0].ChainConfidence, 1e-9)
	assert.InDelta(t, 6, rep.Chains[0].TotalExpectedDurationHours, 1e-9)
	assert.Equal(t, []string{"a", "b", "c"}, rep.Chains[1].EventSequence)
	assert.Equal(t, []string{"b", "c", "d"}, rep.Chains[2].EventSequence)
	for _, c := range rep.Chains {
		assert.GreaterOrEqual(t, len(c.EventSequence), 3)
		assert.LessOrEqual(t, len(c.EventSequence), 8)
		assert.LessOrEqual(t, c.CompletionProbability, c.ChainConfidence)
		assert.InDelta(t, c.ChainConfidence*0.8, c.CompletionProbability, 1e-9)
	}
}

func TestChainsIgnoreNonPropagatingEdges(t *testing.T) {
	g := NewRelationGraph(0)
	g.Upsert(relation("a", "b", models.RelationCorrelated, 0.8, 1, t0))
	g.Upsert(relation("b", "c", models.RelationConflicting, 0.8, 1, t0))
	events := []*models.Event{
		newEvent("a", t0, models.DirectionBullish),
		newEvent("b", t0, models.DirectionBullish),
		newEvent("c", t0, models.DirectionBullish),
	}

	rep, err := NewChainDetector(8, 50, 100, time.Second, seqIDs()).Detect(context.Background(), g, events)
	require.NoError(t, err)
	assert.Empty(t, rep.Chains)
}

func TestChainsShortCircuitBelowThreeNodes(t *testing.T) {
	g, events := lineGraph(t)

	rep, err := NewChainDetector(8, 50, 100, time.Second, seqIDs()).Detect(context.Background(), g, events[:2])
	require.NoError(t, err)
	assert.Empty(t, rep.Chains)
	assert.False(t, rep.Truncated)
}

func TestChainsRespectCaps(t *testing.T) {
	g, events := lineGraph(t)

	short, err := NewChainDetector(3, 50, 100, time.Second, seqIDs()).Detect(context.Background(), g, events)
	require.NoError(t, err)
	require.Len(t, short.Chains, 2)
	for _, c := range short.Chains {
		assert.Len(t, c.EventSequence, 3)
	}

	capped, err := NewChainDetector(8, 50, 1, time.Second, seqIDs()).Detect(context.Background(), g, events)
	require.NoError(t, err)
	assert.Len(t, capped.Chains, 1)
	assert.True(t, capped.Truncated)

	nodes, err := NewChainDetector(8, 3, 100, time.Second, seqIDs()).Detect(context.Background(), g, events)
	require.NoError(t, err)
	assert.True(t, nodes.Truncated)
	require.Len(t, nodes.Chains, 1)
	assert.Equal(t, []string{"a", "b", "c"}, nodes.Chains[0].EventSequence)
}

func TestChainsSkipEventsOutsideSurvivors(t *testing.T) {
	g, events := lineGraph(t)
	survivors := []*models.Event{events[0], events[2], events[3]}

	rep, err := NewChainDetector(8, 50, 100, time.Second, seqIDs()).Detect(context.Background(), g, survivors)
	require.NoError(t, err)
	assert.Empty(t, rep.Chains)
}
