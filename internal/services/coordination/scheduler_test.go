package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
)

func TestScheduleOrdersByKeyAndAllocates(t *testing.T) {
	a := newEvent("A", t0.Add(30*time.Minute), models.DirectionBullish, "BTC")
	a.Severity = models.SeverityHigh
	a.ResourceWeight = 0.5
	b := newEvent("B", t0.Add(10*time.Hour), models.DirectionBullish, "BTC", "ETH")
	b.Severity = models.SeverityCritical
	b.Confidence = 0.9
	c := newEvent("C", t0.Add(time.Hour), models.DirectionBullish, "BTC")
	c.Severity = models.SeverityLow
	c.Confidence = 0.5
	c.ResourceWeight = 0.5

	s, err := NewScheduler(2, seqIDs()).Build(context.Background(), []*models.Event{a, b, c}, models.ModeBalanced, t0)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, []string{"A", "B", "C"}, s.EventIDs)
	assert.Equal(t, models.ModeBalanced, s.CoordinationMode)
	assert.InDelta(t, 2.2+4.8+0.55, s.TotalDurationHours, 1e-9)

	var sum float64
	for _, w := range s.ResourceAllocation {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, 0.25, s.ResourceAllocation["A"], 1e-9)
	assert.InDelta(t, 0.5, s.ResourceAllocation["B"], 1e-9)

	risk := s.RiskAssessment
	assert.InDelta(t, 0, risk.TimingRisk, 1e-9)
	assert.InDelta(t, 0.6, risk.ResourceRisk, 1e-9)
	assert.InDelta(t, 0.3, risk.CoordinationRisk, 1e-9)
	assert.InDelta(t, 1-2.2/3, risk.ExecutionRisk, 1e-9)
}

func TestScheduleTiesBreakByTimeThenID(t *testing.T) {
	later := newEvent("A", t0.Add(-time.Hour), models.DirectionNeutral)
	earlier := newEvent("B", t0.Add(-2*time.Hour), models.DirectionNeutral)
	twin := newEvent("C", t0.Add(-2*time.Hour), models.DirectionNeutral)

	s, err := NewScheduler(1, seqIDs()).Build(context.Background(), []*models.Event{twin, later, earlier}, models.ModeBalanced, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, s.EventIDs)
	assert.InDelta(t, 0.4, s.RiskAssessment.TimingRisk, 1e-9)
}

func TestScheduleEmptyInput(t *testing.T) {
	s, err := NewScheduler(2, seqIDs()).Build(context.Background(), nil, models.ModeBalanced, t0)
	require.NoError(t, err)
	assert.Nil(t, s)
}
