package coordination

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"FinCoord/internal/domain/models"
)

func TestEffectiveness(t *testing.T) {
	assert.InDelta(t, 0.7, Effectiveness(0, 0, nil), 1e-9)
	assert.InDelta(t, 0.35, Effectiveness(2, 1, nil), 1e-9)

	calm := &models.EventSchedule{}
	assert.InDelta(t, 1.0, Effectiveness(0, 0, calm), 1e-9)

	risky := &models.EventSchedule{RiskAssessment: models.RiskAssessment{TimingRisk: 0.2, ResourceRisk: 0.2, CoordinationRisk: 0.2, ExecutionRisk: 0.2}}
	assert.InDelta(t, 0.5*1.2*0.9, Effectiveness(2, 1, risky), 1e-9)
}

func TestUtilization(t *testing.T) {
	assert.Equal(t, 0.0, Utilization(nil))
	assert.InDelta(t, 1.0, Utilization(&models.EventSchedule{ResourceAllocation: map[string]float64{"a": 0.5, "b": 0.5}}), 1e-9)
	assert.InDelta(t, 1/1.5, Utilization(&models.EventSchedule{ResourceAllocation: map[string]float64{"a": 0.25, "b": 0.75}}), 1e-9)
}

func TestAggregateWarningsAndRecommendations(t *testing.T) {
	r := &models.CoordinationResult{
		CoordinationMode:  models.ModeBalanced,
		ProcessedEventIDs: []string{"a", "b"},
		ConflictsDetected: []*models.EventConflict{
			{ConflictType: models.ConflictTiming, SeverityScore: 0.9, IsResolved: true},
			{ConflictType: models.ConflictDirection, SeverityScore: 0.4},
		},
		ConflictsResolvedCount: 1,
		Schedule: &models.EventSchedule{
			TotalDurationHours: 13,
			ResourceAllocation: map[string]float64{"a": 0.5, "b": 0.5},
			RiskAssessment:     models.RiskAssessment{ExecutionRisk: 0.6},
		},
	}

	aggregate(aggregateInput{result: r, warnings: []string{"event \"x\" rejected: id is required"}})

	joined := strings.Join(r.Warnings, "\n")
	assert.Contains(t, joined, "rejected")
	assert.Contains(t, joined, "1 conflict(s) remain unresolved")
	assert.Contains(t, joined, "1 high-severity conflict(s)")
	assert.Contains(t, joined, "exceeds 12h")

	recs := strings.Join(r.Recommendations, "\n")
	assert.Contains(t, recs, "Split the schedule")
	assert.Contains(t, recs, "ADAPTIVE")
	assert.Contains(t, recs, "confidence is low")
	assert.InDelta(t, 1.0, r.ResourceUtilization, 1e-9)
	assert.Greater(t, r.Effectiveness, 0.0)
}

func TestAggregateEmptyInputIsZero(t *testing.T) {
	r := &models.CoordinationResult{CoordinationMode: models.ModeBalanced}
	aggregate(aggregateInput{result: r})
	assert.Equal(t, 0.0, r.Effectiveness)
	assert.Equal(t, 0.0, r.ResourceUtilization)
	assert.Empty(t, r.Recommendations)
}
