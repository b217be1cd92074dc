package models

import "time"

// RiskAssessment scores the execution risk of a schedule. Each value is in [0,1].
type RiskAssessment struct {
	TimingRisk       float64 `json:"timing_risk"`
	ResourceRisk     float64 `json:"resource_risk"`
	CoordinationRisk float64 `json:"coordination_risk"`
	ExecutionRisk    float64 `json:"execution_risk"`
}

// Mean averages the four risk dimensions.
func (r RiskAssessment) Mean() float64 {
	return (r.TimingRisk + r.ResourceRisk + r.CoordinationRisk + r.ExecutionRisk) / 4
}

// EventSchedule is the ordered execution plan produced after resolution.
type EventSchedule struct {
	ID                 string             `json:"id"`
	EventIDs           []string           `json:"event_ids"`
	CoordinationMode   CoordinationMode   `json:"coordination_mode"`
	TotalDurationHours float64            `json:"total_duration_hours"`
	ResourceAllocation map[string]float64 `json:"resource_allocation"`
	RiskAssessment     RiskAssessment     `json:"risk_assessment"`
	CreatedAt          time.Time          `json:"created_at"`
}
