package models

import "time"

// Priority ranks composite events.
type Priority string

const (
	PriorityCritical   Priority = "CRITICAL"
	PriorityHigh       Priority = "HIGH"
	PriorityMedium     Priority = "MEDIUM"
	PriorityLow        Priority = "LOW"
	PriorityMonitoring Priority = "MONITORING"
)

// PriorityFromScore maps a weighted score onto a priority band.
func PriorityFromScore(score float64) Priority {
	switch {
	case score >= 0.85:
		return PriorityCritical
	case score >= 0.7:
		return PriorityHigh
	case score >= 0.5:
		return PriorityMedium
	case score >= 0.3:
		return PriorityLow
	default:
		return PriorityMonitoring
	}
}

// ResolutionMethod combines conflicting members of a composite.
type ResolutionMethod string

const (
	MethodWeightedAverage   ResolutionMethod = "WEIGHTED_AVERAGE"
	MethodHighestConfidence ResolutionMethod = "HIGHEST_CONFIDENCE"
	MethodMajorityDirection ResolutionMethod = "MAJORITY_DIRECTION"
)

// ConflictResolution records how a composite with internal conflicts was settled.
type ConflictResolution struct {
	ID                 string             `json:"id"`
	CompositeID        string             `json:"composite_id"`
	Method             ResolutionMethod   `json:"method"`
	EventWeights       map[string]float64 `json:"event_weights"`
	ResolvedConfidence float64            `json:"resolved_confidence"`
	ResolvedImpact     float64            `json:"resolved_impact"`
	ResolvedDirection  Direction          `json:"resolved_direction"`
}

// CompositeEvent aggregates a connected group of related events.
type CompositeEvent struct {
	ID                       string              `json:"id"`
	ComponentEventIDs        []string            `json:"component_event_ids"`
	Relations                []EventRelation     `json:"relations"`
	Priority                 Priority            `json:"priority"`
	AggregateConfidence      float64             `json:"aggregate_confidence"`
	CompositeImpactMagnitude float64             `json:"composite_impact_magnitude"`
	ExpectedStartTime        time.Time           `json:"expected_start_time"`
	ExpectedDurationHours    float64             `json:"expected_duration_hours"`
	AffectedSymbols          []string            `json:"affected_symbols"`
	DominantCategory         EventCategory       `json:"dominant_category"`
	DominantDirection        Direction           `json:"dominant_direction"`
	ResolutionStrategy       ResolutionMethod    `json:"resolution_strategy,omitempty"`
	Resolution               *ConflictResolution `json:"resolution,omitempty"`
}

// EventChain is a multi-hop causal path through the relation graph.
type EventChain struct {
	ID                         string   `json:"id"`
	EventSequence              []string `json:"event_sequence"`
	ChainConfidence            float64  `json:"chain_confidence"`
	TotalExpectedDurationHours float64  `json:"total_expected_duration_hours"`
	CompletionProbability      float64  `json:"completion_probability"`
}
