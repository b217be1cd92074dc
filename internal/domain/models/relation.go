package models

import "time"

// RelationType describes how two events (or categories) influence each other.
type RelationType string

const (
	RelationCausal      RelationType = "CAUSAL"
	RelationCorrelated  RelationType = "CORRELATED"
	RelationConflicting RelationType = "CONFLICTING"
	RelationReinforcing RelationType = "REINFORCING"
	RelationSequential  RelationType = "SEQUENTIAL"
	RelationIndependent RelationType = "INDEPENDENT"
)

// Propagates reports whether the relation carries an effect forward in time.
func (t RelationType) Propagates() bool {
	switch t {
	case RelationCausal, RelationSequential, RelationReinforcing:
		return true
	}
	return false
}

// EventRelation is a directed edge of the relation graph.
type EventRelation struct {
	SourceEventID       string       `json:"source_event_id"`
	TargetEventID       string       `json:"target_event_id"`
	RelationType        RelationType `json:"relation_type"`
	CorrelationStrength float64      `json:"correlation_strength"`
	TimeLagHours        float64      `json:"time_lag_hours"`
	Confidence          float64      `json:"confidence"`
	ObservationCount    int          `json:"observation_count"`
	LastObserved        time.Time    `json:"last_observed"`
}
