package models

import "time"

// CoordinationResult is the outcome of one coordination pass.
type CoordinationResult struct {
	ID                     string           `json:"id"`
	Timestamp              time.Time        `json:"timestamp"`
	CoordinationMode       CoordinationMode `json:"coordination_mode"`
	ProcessedEventIDs      []string         `json:"processed_event_ids"`
	ConflictsDetected      []*EventConflict `json:"conflicts_detected"`
	ConflictsResolvedCount int              `json:"conflicts_resolved_count"`
	CompositeEvents        []CompositeEvent `json:"composite_events"`
	EventChains            []EventChain     `json:"event_chains"`
	Schedule               *EventSchedule   `json:"schedule,omitempty"`
	Effectiveness          float64          `json:"effectiveness"`
	ResourceUtilization    float64          `json:"resource_utilization"`
	Recommendations        []string         `json:"recommendations"`
	Warnings               []string         `json:"warnings"`
	ProcessingTimeMs       int64            `json:"processing_time_ms"`
	Partial                bool             `json:"partial"`
}

// UnresolvedCount counts conflicts left unresolved.
func (r *CoordinationResult) UnresolvedCount() int {
	n := 0
	for _, c := range r.ConflictsDetected {
		if !c.IsResolved {
			n++
		}
	}
	return n
}

// ResultSummary is the compact history form of a result.
type ResultSummary struct {
	ID                     string           `json:"id"`
	Timestamp              time.Time        `json:"timestamp"`
	CoordinationMode       CoordinationMode `json:"coordination_mode"`
	EventsProcessed        int              `json:"events_processed"`
	ConflictsDetected      int              `json:"conflicts_detected"`
	ConflictsResolvedCount int              `json:"conflicts_resolved_count"`
	ScheduledEvents        int              `json:"scheduled_events"`
	Effectiveness          float64          `json:"effectiveness"`
	ResourceUtilization    float64          `json:"resource_utilization"`
	WarningCount           int              `json:"warning_count"`
	ProcessingTimeMs       int64            `json:"processing_time_ms"`
}

// Summarize builds the compact form.
func (r *CoordinationResult) Summarize() ResultSummary {
	s := ResultSummary{
		ID:                     r.ID,
		Timestamp:              r.Timestamp,
		CoordinationMode:       r.CoordinationMode,
		EventsProcessed:        len(r.ProcessedEventIDs),
		ConflictsDetected:      len(r.ConflictsDetected),
		ConflictsResolvedCount: r.ConflictsResolvedCount,
		Effectiveness:          r.Effectiveness,
		ResourceUtilization:    r.ResourceUtilization,
		WarningCount:           len(r.Warnings),
		ProcessingTimeMs:       r.ProcessingTimeMs,
	}
	if r.Schedule != nil {
		s.ScheduledEvents = len(r.Schedule.EventIDs)
	}
	return s
}

// CoordinationStatus is the live state of the engine.
type CoordinationStatus struct {
	ActiveEvents        int              `json:"active_events"`
	ActiveSchedules     int              `json:"active_schedules"`
	UnresolvedConflicts int              `json:"unresolved_conflicts"`
	CoordinationMode    CoordinationMode `json:"coordination_mode"`
	HistorySize         int              `json:"history_size"`
	RelationCount       int              `json:"relation_count"`
	TotalRequests       int64            `json:"total_requests"`
	SuccessfulRequests  int64            `json:"successful_requests"`
	FailedRequests      int64            `json:"failed_requests"`
	SuccessRate         float64          `json:"success_rate"`
	AvgLatencyMs        float64          `json:"avg_latency_ms"`
}
