package models

import (
	"strings"
	"time"
)

// ConflictType names the kind of incompatibility between events.
type ConflictType string

const (
	ConflictTiming     ConflictType = "TIMING"
	ConflictResource   ConflictType = "RESOURCE"
	ConflictDirection  ConflictType = "DIRECTION"
	ConflictMagnitude  ConflictType = "MAGNITUDE"
	ConflictDependency ConflictType = "DEPENDENCY"
)

// ConflictTypes lists conflict types in detection order.
var ConflictTypes = []ConflictType{ConflictTiming, ConflictDirection, ConflictResource, ConflictMagnitude, ConflictDependency}

// ResolutionStrategy is applied to the member events of a conflict.
type ResolutionStrategy string

const (
	StrategyPriorityOverride ResolutionStrategy = "PRIORITY_OVERRIDE"
	StrategyMergeEffects     ResolutionStrategy = "MERGE_EFFECTS"
	StrategyTimeSeparation   ResolutionStrategy = "TIME_SEPARATION"
	StrategyResourceSharing  ResolutionStrategy = "RESOURCE_SHARING"
	StrategyCancelLower      ResolutionStrategy = "CANCEL_LOWER"
)

// ResolutionStrategies is the strategy menu in fallback order.
var ResolutionStrategies = []ResolutionStrategy{
	StrategyPriorityOverride,
	StrategyMergeEffects,
	StrategyTimeSeparation,
	StrategyResourceSharing,
	StrategyCancelLower,
}

// CoordinationMode selects which resolution strategy is preferred.
type CoordinationMode string

const (
	ModeConservative CoordinationMode = "CONSERVATIVE"
	ModeAggressive   CoordinationMode = "AGGRESSIVE"
	ModeBalanced     CoordinationMode = "BALANCED"
	ModeAdaptive     CoordinationMode = "ADAPTIVE"
)

// CoordinationModes lists all modes.
var CoordinationModes = []CoordinationMode{ModeConservative, ModeAggressive, ModeBalanced, ModeAdaptive}

// ParseMode returns the mode and whether the input named a known mode.
func ParseMode(s string) (CoordinationMode, bool) {
	for _, m := range CoordinationModes {
		if string(m) == s {
			return m, true
		}
	}
	return ModeBalanced, false
}

// ModeLabel maps a client-supplied mode to a bounded metric label: the mode
// itself, DEFAULT when empty, UNKNOWN otherwise.
func ModeLabel(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "DEFAULT"
	}
	if m, ok := ParseMode(s); ok {
		return string(m)
	}
	return "UNKNOWN"
}

// ConflictState tracks a conflict through resolution.
type ConflictState string

const (
	StateDetected         ConflictState = "detected"
	StateStrategySelected ConflictState = "strategy_selected"
	StateApplied          ConflictState = "applied"
	StateResolved         ConflictState = "resolved"
	StateFailed           ConflictState = "failed"
)

// EventConflict is a detected incompatibility between two or more events.
type EventConflict struct {
	ID                 string             `json:"id"`
	EventIDs           []string           `json:"event_ids"`
	ConflictType       ConflictType       `json:"conflict_type"`
	SeverityScore      float64            `json:"severity_score"`
	AffectedSymbols    []string           `json:"affected_symbols"`
	Description        string             `json:"description"`
	IsResolved         bool               `json:"is_resolved"`
	ResolutionStrategy ResolutionStrategy `json:"resolution_strategy,omitempty"`
	ResolutionTime     *time.Time         `json:"resolution_time,omitempty"`
	ResolutionNote     string             `json:"resolution_note,omitempty"`
	State              ConflictState      `json:"state"`
	Attempts           int                `json:"attempts,omitempty"`
	DetectedAt         time.Time          `json:"detected_at"`
}

// Key identifies a conflict by its members and type across passes.
func (c *EventConflict) Key() string {
	k := string(c.ConflictType)
	for _, id := range c.EventIDs {
		k += "|" + id
	}
	return k
}

// Clone returns a deep copy.
func (c *EventConflict) Clone() *EventConflict {
	cp := *c
	cp.EventIDs = append([]string(nil), c.EventIDs...)
	cp.AffectedSymbols = append([]string(nil), c.AffectedSymbols...)
	if c.ResolutionTime != nil {
		t := *c.ResolutionTime
		cp.ResolutionTime = &t
	}
	return &cp
}
