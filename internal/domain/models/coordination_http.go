package models

// Requests for coordination endpoints and the Kafka intake topic.

type CoordinateRequest struct {
	RequestID        string         `json:"request_id,omitempty"`
	Events           []EventPayload `json:"events" validate:"max=1000"`
	CoordinationMode string         `json:"coordination_mode,omitempty"`
}

type ModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=CONSERVATIVE AGGRESSIVE BALANCED ADAPTIVE"`
}

type HistoryRequest struct {
	Limit          int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
	IncludeDetails bool   `query:"include_details" json:"include_details"`
	Source         string `query:"source" json:"source" default:"memory" validate:"oneof=memory archive"`
}

type ModeResponse struct {
	Mode string `json:"mode"`
}

// CatalogEntry describes one enumerated value of the coordination vocabulary.
type CatalogEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is the static vocabulary served by the conflict-types endpoint.
type Catalog struct {
	ConflictTypes        []CatalogEntry `json:"conflict_types"`
	ResolutionStrategies []CatalogEntry `json:"resolution_strategies"`
	CoordinationModes    []CatalogEntry `json:"coordination_modes"`
}

// DefaultCatalog returns the built-in descriptions.
func DefaultCatalog() Catalog {
	return Catalog{
		ConflictTypes: []CatalogEntry{
			{Name: string(ConflictTiming), Description: "Events scheduled less than two hours apart"},
			{Name: string(ConflictDirection), Description: "Opposing directional implications (bullish vs bearish, volatile vs neutral)"},
			{Name: string(ConflictResource), Description: "Events competing for the same symbols within four hours"},
			{Name: string(ConflictMagnitude), Description: "Same-direction events on shared symbols whose combined impact overshoots"},
			{Name: string(ConflictDependency), Description: "A dependent event is timed before the event it depends on"},
		},
		ResolutionStrategies: []CatalogEntry{
			{Name: string(StrategyPriorityOverride), Description: "Boost the highest priority event and demote the others"},
			{Name: string(StrategyMergeEffects), Description: "Merge symbols and confidence into the highest priority event"},
			{Name: string(StrategyTimeSeparation), Description: "Shift the later event forward in time"},
			{Name: string(StrategyResourceSharing), Description: "Split resources evenly across the conflicting events"},
			{Name: string(StrategyCancelLower), Description: "Cancel the lowest priority event"},
		},
		CoordinationModes: []CatalogEntry{
			{Name: string(ModeConservative), Description: "Prefer time separation, fall back to cancelling the lower priority event"},
			{Name: string(ModeAggressive), Description: "Prefer merging effects, fall back to priority override"},
			{Name: string(ModeBalanced), Description: "Prefer resource sharing, fall back to the first applicable strategy"},
			{Name: string(ModeAdaptive), Description: "Pick the strategy from conflict severity"},
		},
	}
}
