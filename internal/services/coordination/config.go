package coordination

import (
	"time"

	"FinCoord/internal/domain/models"
)

// Config holds engine tuning. Zero values are replaced by DefaultConfig values.
type Config struct {
	// EventTTL evicts events not seen for this long.
	EventTTL time.Duration
	// MaxStoredEvents caps the event store; the least recently seen event is evicted first.
	MaxStoredEvents int
	// MaxActiveEvents caps the events analysed per pass. Pair detection is O(n²).
	MaxActiveEvents int
	// DetectionTimeout bounds the pairwise scan; remaining pairs are skipped.
	DetectionTimeout time.Duration
	// DetectionWorkers bounds concurrent pair-row workers.
	DetectionWorkers int
	// ChainTimeout bounds chain enumeration.
	ChainTimeout time.Duration
	// MaxChainLength is the maximum number of events in a chain (minimum is 3).
	MaxChainLength int
	// MaxChainNodes caps the nodes considered for chain enumeration.
	MaxChainNodes int
	// MaxChains caps the chains reported per pass.
	MaxChains int
	// MaxRelations caps instance edges kept in the relation graph.
	MaxRelations int
	// RelationWindow is the co-occurrence window for learning relations.
	RelationWindow time.Duration
	// MinCompositeConfidence discards composites below this mean confidence.
	MinCompositeConfidence float64
	// CompositeMethod settles composites with internal conflicting relations.
	CompositeMethod models.ResolutionMethod
	// TimeSeparationOffset is how far TIME_SEPARATION shifts the later event.
	TimeSeparationOffset time.Duration
	// HistorySize is the capacity of the result history ring.
	HistorySize int
	// MaxActiveSchedules caps retained schedules.
	MaxActiveSchedules int
	// MaxPendingConflicts caps unresolved conflicts carried to the next pass.
	MaxPendingConflicts int
	// MaxRetryAttempts drops a pending conflict after this many failed passes.
	MaxRetryAttempts int
	// DefaultMode is used when a request does not name a mode.
	DefaultMode models.CoordinationMode
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		EventTTL:               time.Hour,
		MaxStoredEvents:        5000,
		MaxActiveEvents:        200,
		DetectionTimeout:       300 * time.Millisecond,
		DetectionWorkers:       8,
		ChainTimeout:           300 * time.Millisecond,
		MaxChainLength:         8,
		MaxChainNodes:          50,
		MaxChains:              100,
		MaxRelations:           10000,
		RelationWindow:         24 * time.Hour,
		MinCompositeConfidence: 0.4,
		CompositeMethod:        models.MethodWeightedAverage,
		TimeSeparationOffset:   4 * time.Hour,
		HistorySize:            100,
		MaxActiveSchedules:     20,
		MaxPendingConflicts:    500,
		MaxRetryAttempts:       3,
		DefaultMode:            models.ModeBalanced,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EventTTL <= 0 {
		c.EventTTL = d.EventTTL
	}
	if c.MaxStoredEvents <= 0 {
		c.MaxStoredEvents = d.MaxStoredEvents
	}
	if c.MaxActiveEvents <= 0 {
		c.MaxActiveEvents = d.MaxActiveEvents
	}
	if c.DetectionTimeout <= 0 {
		c.DetectionTimeout = d.DetectionTimeout
	}
	if c.DetectionWorkers <= 0 {
		c.DetectionWorkers = d.DetectionWorkers
	}
	if c.ChainTimeout <= 0 {
		c.ChainTimeout = d.ChainTimeout
	}
	if c.MaxChainLength < 3 {
		c.MaxChainLength = d.MaxChainLength
	}
	if c.MaxChainNodes <= 0 {
		c.MaxChainNodes = d.MaxChainNodes
	}
	if c.MaxChains <= 0 {
		c.MaxChains = d.MaxChains
	}
	if c.MaxRelations <= 0 {
		c.MaxRelations = d.MaxRelations
	}
	if c.RelationWindow <= 0 {
		c.RelationWindow = d.RelationWindow
	}
	if c.MinCompositeConfidence <= 0 {
		c.MinCompositeConfidence = d.MinCompositeConfidence
	}
	switch c.CompositeMethod {
	case models.MethodWeightedAverage, models.MethodHighestConfidence, models.MethodMajorityDirection:
	default:
		c.CompositeMethod = d.CompositeMethod
	}
	if c.TimeSeparationOffset <= 0 {
		c.TimeSeparationOffset = d.TimeSeparationOffset
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.MaxActiveSchedules <= 0 {
		c.MaxActiveSchedules = d.MaxActiveSchedules
	}
	if c.MaxPendingConflicts <= 0 {
		c.MaxPendingConflicts = d.MaxPendingConflicts
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = d.MaxRetryAttempts
	}
	if _, ok := models.ParseMode(string(c.DefaultMode)); !ok {
		c.DefaultMode = d.DefaultMode
	}
	return c
}
