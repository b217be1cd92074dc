package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	xutil "FinCoord/pkg/util"
)

// EventCategory classifies market events. The set is open: categories not listed
// here are carried verbatim.
type EventCategory string

const (
	CategoryMacro             EventCategory = "macro"
	CategoryTechnicalBreakout EventCategory = "technical_breakout"
	CategoryVolumeAnomaly     EventCategory = "volume_anomaly"
	CategoryVolatilitySpike   EventCategory = "volatility_spike"
	CategoryLiquidityCrisis   EventCategory = "liquidity_crisis"
	CategoryEarnings          EventCategory = "earnings"
	CategoryNewsSentiment     EventCategory = "news_sentiment"
	CategoryRegulatory        EventCategory = "regulatory"
	CategoryCorrelationBreak  EventCategory = "correlation_break"
	CategoryMomentumShift     EventCategory = "momentum_shift"
)

// Severity is the label attached to an event by the prediction component.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity normalizes a label. Empty input maps to MEDIUM.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return SeverityMedium, nil
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Score is the canonical numeric mapping used wherever severity is ranked.
func (s Severity) Score() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.75
	case SeverityLow:
		return 0.25
	default:
		return 0.5
	}
}

// BaseDuration is the processing time budget before symbol scaling.
func (s Severity) BaseDuration() time.Duration {
	switch s {
	case SeverityCritical:
		return 4 * time.Hour
	case SeverityHigh:
		return 2 * time.Hour
	case SeverityLow:
		return 30 * time.Minute
	default:
		return time.Hour
	}
}

// Direction is the expected price implication of an event.
type Direction string

const (
	DirectionBullish  Direction = "BULLISH"
	DirectionBearish  Direction = "BEARISH"
	DirectionNeutral  Direction = "NEUTRAL"
	DirectionVolatile Direction = "VOLATILE"
)

// ParseDirection normalizes a direction. Empty input maps to NEUTRAL.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DirectionNeutral, nil
	case "BULLISH":
		return DirectionBullish, nil
	case "BEARISH":
		return DirectionBearish, nil
	case "NEUTRAL":
		return DirectionNeutral, nil
	case "VOLATILE":
		return DirectionVolatile, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Opposes reports whether two directions form a conflicting pairing.
func (d Direction) Opposes(o Direction) bool {
	switch {
	case d == DirectionBullish && o == DirectionBearish, d == DirectionBearish && o == DirectionBullish:
		return true
	case d == DirectionVolatile && o == DirectionNeutral, d == DirectionNeutral && o == DirectionVolatile:
		return true
	}
	return false
}

// Event is a discrete, time-stamped market occurrence.
type Event struct {
	ID              string        `json:"id"`
	Category        EventCategory `json:"category"`
	Severity        Severity      `json:"severity"`
	Direction       Direction     `json:"direction"`
	EventTime       time.Time     `json:"event_time"`
	Confidence      float64       `json:"confidence"`
	ExpectedImpact  float64       `json:"expected_impact"`
	AffectedSymbols []string      `json:"affected_symbols"`
	Cancelled       bool          `json:"cancelled"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	TimeAdjusted    bool          `json:"time_adjusted,omitempty"`
	ResourceWeight  float64       `json:"resource_weight,omitempty"`
	MergedInto      string        `json:"merged_into,omitempty"`
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	c := *e
	c.AffectedSymbols = append([]string(nil), e.AffectedSymbols...)
	return &c
}

// Active reports whether the event still takes part in scheduling.
func (e *Event) Active() bool {
	return !e.Cancelled && e.MergedInto == ""
}

// PriorityScore ranks events for override, merge and cancel decisions.
func (e *Event) PriorityScore() float64 {
	return e.Severity.Score() * e.Confidence
}

// Weight returns the resource weight, defaulting to 1.
func (e *Event) Weight() float64 {
	if e.ResourceWeight <= 0 {
		return 1.0
	}
	return e.ResourceWeight
}

// HoursApart is |t1 - t2| in hours.
func HoursApart(a, b *Event) float64 {
	d := a.EventTime.Sub(b.EventTime)
	if d < 0 {
		d = -d
	}
	return d.Hours()
}

// NormalizeSymbols upper-cases, trims, de-duplicates and sorts symbols.
func NormalizeSymbols(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IntersectSymbols returns the sorted intersection of two normalized sets.
func IntersectSymbols(a, b []string) []string {
	out := []string{}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// UnionSymbols returns the sorted union of normalized sets.
func UnionSymbols(sets ...[]string) []string {
	var all []string
	for _, s := range sets {
		all = append(all, s...)
	}
	return NormalizeSymbols(all)
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FlexTime accepts RFC3339 strings, unix seconds (string or number) and unix
// milliseconds on the wire. A value that does not parse leaves Time zero and
// keeps the original text in Raw so one bad event does not fail the batch.
type FlexTime struct {
	time.Time
	Raw string
}

// Malformed reports whether the wire value was present but unparseable.
func (t FlexTime) Malformed() bool { return t.Time.IsZero() && t.Raw != "" }

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	t.Time, t.Raw = time.Time{}, ""
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("event_time: %w", err)
		}
		s = raw
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		ts := int64(n)
		if ts > 1e11 {
			t.Time = time.UnixMilli(ts).UTC()
		} else {
			t.Time = time.Unix(ts, 0).UTC()
		}
		return nil
	}
	parsed, ok := xutil.ParseTime(s)
	if !ok {
		t.Raw = s
		return nil
	}
	t.Time = parsed.UTC()
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.Malformed() {
		return json.Marshal(t.Raw)
	}
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}

// EventPayload is the upstream wire shape of an event before validation.
type EventPayload struct {
	ID              string   `json:"id"`
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	Direction       string   `json:"direction"`
	EventTime       FlexTime `json:"event_time"`
	Confidence      float64  `json:"confidence"`
	ExpectedImpact  float64  `json:"expected_impact"`
	AffectedSymbols []string `json:"affected_symbols"`
	ResourceWeight  float64  `json:"resource_weight,omitempty"`
}
