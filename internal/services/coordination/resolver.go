package coordination

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"FinCoord/internal/domain/models"
)

// conflictGroup is the set of conflicts sharing the same member events. A group
// is resolved once so repeated effects do not compound.
type conflictGroup struct {
	conflicts []*models.EventConflict
	ids       []string
	live      []*models.Event
	severity  float64
}

func (g *conflictGroup) sharedSymbols() []string {
	if len(g.live) == 0 {
		return nil
	}
	shared := g.live[0].AffectedSymbols
	for _, e := range g.live[1:] {
		shared = models.IntersectSymbols(shared, e.AffectedSymbols)
	}
	return shared
}

// strategy is one resolution variant. The interface is closed to this package.
type strategy interface {
	name() models.ResolutionStrategy
	applicable(g *conflictGroup) bool
	apply(g *conflictGroup) string
}

type timeSeparation struct{ offset time.Duration }

func (timeSeparation) name() models.ResolutionStrategy { return models.StrategyTimeSeparation }

func (s timeSeparation) applicable(g *conflictGroup) bool {
	if len(g.live) < 2 {
		return false
	}
	earliest, latest := timeBounds(g.live)
	if latest.EventTime.Sub(earliest.EventTime) >= s.offset {
		return true
	}
	return !latest.TimeAdjusted
}

func (s timeSeparation) apply(g *conflictGroup) string {
	earliest, latest := timeBounds(g.live)
	if latest.EventTime.Sub(earliest.EventTime) >= s.offset {
		return fmt.Sprintf("%s and %s already %s apart", earliest.ID, latest.ID, latest.EventTime.Sub(earliest.EventTime))
	}
	latest.EventTime = latest.EventTime.Add(s.offset)
	latest.TimeAdjusted = true
	return fmt.Sprintf("shifted %s by %s", latest.ID, s.offset)
}

type mergeEffects struct{}

func (mergeEffects) name() models.ResolutionStrategy { return models.StrategyMergeEffects }

func (mergeEffects) applicable(g *conflictGroup) bool { return len(g.live) >= 2 }

func (mergeEffects) apply(g *conflictGroup) string {
	ranked := rankByPriority(g.live)
	winner := ranked[0]
	symbols := make([][]string, 0, len(ranked))
	var sum float64
	merged := make([]string, 0, len(ranked)-1)
	for _, e := range ranked {
		symbols = append(symbols, e.AffectedSymbols)
		sum += e.Confidence
	}
	winner.AffectedSymbols = models.UnionSymbols(symbols...)
	winner.Confidence = models.Clamp01(sum / float64(len(ranked)))
	for _, e := range ranked[1:] {
		e.MergedInto = winner.ID
		merged = append(merged, e.ID)
	}
	return fmt.Sprintf("merged %s into %s", strings.Join(merged, ","), winner.ID)
}

type priorityOverride struct {
	boost  float64
	demote float64
}

func (priorityOverride) name() models.ResolutionStrategy { return models.StrategyPriorityOverride }

func (priorityOverride) applicable(g *conflictGroup) bool { return len(g.live) >= 2 }

func (s priorityOverride) apply(g *conflictGroup) string {
	ranked := rankByPriority(g.live)
	ranked[0].Confidence = models.Clamp01(ranked[0].Confidence * s.boost)
	for _, e := range ranked[1:] {
		e.Confidence = models.Clamp01(e.Confidence * s.demote)
	}
	return fmt.Sprintf("%s overrides %d event(s)", ranked[0].ID, len(ranked)-1)
}

type resourceSharing struct{}

func (resourceSharing) name() models.ResolutionStrategy { return models.StrategyResourceSharing }

func (resourceSharing) applicable(g *conflictGroup) bool { return len(g.live) >= 2 }

func (resourceSharing) apply(g *conflictGroup) string {
	w := 1.0 / float64(len(g.live))
	for _, e := range g.live {
		e.ResourceWeight = w
	}
	if shared := g.sharedSymbols(); len(shared) > 0 {
		return fmt.Sprintf("%d events share %v at weight %.3f", len(g.live), shared, w)
	}
	return fmt.Sprintf("%d events split capacity at weight %.3f", len(g.live), w)
}

type cancelLower struct{}

func (cancelLower) name() models.ResolutionStrategy { return models.StrategyCancelLower }

func (cancelLower) applicable(g *conflictGroup) bool { return len(g.live) >= 2 }

func (cancelLower) apply(g *conflictGroup) string {
	ranked := rankByPriority(g.live)
	loser := ranked[len(ranked)-1]
	loser.Cancelled = true
	loser.CancelReason = fmt.Sprintf("lower priority than %s in %s conflict", ranked[0].ID, g.conflicts[0].ConflictType)
	return "cancelled " + loser.ID
}

// ResolutionReport summarises one resolution pass.
type ResolutionReport struct {
	Resolved  int
	Failed    []*models.EventConflict
	Touched   map[string]struct{}
	Cancelled int
	Merged    int
	Shifted   int
}

// ConflictResolver applies mode-dependent strategies to conflicts.
type ConflictResolver struct {
	offset time.Duration
}

func NewConflictResolver(offset time.Duration) *ConflictResolver {
	return &ConflictResolver{offset: offset}
}

func (r *ConflictResolver) strategy(s models.ResolutionStrategy) strategy {
	switch s {
	case models.StrategyTimeSeparation:
		return timeSeparation{offset: r.offset}
	case models.StrategyMergeEffects:
		return mergeEffects{}
	case models.StrategyPriorityOverride:
		return priorityOverride{boost: 1.1, demote: 0.7}
	case models.StrategyResourceSharing:
		return resourceSharing{}
	case models.StrategyCancelLower:
		return cancelLower{}
	default:
		panic(fmt.Sprintf("coordination: unhandled resolution strategy %q", s))
	}
}

// plan returns the strategies to try, in order, for a mode and group severity.
func plan(mode models.CoordinationMode, severity float64) []models.ResolutionStrategy {
	switch mode {
	case models.ModeConservative:
		return []models.ResolutionStrategy{models.StrategyTimeSeparation, models.StrategyCancelLower}
	case models.ModeAggressive:
		return []models.ResolutionStrategy{models.StrategyMergeEffects, models.StrategyPriorityOverride}
	case models.ModeAdaptive:
		switch {
		case severity > 0.7:
			return []models.ResolutionStrategy{models.StrategyPriorityOverride}
		case severity > 0.4:
			return []models.ResolutionStrategy{models.StrategyTimeSeparation}
		default:
			return []models.ResolutionStrategy{models.StrategyResourceSharing}
		}
	default:
		out := []models.ResolutionStrategy{models.StrategyResourceSharing}
		for _, s := range models.ResolutionStrategies {
			if s != models.StrategyResourceSharing {
				out = append(out, s)
			}
		}
		return out
	}
}

// Resolve mutates events in place. Conflicts are grouped by member set in
// first-seen order; each group is resolved once and every conflict in it
// shares the outcome.
func (r *ConflictResolver) Resolve(conflicts []*models.EventConflict, events map[string]*models.Event, mode models.CoordinationMode, now time.Time) ResolutionReport {
	rep := ResolutionReport{Touched: make(map[string]struct{})}

	for _, g := range groupConflicts(conflicts) {
		for _, id := range g.ids {
			if e, ok := events[id]; ok && e.Active() {
				g.live = append(g.live, e)
			}
		}

		switch {
		case len(g.live) == 0:
			markFailed(g, "no live member events")
			rep.Failed = append(rep.Failed, g.conflicts...)
			continue
		case len(g.live) == 1:
			markResolved(g, plan(mode, g.severity)[0], fmt.Sprintf("superseded: only %s remains active", g.live[0].ID), now)
			rep.Resolved += len(g.conflicts)
			continue
		}

		tried := plan(mode, g.severity)
		var applied bool
		for _, name := range tried {
			s := r.strategy(name)
			setState(g, models.StateStrategySelected)
			if !s.applicable(g) {
				continue
			}
			before := snapshotFlags(g.live)
			note := s.apply(g)
			setState(g, models.StateApplied)
			for _, e := range g.live {
				rep.Touched[e.ID] = struct{}{}
			}
			countEffects(&rep, before, g.live)
			markResolved(g, s.name(), note, now)
			rep.Resolved += len(g.conflicts)
			applied = true
			break
		}
		if !applied {
			names := make([]string, len(tried))
			for i, s := range tried {
				names[i] = string(s)
			}
			markFailed(g, "no applicable strategy (tried "+strings.Join(names, ", ")+")")
			rep.Failed = append(rep.Failed, g.conflicts...)
		}
	}
	return rep
}

func groupConflicts(conflicts []*models.EventConflict) []*conflictGroup {
	var groups []*conflictGroup
	index := make(map[string]*conflictGroup)
	for _, c := range conflicts {
		ids := append([]string(nil), c.EventIDs...)
		sort.Strings(ids)
		key := strings.Join(ids, "\x00")
		g, ok := index[key]
		if !ok {
			g = &conflictGroup{ids: ids}
			index[key] = g
			groups = append(groups, g)
		}
		g.conflicts = append(g.conflicts, c)
		if c.SeverityScore > g.severity {
			g.severity = c.SeverityScore
		}
	}
	return groups
}

func setState(g *conflictGroup, st models.ConflictState) {
	for _, c := range g.conflicts {
		c.State = st
	}
}

func markResolved(g *conflictGroup, s models.ResolutionStrategy, note string, now time.Time) {
	for _, c := range g.conflicts {
		t := now
		c.IsResolved = true
		c.ResolutionStrategy = s
		c.ResolutionTime = &t
		c.ResolutionNote = note
		c.State = models.StateResolved
	}
}

func markFailed(g *conflictGroup, note string) {
	for _, c := range g.conflicts {
		c.IsResolved = false
		c.ResolutionNote = note
		c.State = models.StateFailed
		c.Attempts++
	}
}

type eventFlags struct {
	cancelled bool
	merged    bool
	shifted   bool
}

func snapshotFlags(events []*models.Event) []eventFlags {
	out := make([]eventFlags, len(events))
	for i, e := range events {
		out[i] = eventFlags{cancelled: e.Cancelled, merged: e.MergedInto != "", shifted: e.TimeAdjusted}
	}
	return out
}

func countEffects(rep *ResolutionReport, before []eventFlags, after []*models.Event) {
	for i, e := range after {
		if e.Cancelled && !before[i].cancelled {
			rep.Cancelled++
		}
		if e.MergedInto != "" && !before[i].merged {
			rep.Merged++
		}
		if e.TimeAdjusted && !before[i].shifted {
			rep.Shifted++
		}
	}
}

// rankByPriority orders by PriorityScore descending, lower id first on ties.
func rankByPriority(events []*models.Event) []*models.Event {
	out := append([]*models.Event(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].PriorityScore(), out[j].PriorityScore()
		if pi != pj {
			return pi > pj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// timeBounds returns the earliest and latest events, later id wins ties for latest.
func timeBounds(events []*models.Event) (earliest, latest *models.Event) {
	for _, e := range events {
		if earliest == nil || e.EventTime.Before(earliest.EventTime) ||
			(e.EventTime.Equal(earliest.EventTime) && e.ID < earliest.ID) {
			earliest = e
		}
		if latest == nil || e.EventTime.After(latest.EventTime) ||
			(e.EventTime.Equal(latest.EventTime) && e.ID > latest.ID) {
			latest = e
		}
	}
	return earliest, latest
}
