package coordination

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"FinCoord/internal/domain/models"
)

// pairFinding is one rule hit before it becomes an EventConflict.
type pairFinding struct {
	severity    float64
	description string
}

// conflictRule checks one conflict type for a pair. The interface is closed to
// this package.
type conflictRule interface {
	conflictType() models.ConflictType
	check(a, b *models.Event, hours float64, shared []string) (pairFinding, bool)
}

type timingRule struct{ windowHours float64 }

func (timingRule) conflictType() models.ConflictType { return models.ConflictTiming }

func (r timingRule) check(a, b *models.Event, hours float64, _ []string) (pairFinding, bool) {
	if hours >= r.windowHours {
		return pairFinding{}, false
	}
	return pairFinding{
		severity:    math.Max(0.1, 1-hours/r.windowHours),
		description: fmt.Sprintf("events %s and %s are %.2fh apart", a.ID, b.ID, hours),
	}, true
}

type directionRule struct{ nearHours float64 }

func (directionRule) conflictType() models.ConflictType { return models.ConflictDirection }

func (r directionRule) check(a, b *models.Event, hours float64, _ []string) (pairFinding, bool) {
	if !a.Direction.Opposes(b.Direction) {
		return pairFinding{}, false
	}
	sev := 0.4
	if hours < r.nearHours {
		sev = 0.8
	}
	return pairFinding{
		severity:    sev,
		description: fmt.Sprintf("%s %s opposes %s %s", a.ID, a.Direction, b.ID, b.Direction),
	}, true
}

type resourceRule struct{ windowHours float64 }

func (resourceRule) conflictType() models.ConflictType { return models.ConflictResource }

func (r resourceRule) check(a, b *models.Event, hours float64, shared []string) (pairFinding, bool) {
	if len(shared) == 0 || hours >= r.windowHours {
		return pairFinding{}, false
	}
	return pairFinding{
		severity:    overlapRatio(len(shared), len(a.AffectedSymbols), len(b.AffectedSymbols)),
		description: fmt.Sprintf("%s and %s compete for %v within %.2fh", a.ID, b.ID, shared, hours),
	}, true
}

type magnitudeRule struct{ windowHours float64 }

func (magnitudeRule) conflictType() models.ConflictType { return models.ConflictMagnitude }

func (r magnitudeRule) check(a, b *models.Event, hours float64, shared []string) (pairFinding, bool) {
	if len(shared) == 0 || hours >= r.windowHours {
		return pairFinding{}, false
	}
	if a.Direction != b.Direction || a.Direction == models.DirectionNeutral {
		return pairFinding{}, false
	}
	sum := a.ExpectedImpact + b.ExpectedImpact
	if sum <= 1 {
		return pairFinding{}, false
	}
	return pairFinding{
		severity:    math.Min(1, sum-1),
		description: fmt.Sprintf("combined %s impact of %s and %s is %.2f", a.Direction, a.ID, b.ID, sum),
	}, true
}

type dependencyRule struct {
	kb          *Knowledge
	windowHours float64
}

func (dependencyRule) conflictType() models.ConflictType { return models.ConflictDependency }

func (r dependencyRule) check(a, b *models.Event, hours float64, _ []string) (pairFinding, bool) {
	if hours >= r.windowHours {
		return pairFinding{}, false
	}
	for _, p := range [][2]*models.Event{{a, b}, {b, a}} {
		cause, effect := p[0], p[1]
		rel, ok := r.kb.Requires(cause.Category, effect.Category)
		if !ok || !effect.EventTime.Before(cause.EventTime) {
			continue
		}
		return pairFinding{
			severity: models.Clamp01(rel.Confidence * 0.6),
			description: fmt.Sprintf("%s (%s) is timed before %s (%s) it depends on",
				effect.ID, effect.Category, cause.ID, cause.Category),
		}, true
	}
	return pairFinding{}, false
}

// DetectionReport is the outcome of one pairwise scan.
type DetectionReport struct {
	Conflicts    []*models.EventConflict
	PairsChecked int64
	PairsTotal   int64
	Truncated    bool
}

// ConflictDetector scans every unordered pair of events.
type ConflictDetector struct {
	rules   []conflictRule
	workers int
	timeout time.Duration
	newID   func() string
}

func NewConflictDetector(kb *Knowledge, workers int, timeout time.Duration, newID func() string) *ConflictDetector {
	return &ConflictDetector{
		rules: []conflictRule{
			timingRule{windowHours: 2},
			directionRule{nearHours: 6},
			resourceRule{windowHours: 4},
			magnitudeRule{windowHours: 2},
			dependencyRule{kb: kb, windowHours: 6},
		},
		workers: workers,
		timeout: timeout,
		newID:   newID,
	}
}

// Detect runs the scan over events, which must be ordered by id. Rows of the
// pair matrix run on a bounded worker pool; when the detection deadline hits,
// unfinished rows are skipped and the report is marked truncated. A cancelled
// parent context returns its error.
func (d *ConflictDetector) Detect(ctx context.Context, events []*models.Event, now time.Time) (DetectionReport, error) {
	n := len(events)
	rep := DetectionReport{PairsTotal: int64(n) * int64(n-1) / 2}
	if n < 2 {
		return rep, nil
	}

	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	rows := make([][]*models.EventConflict, n)
	complete := make([]bool, n)
	var checked int64

	g, gctx := errgroup.WithContext(dctx)
	g.SetLimit(d.workers)
	for i := 0; i < n-1; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			var found []*models.EventConflict
			for j := i + 1; j < n; j++ {
				if j%16 == 0 && gctx.Err() != nil {
					return nil
				}
				found = append(found, d.checkPair(events[i], events[j], now)...)
				atomic.AddInt64(&checked, 1)
			}
			rows[i] = found
			complete[i] = true
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return DetectionReport{}, err
	}

	rep.PairsChecked = atomic.LoadInt64(&checked)
	for i := 0; i < n-1; i++ {
		if !complete[i] {
			rep.Truncated = true
			continue
		}
		rep.Conflicts = append(rep.Conflicts, rows[i]...)
	}
	for _, c := range rep.Conflicts {
		c.ID = d.newID()
	}
	return rep, nil
}

func (d *ConflictDetector) checkPair(a, b *models.Event, now time.Time) []*models.EventConflict {
	hours := models.HoursApart(a, b)
	shared := models.IntersectSymbols(a.AffectedSymbols, b.AffectedSymbols)
	var out []*models.EventConflict
	for _, r := range d.rules {
		f, ok := r.check(a, b, hours, shared)
		if !ok {
			continue
		}
		out = append(out, &models.EventConflict{
			EventIDs:        []string{a.ID, b.ID},
			ConflictType:    r.conflictType(),
			SeverityScore:   models.Clamp01(f.severity),
			AffectedSymbols: append([]string{}, shared...),
			Description:     f.description,
			State:           models.StateDetected,
			DetectedAt:      now,
		})
	}
	return out
}
