package features

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"FinCoord/internal/domain/models"
	xutil "FinCoord/pkg/util"
)

// EventFeatures are the per-event inputs to scheduling.
type EventFeatures struct {
	EventID         string
	HoursUntil      float64
	Urgency         float64
	SeverityScore   float64
	Confidence      float64
	PriorityScore   float64
	SortKey         float64
	ProcessingHours float64
	SymbolCount     int
}

// Urgency is 1/max(1, hours until the event). Past events are maximally urgent.
func Urgency(eventTime, now time.Time) float64 {
	h := xutil.HoursBetween(now, eventTime)
	return 1 / math.Max(1, h)
}

// ProcessingHours is the base duration for the severity scaled by 1 + 0.1 per symbol.
func ProcessingHours(e *models.Event) float64 {
	return e.Severity.BaseDuration().Hours() * (1 + 0.1*float64(len(e.AffectedSymbols)))
}

// SortKey ranks events for scheduling: 0.4·urgency + 0.4·severity + 0.2·confidence.
func SortKey(urgency, severity, confidence float64) float64 {
	return 0.4*urgency + 0.4*severity + 0.2*confidence
}

// Extract computes the features of one event at now.
func Extract(e *models.Event, now time.Time) EventFeatures {
	u := Urgency(e.EventTime, now)
	sev := e.Severity.Score()
	return EventFeatures{
		EventID:         e.ID,
		HoursUntil:      xutil.HoursBetween(now, e.EventTime),
		Urgency:         u,
		SeverityScore:   sev,
		Confidence:      e.Confidence,
		PriorityScore:   e.PriorityScore(),
		SortKey:         SortKey(u, sev, e.Confidence),
		ProcessingHours: ProcessingHours(e),
		SymbolCount:     len(e.AffectedSymbols),
	}
}

// ExtractAll fans extraction out over up to workers goroutines. events are
// only read.
func ExtractAll(ctx context.Context, events []*models.Event, now time.Time, workers int) (map[string]EventFeatures, error) {
	if workers <= 0 {
		workers = 1
	}

	feats := make([]EventFeatures, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, e := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			feats[i] = Extract(e, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]EventFeatures, len(feats))
	for _, f := range feats {
		out[f.EventID] = f
	}
	return out, nil
}
