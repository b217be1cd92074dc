package features

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
)

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func event(id string, in time.Duration, sev models.Severity, symbols ...string) *models.Event {
	return &models.Event{
		ID:              id,
		Severity:        sev,
		Direction:       models.DirectionBullish,
		EventTime:       now.Add(in),
		Confidence:      0.5,
		AffectedSymbols: symbols,
	}
}

func TestUrgency(t *testing.T) {
	assert.InDelta(t, 0.25, Urgency(now.Add(4*time.Hour), now), 1e-9)
	assert.InDelta(t, 1.0, Urgency(now.Add(30*time.Minute), now), 1e-9)
	assert.InDelta(t, 1.0, Urgency(now.Add(-2*time.Hour), now), 1e-9)
}

func TestProcessingHours(t *testing.T) {
	assert.InDelta(t, 2.4, ProcessingHours(event("a", time.Hour, models.SeverityHigh, "BTC", "ETH")), 1e-9)
	assert.InDelta(t, 0.55, ProcessingHours(event("b", time.Hour, models.SeverityLow, "BTC")), 1e-9)
}

func TestExtract(t *testing.T) {
	f := Extract(event("a", 2*time.Hour, models.SeverityCritical, "BTC"), now)
	assert.Equal(t, "a", f.EventID)
	assert.InDelta(t, 2.0, f.HoursUntil, 1e-9)
	assert.InDelta(t, 0.5, f.Urgency, 1e-9)
	assert.InDelta(t, 1.0, f.SeverityScore, 1e-9)
	assert.InDelta(t, 0.4*0.5+0.4*1.0+0.2*0.5, f.SortKey, 1e-9)
	assert.Equal(t, 1, f.SymbolCount)
}

func TestExtractAll(t *testing.T) {
	events := make([]*models.Event, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, event(fmt.Sprintf("e%02d", i), time.Duration(i)*time.Hour, models.SeverityMedium, "BTC"))
	}

	got, err := ExtractAll(context.Background(), events, now, 4)
	require.NoError(t, err)
	require.Len(t, got, 20)
	assert.InDelta(t, 0.1, got["e10"].Urgency, 1e-9)
}

func TestExtractAllEmpty(t *testing.T) {
	got, err := ExtractAll(context.Background(), nil, now, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExtractAll(ctx, []*models.Event{event("a", time.Hour, models.SeverityLow)}, now, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractAllMatchesExtractForAnyWorkerCount(t *testing.T) {
	events := []*models.Event{
		event("a", time.Hour, models.SeverityLow, "BTC"),
		event("b", 3*time.Hour, models.SeverityHigh, "ETH", "SOL"),
		event("c", -time.Hour, models.SeverityCritical),
	}
	for _, workers := range []int{0, 1, 2, 16} {
		got, err := ExtractAll(context.Background(), events, now, workers)
		require.NoError(t, err)
		require.Len(t, got, len(events))
		for _, e := range events {
			assert.Equal(t, Extract(e, now), got[e.ID], "workers=%d id=%s", workers, e.ID)
		}
	}
}
