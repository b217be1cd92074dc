package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	pkgch "FinCoord/pkg/clickhouse"
	applogger "FinCoord/pkg/logger"
)

const (
	resultsTable   = "coordination_results"
	conflictsTable = "coordination_conflicts"
)

// ArchiveSchema creates the archive tables. Safe to run repeatedly.
var ArchiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + resultsTable + ` (
        id String,
        ts DateTime64(3, 'UTC'),
        mode LowCardinality(String),
        events_processed UInt32,
        conflicts_detected UInt32,
        conflicts_resolved UInt32,
        scheduled_events UInt32,
        effectiveness Float64,
        resource_utilization Float64,
        warning_count UInt32,
        processing_time_ms Int64
    ) ENGINE = MergeTree
    ORDER BY (ts, id)
    TTL toDateTime(ts) + INTERVAL 90 DAY`,
	`CREATE TABLE IF NOT EXISTS ` + conflictsTable + ` (
        result_id String,
        conflict_id String,
        ts DateTime64(3, 'UTC'),
        conflict_type LowCardinality(String),
        severity Float64,
        event_ids Array(String),
        symbols Array(String),
        resolved UInt8,
        strategy LowCardinality(String),
        state LowCardinality(String),
        attempts UInt32
    ) ENGINE = MergeTree
    ORDER BY (ts, result_id)
    TTL toDateTime(ts) + INTERVAL 90 DAY`,
}

// ClickHouseResultArchive stores result summaries and their conflicts in ClickHouse.
type ClickHouseResultArchive struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.ResultArchive = (*ClickHouseResultArchive)(nil)

func NewClickHouseResultArchive(ch *pkgch.Client) *ClickHouseResultArchive {
	return &ClickHouseResultArchive{db: ch.DB(), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (a *ClickHouseResultArchive) SetLogger(l *applogger.Logger) {
	if l != nil {
		a.l = l
	}
}

func (a *ClickHouseResultArchive) Name() string { return "clickhouse" }

// Send inserts the summary row and one row per detected conflict.
func (a *ClickHouseResultArchive) Send(ctx context.Context, r *models.CoordinationResult) error {
	if r == nil {
		return nil
	}
	start := time.Now()
	q, args := summaryInsert(r.Summarize())
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		a.l.Error("clickhouse archive insert error",
			applogger.String("table", resultsTable),
			applogger.String("result_id", r.ID),
			applogger.Error(err),
		)
		return fmt.Errorf("archive result %s: %w", r.ID, err)
	}
	if q, args, ok := conflictsInsert(r); ok {
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			a.l.Error("clickhouse archive insert error",
				applogger.String("table", conflictsTable),
				applogger.String("result_id", r.ID),
				applogger.Error(err),
			)
			return fmt.Errorf("archive conflicts %s: %w", r.ID, err)
		}
	}
	a.l.Debug("clickhouse archive ok",
		applogger.String("result_id", r.ID),
		applogger.Int("conflicts", len(r.ConflictsDetected)),
		applogger.Duration("duration", time.Since(start)),
	)
	return nil
}

// RecentResults returns the newest summaries first.
func (a *ClickHouseResultArchive) RecentResults(ctx context.Context, limit int) ([]models.ResultSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
        SELECT id, ts, mode, events_processed, conflicts_detected, conflicts_resolved,
               scheduled_events, effectiveness, resource_utilization, warning_count, processing_time_ms
        FROM ` + resultsTable + `
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := a.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	out := make([]models.ResultSummary, 0, limit)
	for rows.Next() {
		var (
			s                                        models.ResultSummary
			mode                                     string
			events, detected, resolved, sched, warns uint32
		)
		if err := rows.Scan(&s.ID, &s.Timestamp, &mode, &events, &detected, &resolved,
			&sched, &s.Effectiveness, &s.ResourceUtilization, &warns, &s.ProcessingTimeMs); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		s.CoordinationMode = models.CoordinationMode(mode)
		s.EventsProcessed = int(events)
		s.ConflictsDetected = int(detected)
		s.ConflictsResolvedCount = int(resolved)
		s.ScheduledEvents = int(sched)
		s.WarningCount = int(warns)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (a *ClickHouseResultArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to pkg/clickhouse.
func (a *ClickHouseResultArchive) Close() error { return nil }

func summaryInsert(s models.ResultSummary) (string, []interface{}) {
	q := "INSERT INTO " + resultsTable + ` (id, ts, mode, events_processed, conflicts_detected,
        conflicts_resolved, scheduled_events, effectiveness, resource_utilization, warning_count,
        processing_time_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return q, []interface{}{
		s.ID,
		s.Timestamp.UTC(),
		string(s.CoordinationMode),
		uint32(s.EventsProcessed),
		uint32(s.ConflictsDetected),
		uint32(s.ConflictsResolvedCount),
		uint32(s.ScheduledEvents),
		s.Effectiveness,
		s.ResourceUtilization,
		uint32(s.WarningCount),
		s.ProcessingTimeMs,
	}
}

// conflictsInsert builds one multi-row insert. ok is false when there is nothing to write.
func conflictsInsert(r *models.CoordinationResult) (string, []interface{}, bool) {
	values := make([]string, 0, len(r.ConflictsDetected))
	args := make([]interface{}, 0, len(r.ConflictsDetected)*11)
	for _, c := range r.ConflictsDetected {
		if c == nil {
			continue
		}
		resolved := uint8(0)
		if c.IsResolved {
			resolved = 1
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.ID,
			c.ID,
			r.Timestamp.UTC(),
			string(c.ConflictType),
			c.SeverityScore,
			c.EventIDs,
			c.AffectedSymbols,
			resolved,
			string(c.ResolutionStrategy),
			string(c.State),
			uint32(c.Attempts),
		)
	}
	if len(values) == 0 {
		return "", nil, false
	}
	q := "INSERT INTO " + conflictsTable + ` (result_id, conflict_id, ts, conflict_type, severity,
        event_ids, symbols, resolved, strategy, state, attempts) VALUES ` + strings.Join(values, ",")
	return q, args, true
}
