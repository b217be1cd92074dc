package coordination

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	"FinCoord/internal/domain/service"
	applogger "FinCoord/pkg/logger"
)

const uncategorized models.EventCategory = "uncategorized"

var _ service.Coordinator = (*Engine)(nil)

type Option func(*Engine)

func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithKnowledge replaces the category relations used for dependency checks
// and relation learning.
func WithKnowledge(relations []models.EventRelation) Option {
	return func(e *Engine) { e.kb = NewKnowledge(relations) }
}

func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

type engineStats struct {
	total     int64
	success   int64
	failed    int64
	latencyMs float64
}

// Engine owns the coordination state. A single mutex guards the store, the
// relation graph, pending conflicts, schedules, history and stats; a pass
// holds it only to snapshot and to commit.
type Engine struct {
	cfg     Config
	logger  *applogger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
	newID   func() string
	kb      *Knowledge

	detector  *ConflictDetector
	resolver  *ConflictResolver
	composer  *CompositeBuilder
	chains    *ChainDetector
	scheduler *Scheduler

	mu        sync.Mutex
	closed    bool
	mode      models.CoordinationMode
	store     *EventStore
	graph     *RelationGraph
	pending   []*models.EventConflict
	schedules []*models.EventSchedule
	history   []*models.CoordinationResult
	stats     engineStats
}

func New(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		logger:  applogger.Nop(),
		metrics: noopMetrics{},
		now:     time.Now,
		newID:   uuid.NewString,
		mode:    cfg.DefaultMode,
		store:   NewEventStore(cfg.EventTTL, cfg.MaxStoredEvents),
		graph:   NewRelationGraph(cfg.MaxRelations),
	}
	for _, o := range opts {
		o(e)
	}
	if e.kb == nil {
		e.kb = NewKnowledge(DefaultRelations())
	}
	e.detector = NewConflictDetector(e.kb, cfg.DetectionWorkers, cfg.DetectionTimeout, e.newID)
	e.resolver = NewConflictResolver(cfg.TimeSeparationOffset)
	e.composer = NewCompositeBuilder(cfg.MinCompositeConfidence, cfg.CompositeMethod, e.newID)
	e.chains = NewChainDetector(cfg.MaxChainLength, cfg.MaxChainNodes, cfg.MaxChains, cfg.ChainTimeout, e.newID)
	e.scheduler = NewScheduler(cfg.DetectionWorkers, e.newID)
	return e
}

// Coordinate runs one pass over the given events. An empty mode uses the
// engine's current mode; an unknown one falls back to BALANCED with a warning.
func (e *Engine) Coordinate(ctx context.Context, payloads []models.EventPayload, mode string) (*models.CoordinationResult, error) {
	start := time.Now()
	res, err := e.coordinate(ctx, payloads, mode, start)
	elapsed := time.Since(start)

	e.mu.Lock()
	e.stats.total++
	if err != nil {
		e.stats.failed++
	} else {
		e.stats.success++
		e.stats.latencyMs += float64(elapsed) / float64(time.Millisecond)
	}
	e.mu.Unlock()

	e.metrics.RecordLatency("coordinate", elapsed.Seconds())
	if err != nil {
		resolved, _ := e.resolveMode(mode)
		e.metrics.RecordCoordination(string(resolved), "error")
		e.logger.Error("coordination pass failed", applogger.Error(err), applogger.Int("events", len(payloads)))
		return nil, err
	}
	e.metrics.RecordCoordination(string(res.CoordinationMode), "success")
	e.metrics.RecordEffectiveness(string(res.CoordinationMode), res.Effectiveness)
	for _, c := range res.ConflictsDetected {
		e.metrics.RecordConflict(string(c.ConflictType))
		e.metrics.RecordResolution(string(c.ResolutionStrategy), c.IsResolved)
	}
	return res, nil
}

func (e *Engine) coordinate(ctx context.Context, payloads []models.EventPayload, modeName string, start time.Time) (*models.CoordinationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := e.now()
	events, warnings := normalizeEvents(payloads)
	mode, modeWarning := e.resolveMode(modeName)
	if modeWarning != "" {
		warnings = append([]string{modeWarning}, warnings...)
	}

	result := &models.CoordinationResult{
		ID:                e.newID(),
		Timestamp:         now,
		CoordinationMode:  mode,
		ProcessedEventIDs: []string{},
		ConflictsDetected: []*models.EventConflict{},
		CompositeEvents:   []models.CompositeEvent{},
		EventChains:       []models.EventChain{},
		Recommendations:   []string{},
		Warnings:          []string{},
	}

	if len(events) == 0 {
		aggregate(aggregateInput{result: result, warnings: warnings})
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		return result, e.commit(commitSet{result: result, now: now})
	}

	// Snapshot.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	base := e.store.Fresh(now)
	graph := e.graph.Clone()
	pending := make([]*models.EventConflict, len(e.pending))
	for i, c := range e.pending {
		pending[i] = c.Clone()
	}
	e.mu.Unlock()

	working := make(map[string]*models.Event, len(base)+len(events))
	for _, ev := range base {
		working[ev.ID] = ev
	}
	requested := make(map[string]struct{}, len(events))
	for _, ev := range events {
		working[ev.ID] = ev
		requested[ev.ID] = struct{}{}
	}

	active, dropped, skipped := selectActive(working, events, e.cfg.MaxActiveEvents)
	for _, id := range dropped {
		delete(working, id)
		delete(requested, id)
	}
	if len(dropped) > 0 {
		warnings = append(warnings, fmt.Sprintf("active event cap %d reached: rejected %d event(s)", e.cfg.MaxActiveEvents, len(dropped)))
	}
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("active event cap %d reached: %d stored event(s) left out of this pass", e.cfg.MaxActiveEvents, skipped))
	}

	// Fan out detection and relation inference over the read-only snapshot.
	var (
		report       DetectionReport
		observations []models.EventRelation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.detector.Detect(gctx, active, now)
		report = r
		return err
	})
	g.Go(func() error {
		obs, err := inferRelations(gctx, active, e.kb, e.cfg.RelationWindow, now)
		observations = obs
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stageErr("detection", err)
	}
	if report.Truncated {
		result.Partial = true
		warnings = append(warnings, fmt.Sprintf("%v: conflict detection stopped after %s with %d of %d pairs checked",
			ErrTimeoutExceeded, e.cfg.DetectionTimeout, report.PairsChecked, report.PairsTotal))
		e.logger.Warn("conflict detection truncated",
			applogger.Int64("pairs_checked", report.PairsChecked),
			applogger.Int64("pairs_total", report.PairsTotal))
	}

	conflicts, handled, retryWarnings := mergePending(report.Conflicts, pending, working)
	warnings = append(warnings, retryWarnings...)

	rep := e.resolver.Resolve(conflicts, working, mode, now)

	var keep []*models.EventConflict
	for _, c := range rep.Failed {
		if c.Attempts >= e.cfg.MaxRetryAttempts {
			warnings = append(warnings, fmt.Sprintf("%v: %s conflict between %s dropped after %d attempts",
				ErrResolutionFailure, c.ConflictType, strings.Join(c.EventIDs, ", "), c.Attempts))
			continue
		}
		keep = append(keep, c.Clone())
	}

	for _, obs := range observations {
		graph.Upsert(obs)
	}

	var survivors []*models.Event
	for _, ev := range active {
		if ev.Active() {
			survivors = append(survivors, ev)
		}
	}

	result.CompositeEvents = append(result.CompositeEvents, e.composer.Build(conflicts, survivors, graph)...)

	chains, err := e.chains.Detect(ctx, graph, survivors)
	if err != nil {
		return nil, err
	}
	if chains.Truncated {
		warnings = append(warnings, fmt.Sprintf("%v: chain search truncated at %d chain(s)", ErrTimeoutExceeded, len(chains.Chains)))
	}
	result.EventChains = append(result.EventChains, chains.Chains...)

	schedule, err := e.scheduler.Build(ctx, survivors, mode, now)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stageErr("schedule", err)
	}
	result.Schedule = schedule

	for _, ev := range events {
		if _, ok := requested[ev.ID]; ok {
			result.ProcessedEventIDs = append(result.ProcessedEventIDs, ev.ID)
		}
	}
	result.ConflictsDetected = append(result.ConflictsDetected, conflicts...)
	result.ConflictsResolvedCount = rep.Resolved
	aggregate(aggregateInput{result: result, resolution: rep, warnings: warnings})
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirty := make(map[string]struct{}, len(requested)+len(rep.Touched))
	for id := range requested {
		dirty[id] = struct{}{}
	}
	for id := range rep.Touched {
		dirty[id] = struct{}{}
	}
	return result, e.commit(commitSet{
		result:       result,
		now:          now,
		working:      working,
		dirty:        dirty,
		requested:    requested,
		observations: observations,
		handled:      handled,
		pending:      keep,
	})
}

type commitSet struct {
	result       *models.CoordinationResult
	now          time.Time
	working      map[string]*models.Event
	dirty        map[string]struct{}
	requested    map[string]struct{}
	observations []models.EventRelation
	handled      map[string]struct{}
	pending      []*models.EventConflict
}

func (e *Engine) commit(cs commitSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	ids := make([]string, 0, len(cs.dirty))
	for id := range cs.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ev := cs.working[id]
		if ev == nil {
			continue
		}
		if ev.MergedInto != "" {
			e.store.Remove(id)
			continue
		}
		_, isRequest := cs.requested[id]
		if !isRequest && !e.store.Contains(id) {
			continue
		}
		if evicted := e.store.Put(ev, cs.now, isRequest); evicted != "" {
			e.logger.Debug("event store full, evicted least recently seen event", applogger.String("event_id", evicted))
		}
	}

	for _, obs := range cs.observations {
		e.graph.Upsert(obs)
	}

	if cs.handled != nil || len(cs.pending) > 0 {
		merged := make([]*models.EventConflict, 0, len(e.pending)+len(cs.pending))
		for _, c := range e.pending {
			if _, ok := cs.handled[c.Key()]; !ok {
				merged = append(merged, c)
			}
		}
		merged = append(merged, cs.pending...)
		if over := len(merged) - e.cfg.MaxPendingConflicts; over > 0 {
			merged = merged[over:]
		}
		e.pending = merged
	}

	if cs.result.Schedule != nil {
		e.schedules = append(e.schedules, cs.result.Schedule)
		if over := len(e.schedules) - e.cfg.MaxActiveSchedules; over > 0 {
			e.schedules = append([]*models.EventSchedule(nil), e.schedules[over:]...)
		}
	}
	e.history = append(e.history, cs.result)
	if over := len(e.history) - e.cfg.HistorySize; over > 0 {
		e.history = append([]*models.CoordinationResult(nil), e.history[over:]...)
	}
	e.metrics.SetActiveEvents(e.store.ActiveCount())
	return nil
}

// mergePending appends retryable pending conflicts to the newly detected ones.
// A pending conflict detected again is superseded by the new record, which
// inherits its attempt count; one whose events have left the working set is
// dropped.
func mergePending(detected, pending []*models.EventConflict, working map[string]*models.Event) ([]*models.EventConflict, map[string]struct{}, []string) {
	handled := make(map[string]struct{}, len(detected)+len(pending))
	byKey := make(map[string]*models.EventConflict, len(detected))
	for _, c := range detected {
		handled[c.Key()] = struct{}{}
		byKey[c.Key()] = c
	}
	out := append([]*models.EventConflict(nil), detected...)
	var warnings []string
	for _, p := range pending {
		key := p.Key()
		if c, ok := byKey[key]; ok {
			c.Attempts = p.Attempts
			continue
		}
		if _, ok := handled[key]; ok {
			continue
		}
		handled[key] = struct{}{}
		present := true
		for _, id := range p.EventIDs {
			if _, ok := working[id]; !ok {
				present = false
				break
			}
		}
		if !present {
			warnings = append(warnings, fmt.Sprintf("pending %s conflict between %s dropped: events left the store",
				p.ConflictType, strings.Join(p.EventIDs, ", ")))
			continue
		}
		p.State = models.StateDetected
		out = append(out, p)
	}
	return out, handled, warnings
}

// selectActive picks the events analysed this pass: request events first, then
// stored active events, up to limit. It returns them ordered by id along with
// rejected request ids and the number of stored events left out.
func selectActive(working map[string]*models.Event, requested []*models.Event, limit int) ([]*models.Event, []string, int) {
	var out []*models.Event
	var dropped []string
	taken := make(map[string]struct{})
	for _, ev := range requested {
		if len(out) >= limit {
			dropped = append(dropped, ev.ID)
			continue
		}
		taken[ev.ID] = struct{}{}
		if ev.Active() {
			out = append(out, working[ev.ID])
		}
	}

	rest := make([]string, 0, len(working))
	for id, ev := range working {
		if _, ok := taken[id]; ok || !ev.Active() {
			continue
		}
		rest = append(rest, id)
	}
	sort.Strings(rest)
	skipped := 0
	for _, id := range rest {
		if _, ok := taken[id]; ok {
			continue
		}
		if contains(dropped, id) {
			continue
		}
		if len(out) >= limit {
			skipped++
			continue
		}
		out = append(out, working[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, dropped, skipped
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// normalizeEvents validates payloads into events ordered by id. Rejected
// events become warnings.
func normalizeEvents(payloads []models.EventPayload) ([]*models.Event, []string) {
	var warnings []string
	seen := make(map[string]struct{}, len(payloads))
	out := make([]*models.Event, 0, len(payloads))
	for _, p := range payloads {
		ev, err := toEvent(p)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			warnings = append(warnings, (&ValidationError{EventID: ev.ID, Field: "id", Reason: "is duplicated"}).Error())
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, warnings
}

func toEvent(p models.EventPayload) (*models.Event, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}
	if p.EventTime.Malformed() {
		return nil, &ValidationError{EventID: id, Field: "event_time", Reason: fmt.Sprintf("cannot parse %q", p.EventTime.Raw)}
	}
	if p.EventTime.IsZero() {
		return nil, &ValidationError{EventID: id, Field: "event_time", Reason: "is required"}
	}
	sev, err := models.ParseSeverity(p.Severity)
	if err != nil {
		return nil, &ValidationError{EventID: id, Field: "severity", Reason: err.Error()}
	}
	dir, err := models.ParseDirection(p.Direction)
	if err != nil {
		return nil, &ValidationError{EventID: id, Field: "direction", Reason: err.Error()}
	}
	cat := models.EventCategory(strings.ToLower(strings.TrimSpace(p.Category)))
	if cat == "" {
		cat = uncategorized
	}
	weight := finite(p.ResourceWeight)
	if weight < 0 {
		weight = 0
	}
	return &models.Event{
		ID:              id,
		Category:        cat,
		Severity:        sev,
		Direction:       dir,
		EventTime:       p.EventTime.UTC(),
		Confidence:      models.Clamp01(finite(p.Confidence)),
		ExpectedImpact:  models.Clamp01(finite(p.ExpectedImpact)),
		AffectedSymbols: models.NormalizeSymbols(p.AffectedSymbols),
		ResourceWeight:  weight,
	}, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (e *Engine) resolveMode(name string) (models.CoordinationMode, string) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return e.Mode(), ""
	}
	m, ok := models.ParseMode(name)
	if !ok {
		return models.ModeBalanced, fmt.Sprintf("unknown coordination mode %q, using %s", name, models.ModeBalanced)
	}
	return m, ""
}

func (e *Engine) Status() models.CoordinationStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := models.CoordinationStatus{
		ActiveEvents:        e.store.ActiveCount(),
		ActiveSchedules:     len(e.schedules),
		UnresolvedConflicts: len(e.pending),
		CoordinationMode:    e.mode,
		HistorySize:         len(e.history),
		RelationCount:       e.graph.Len(),
		TotalRequests:       e.stats.total,
		SuccessfulRequests:  e.stats.success,
		FailedRequests:      e.stats.failed,
	}
	if e.stats.total > 0 {
		st.SuccessRate = float64(e.stats.success) / float64(e.stats.total)
	}
	if e.stats.success > 0 {
		st.AvgLatencyMs = e.stats.latencyMs / float64(e.stats.success)
	}
	return st
}

// History returns up to limit results, newest first. limit <= 0 returns all.
func (e *Engine) History(limit int) []*models.CoordinationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*models.CoordinationResult, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.history[i])
	}
	return out
}

// ActiveSchedules returns retained schedules, newest first.
func (e *Engine) ActiveSchedules() []*models.EventSchedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.EventSchedule, 0, len(e.schedules))
	for i := len(e.schedules) - 1; i >= 0; i-- {
		out = append(out, e.schedules[i])
	}
	return out
}

func (e *Engine) Mode() models.CoordinationMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) SetMode(m models.CoordinationMode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
	e.logger.Info("coordination mode changed", applogger.String("mode", string(m)))
}

// ClearHistory drops the result history and the retained schedules.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.schedules = nil
}

// EvictStale removes events idle past the TTL, then drops schedules and
// pending conflicts that no longer reference a stored event.
func (e *Engine) EvictStale() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	evicted := e.store.Evict(e.now())
	if len(evicted) == 0 {
		return 0
	}

	kept := e.schedules[:0]
	for _, s := range e.schedules {
		for _, id := range s.EventIDs {
			if e.store.Contains(id) {
				kept = append(kept, s)
				break
			}
		}
	}
	e.schedules = kept

	pending := e.pending[:0]
	for _, c := range e.pending {
		all := true
		for _, id := range c.EventIDs {
			if !e.store.Contains(id) {
				all = false
				break
			}
		}
		if all {
			pending = append(pending, c)
		}
	}
	e.pending = pending
	e.metrics.SetActiveEvents(e.store.ActiveCount())
	e.logger.Debug("evicted stale events", applogger.Int("count", len(evicted)))
	return len(evicted)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.store.Clear()
	e.pending = nil
	e.schedules = nil
	return nil
}

type noopMetrics struct{}

func (noopMetrics) RecordCoordination(string, string)   {}
func (noopMetrics) RecordConflict(string)               {}
func (noopMetrics) RecordResolution(string, bool)       {}
func (noopMetrics) RecordEffectiveness(string, float64) {}
func (noopMetrics) SetActiveEvents(int)                 {}
func (noopMetrics) RecordError(string)                  {}
func (noopMetrics) RecordLatency(string, float64)       {}
