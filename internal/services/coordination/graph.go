package coordination

import (
	"sort"

	"FinCoord/internal/domain/models"
)

const smoothing = 0.9

// EdgeKey identifies a directed edge.
type EdgeKey struct {
	Source string
	Target string
}

// RelationGraph is a directed graph of event relations with at most one edge per
// unordered pair. It is not safe for concurrent use; callers clone before
// handing it to another goroutine.
type RelationGraph struct {
	edges    map[EdgeKey]*models.EventRelation
	adjacent map[string]map[string]EdgeKey
	maxEdges int
}

func NewRelationGraph(maxEdges int) *RelationGraph {
	return &RelationGraph{
		edges:    make(map[EdgeKey]*models.EventRelation),
		adjacent: make(map[string]map[string]EdgeKey),
		maxEdges: maxEdges,
	}
}

func (g *RelationGraph) find(a, b string) (EdgeKey, bool) {
	k := EdgeKey{Source: a, Target: b}
	if _, ok := g.edges[k]; ok {
		return k, true
	}
	k = EdgeKey{Source: b, Target: a}
	if _, ok := g.edges[k]; ok {
		return k, true
	}
	return EdgeKey{}, false
}

// Upsert inserts the relation or folds it into the existing edge for the pair,
// in either orientation. Existing edges keep their orientation and type; the
// numeric fields are exponentially smoothed toward the new observation.
func (g *RelationGraph) Upsert(rel models.EventRelation) models.EventRelation {
	if k, ok := g.find(rel.SourceEventID, rel.TargetEventID); ok {
		cur := g.edges[k]
		cur.Confidence = smoothing*cur.Confidence + (1-smoothing)*rel.Confidence
		cur.CorrelationStrength = smoothing*cur.CorrelationStrength + (1-smoothing)*rel.CorrelationStrength
		lag := rel.TimeLagHours
		if k.Source != rel.SourceEventID {
			lag = -lag
		}
		cur.TimeLagHours = smoothing*cur.TimeLagHours + (1-smoothing)*lag
		cur.ObservationCount++
		if rel.LastObserved.After(cur.LastObserved) {
			cur.LastObserved = rel.LastObserved
		}
		return *cur
	}

	if g.maxEdges > 0 && len(g.edges) >= g.maxEdges {
		g.evictOldest()
	}
	stored := rel
	if stored.ObservationCount < 1 {
		stored.ObservationCount = 1
	}
	k := EdgeKey{Source: rel.SourceEventID, Target: rel.TargetEventID}
	g.edges[k] = &stored
	g.link(k.Source, k.Target, k)
	g.link(k.Target, k.Source, k)
	return stored
}

// evictOldest drops the least recently observed edges, about one percent of
// capacity at a time so a full graph does not rescan on every insert.
func (g *RelationGraph) evictOldest() {
	n := g.maxEdges / 100
	if n < 1 {
		n = 1
	}
	keys := make([]EdgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := g.edges[keys[i]], g.edges[keys[j]]
		if !a.LastObserved.Equal(b.LastObserved) {
			return a.LastObserved.Before(b.LastObserved)
		}
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Target < keys[j].Target
	})
	if n > len(keys) {
		n = len(keys)
	}
	for _, k := range keys[:n] {
		g.removeEdge(k)
	}
}

func (g *RelationGraph) link(from, to string, k EdgeKey) {
	m, ok := g.adjacent[from]
	if !ok {
		m = make(map[string]EdgeKey)
		g.adjacent[from] = m
	}
	m[to] = k
}

func (g *RelationGraph) removeEdge(k EdgeKey) {
	delete(g.edges, k)
	for _, pair := range [][2]string{{k.Source, k.Target}, {k.Target, k.Source}} {
		if m, ok := g.adjacent[pair[0]]; ok {
			delete(m, pair[1])
			if len(m) == 0 {
				delete(g.adjacent, pair[0])
			}
		}
	}
}

// Lookup returns the edge between a and b in either orientation.
func (g *RelationGraph) Lookup(a, b string) (models.EventRelation, bool) {
	k, ok := g.find(a, b)
	if !ok {
		return models.EventRelation{}, false
	}
	return *g.edges[k], true
}

// Outgoing returns edges whose source is id, ordered by target.
func (g *RelationGraph) Outgoing(id string) []models.EventRelation {
	var out []models.EventRelation
	for _, k := range g.adjacent[id] {
		if k.Source == id {
			out = append(out, *g.edges[k])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetEventID < out[j].TargetEventID })
	return out
}

// ConnectedComponent returns the ids reachable from id in either direction,
// restricted to active, sorted. A node outside active yields nil.
func (g *RelationGraph) ConnectedComponent(id string, active map[string]struct{}) []string {
	if _, ok := active[id]; !ok {
		return nil
	}
	seen := map[string]struct{}{id: {}}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.adjacent[cur] {
			if _, ok := active[next]; !ok {
				continue
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Between returns the edges with both endpoints in ids, ordered by key.
func (g *RelationGraph) Between(ids []string) []models.EventRelation {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	var out []models.EventRelation
	for _, id := range ids {
		for _, k := range g.adjacent[id] {
			if k.Source != id {
				continue
			}
			if _, ok := set[k.Target]; ok {
				out = append(out, *g.edges[k])
			}
		}
	}
	sortRelations(out)
	return out
}

// Relations returns every edge ordered by key.
func (g *RelationGraph) Relations() []models.EventRelation {
	out := make([]models.EventRelation, 0, len(g.edges))
	for _, r := range g.edges {
		out = append(out, *r)
	}
	sortRelations(out)
	return out
}

func (g *RelationGraph) Len() int { return len(g.edges) }

// Clone returns an independent copy.
func (g *RelationGraph) Clone() *RelationGraph {
	c := NewRelationGraph(g.maxEdges)
	for k, r := range g.edges {
		cp := *r
		c.edges[k] = &cp
	}
	for from, m := range g.adjacent {
		cm := make(map[string]EdgeKey, len(m))
		for to, k := range m {
			cm[to] = k
		}
		c.adjacent[from] = cm
	}
	return c
}

func sortRelations(rs []models.EventRelation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].SourceEventID != rs[j].SourceEventID {
			return rs[i].SourceEventID < rs[j].SourceEventID
		}
		return rs[i].TargetEventID < rs[j].TargetEventID
	})
}
