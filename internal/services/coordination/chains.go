package coordination

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"FinCoord/internal/domain/models"
)

// ChainReport is the outcome of chain enumeration.
type ChainReport struct {
	Chains    []models.EventChain
	Truncated bool
}

// ChainDetector enumerates simple paths over propagating relations.
type ChainDetector struct {
	maxLength int
	maxNodes  int
	maxChains int
	timeout   time.Duration
	newID     func() string
}

func NewChainDetector(maxLength, maxNodes, maxChains int, timeout time.Duration, newID func() string) *ChainDetector {
	return &ChainDetector{
		maxLength: maxLength,
		maxNodes:  maxNodes,
		maxChains: maxChains,
		timeout:   timeout,
		newID:     newID,
	}
}

type chainEdge struct {
	to   string
	conf float64
	lag  float64
}

// Detect returns chains of 3..maxLength events between survivors. Node, chain
// and deadline caps stop the search early and mark the report truncated. A
// cancelled parent context returns its error.
func (d *ChainDetector) Detect(ctx context.Context, graph *RelationGraph, survivors []*models.Event) (ChainReport, error) {
	var rep ChainReport
	nodes := make([]*models.Event, len(survivors))
	copy(nodes, survivors)
	if len(nodes) > d.maxNodes {
		sort.Slice(nodes, func(i, j int) bool {
			if !nodes[i].EventTime.Equal(nodes[j].EventTime) {
				return nodes[i].EventTime.Before(nodes[j].EventTime)
			}
			return nodes[i].ID < nodes[j].ID
		})
		nodes = nodes[:d.maxNodes]
		rep.Truncated = true
	}
	if len(nodes) < 3 {
		return rep, nil
	}

	set := make(map[string]struct{}, len(nodes))
	ids := make([]string, len(nodes))
	for i, e := range nodes {
		set[e.ID] = struct{}{}
		ids[i] = e.ID
	}
	sort.Strings(ids)

	adj := make(map[string][]chainEdge, len(ids))
	for _, id := range ids {
		for _, r := range graph.Outgoing(id) {
			if _, ok := set[r.TargetEventID]; !ok || !r.RelationType.Propagates() {
				continue
			}
			adj[id] = append(adj[id], chainEdge{to: r.TargetEventID, conf: r.Confidence, lag: r.TimeLagHours})
		}
	}

	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		path    []string
		edges   []chainEdge
		onPath  = make(map[string]bool)
		steps   int
		stopped bool
	)
	var walk func(id string)
	walk = func(id string) {
		if stopped {
			return
		}
		steps++
		if steps%64 == 0 && dctx.Err() != nil {
			stopped = true
			return
		}
		path = append(path, id)
		onPath[id] = true
		defer func() {
			path = path[:len(path)-1]
			onPath[id] = false
		}()

		if len(path) >= 3 {
			if len(rep.Chains) >= d.maxChains {
				stopped = true
				return
			}
			rep.Chains = append(rep.Chains, d.makeChain(path, edges))
		}
		if len(path) >= d.maxLength {
			return
		}
		for _, e := range adj[id] {
			if onPath[e.to] {
				continue
			}
			edges = append(edges, e)
			walk(e.to)
			edges = edges[:len(edges)-1]
			if stopped {
				return
			}
		}
	}
	for _, id := range ids {
		if len(adj[id]) == 0 {
			continue
		}
		walk(id)
		if stopped {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return ChainReport{}, err
	}
	if stopped {
		rep.Truncated = true
	}
	sort.SliceStable(rep.Chains, func(i, j int) bool {
		a, b := rep.Chains[i], rep.Chains[j]
		if a.ChainConfidence != b.ChainConfidence {
			return a.ChainConfidence > b.ChainConfidence
		}
		return strings.Join(a.EventSequence, "\x00") < strings.Join(b.EventSequence, "\x00")
	})
	return rep, nil
}

func (d *ChainDetector) makeChain(path []string, edges []chainEdge) models.EventChain {
	var logSum, lag float64
	conf := 0.0
	positive := true
	for _, e := range edges {
		if e.conf <= 0 {
			positive = false
		} else {
			logSum += math.Log(e.conf)
		}
		lag += e.lag
	}
	if positive && len(edges) > 0 {
		conf = models.Clamp01(math.Exp(logSum / float64(len(edges))))
	}
	return models.EventChain{
		ID:                         d.newID(),
		EventSequence:              append([]string(nil), path...),
		ChainConfidence:            conf,
		TotalExpectedDurationHours: lag,
		CompletionProbability:      conf * 0.8,
	}
}
