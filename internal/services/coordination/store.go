package coordination

import (
	"sort"
	"time"

	"FinCoord/internal/domain/models"
)

type storedEvent struct {
	event    *models.Event
	lastSeen time.Time
}

// EventStore holds the working set of events. It is not safe for concurrent
// use; Engine serializes access.
type EventStore struct {
	events   map[string]*storedEvent
	ttl      time.Duration
	capacity int
}

func NewEventStore(ttl time.Duration, capacity int) *EventStore {
	return &EventStore{
		events:   make(map[string]*storedEvent),
		ttl:      ttl,
		capacity: capacity,
	}
}

// Put stores a copy of ev. When touch is set the freshness clock restarts.
// At capacity the least recently seen event is evicted and its id returned.
func (s *EventStore) Put(ev *models.Event, now time.Time, touch bool) (evicted string) {
	if cur, ok := s.events[ev.ID]; ok {
		cur.event = ev.Clone()
		if touch {
			cur.lastSeen = now
		}
		return ""
	}
	if s.capacity > 0 && len(s.events) >= s.capacity {
		evicted = s.oldest()
		delete(s.events, evicted)
	}
	s.events[ev.ID] = &storedEvent{event: ev.Clone(), lastSeen: now}
	return evicted
}

func (s *EventStore) oldest() string {
	var id string
	var at time.Time
	for k, v := range s.events {
		if id == "" || v.lastSeen.Before(at) || (v.lastSeen.Equal(at) && k < id) {
			id, at = k, v.lastSeen
		}
	}
	return id
}

// Get returns a copy of the event.
func (s *EventStore) Get(id string) (*models.Event, bool) {
	se, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return se.event.Clone(), true
}

func (s *EventStore) Contains(id string) bool {
	_, ok := s.events[id]
	return ok
}

func (s *EventStore) Remove(ids ...string) {
	for _, id := range ids {
		delete(s.events, id)
	}
}

// Evict drops events idle for longer than the TTL and returns their ids sorted.
func (s *EventStore) Evict(now time.Time) []string {
	var out []string
	for id, se := range s.events {
		if now.Sub(se.lastSeen) > s.ttl {
			out = append(out, id)
		}
	}
	for _, id := range out {
		delete(s.events, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns copies of all stored events ordered by id.
func (s *EventStore) Snapshot() []*models.Event {
	out := make([]*models.Event, 0, len(s.events))
	for _, se := range s.events {
		out = append(out, se.event.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fresh returns copies of events seen within the TTL, ordered by id.
func (s *EventStore) Fresh(now time.Time) []*models.Event {
	out := make([]*models.Event, 0, len(s.events))
	for _, se := range s.events {
		if now.Sub(se.lastSeen) <= s.ttl {
			out = append(out, se.event.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *EventStore) Len() int { return len(s.events) }

// ActiveCount counts events that are neither cancelled nor merged.
func (s *EventStore) ActiveCount() int {
	n := 0
	for _, se := range s.events {
		if se.event.Active() {
			n++
		}
	}
	return n
}

func (s *EventStore) Clear() {
	s.events = make(map[string]*storedEvent)
}
