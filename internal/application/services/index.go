package services

import (
	"sort"
	"sync"

	"github.com/eventcal/core/internal/domain/entities"
)

// EventIndex is the in-memory view of stored events, keyed by id and by
// repeat group. It is updated after each successful persistence call.
type EventIndex struct {
	mu     sync.RWMutex
	byID   map[string]entities.Event
	groups map[string]map[string]struct{}
}

func NewEventIndex() *EventIndex {
	return &EventIndex{
		byID:   make(map[string]entities.Event),
		groups: make(map[string]map[string]struct{}),
	}
}

// Reset replaces the whole index content.
func (x *EventIndex) Reset(events []entities.Event) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.byID = make(map[string]entities.Event, len(events))
	x.groups = make(map[string]map[string]struct{})
	for _, e := range events {
		x.putLocked(e)
	}
}

func (x *EventIndex) Put(events ...entities.Event) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, e := range events {
		x.putLocked(e)
	}
}

func (x *EventIndex) Remove(ids ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, id := range ids {
		x.removeLocked(id)
	}
}

// RemoveGroup drops every member of groupID and returns their ids.
func (x *EventIndex) RemoveGroup(groupID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	members := x.groups[groupID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	for _, id := range ids {
		x.removeLocked(id)
	}
	sort.Strings(ids)
	return ids
}

func (x *EventIndex) Get(id string) (entities.Event, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.byID[id]
	return e, ok
}

// Group returns the members of groupID ordered by date.
func (x *EventIndex) Group(groupID string) []entities.Event {
	x.mu.RLock()
	defer x.mu.RUnlock()

	members := x.groups[groupID]
	out := make([]entities.Event, 0, len(members))
	for id := range members {
		out = append(out, x.byID[id])
	}
	sortEvents(out)
	return out
}

// All returns every event ordered by date, then id.
func (x *EventIndex) All() []entities.Event {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]entities.Event, 0, len(x.byID))
	for _, e := range x.byID {
		out = append(out, e)
	}
	sortEvents(out)
	return out
}

func (x *EventIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

func (x *EventIndex) putLocked(e entities.Event) {
	x.removeLocked(e.ID)
	x.byID[e.ID] = e
	if gid, ok := e.GroupID(); ok {
		members, found := x.groups[gid]
		if !found {
			members = make(map[string]struct{})
			x.groups[gid] = members
		}
		members[e.ID] = struct{}{}
	}
}

func (x *EventIndex) removeLocked(id string) {
	prev, ok := x.byID[id]
	if !ok {
		return
	}
	delete(x.byID, id)
	if gid, ok := prev.GroupID(); ok {
		delete(x.groups[gid], id)
		if len(x.groups[gid]) == 0 {
			delete(x.groups, gid)
		}
	}
}

func sortEvents(events []entities.Event) {
	sort.Slice(events, func(i, j int) bool {
		if c := events[i].Date.Compare(events[j].Date); c != 0 {
			return c < 0
		}
		return events[i].ID < events[j].ID
	})
}
