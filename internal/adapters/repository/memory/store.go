// Package memory is an in-process event repository, used for the "memory"
// storage driver and for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/eventcal/core/internal/domain/entities"
)

// Store implements ports.EventRepository using an in-memory map. Batch
// operations validate every input before applying any of them.
type Store struct {
	mu     sync.RWMutex
	events map[string]entities.Event
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		events: make(map[string]entities.Event),
	}
}

func (s *Store) Create(_ context.Context, event *entities.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.insertLocked([]entities.Event{*event}, nil)
	if err != nil {
		return "", err
	}
	event.ID = ids[0]
	return ids[0], nil
}

func (s *Store) CreateBatch(_ context.Context, events []entities.Event) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(events, nil)
}

func (s *Store) Get(_ context.Context, id string) (*entities.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrEventNotFound, id)
	}
	return &e, nil
}

func (s *Store) Update(_ context.Context, id string, event *entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%w: %s", entities.ErrEventNotFound, id)
	}
	e := *event
	e.ID = id
	s.events[id] = e
	return nil
}

func (s *Store) UpdateBatch(_ context.Context, events []entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if _, ok := s.events[e.ID]; !ok {
			return fmt.Errorf("%w: %s", entities.ErrEventNotFound, e.ID)
		}
	}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%w: %s", entities.ErrEventNotFound, id)
	}
	delete(s.events, id)
	return nil
}

func (s *Store) DeleteBatch(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkExistLocked(ids); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.events, id)
	}
	return nil
}

// List returns all events ordered by date, then id.
func (s *Store) List(_ context.Context) ([]entities.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ReplaceGroup(_ context.Context, groupID string, events []entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, e := range s.events {
		if e.InGroup(groupID) {
			ids = append(ids, id)
		}
	}
	_, err := s.insertLocked(events, ids)
	return err
}

func (s *Store) Replace(_ context.Context, ids []string, events []entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkExistLocked(ids); err != nil {
		return err
	}
	_, err := s.insertLocked(events, ids)
	return err
}

// insertLocked removes the ids in replaced and inserts events, failing
// without changes when an id would collide with a remaining event.
func (s *Store) insertLocked(events []entities.Event, replaced []string) ([]string, error) {
	freed := make(map[string]bool, len(replaced))
	for _, id := range replaced {
		freed[id] = true
	}

	ids := make([]string, len(events))
	seen := make(map[string]bool, len(events))
	for i, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, taken := s.events[id]; (taken && !freed[id]) || seen[id] {
			return nil, fmt.Errorf("%w: %s", entities.ErrDuplicateEvent, id)
		}
		seen[id] = true
		ids[i] = id
	}

	for _, id := range replaced {
		delete(s.events, id)
	}
	for i, e := range events {
		e.ID = ids[i]
		s.events[e.ID] = e
	}
	return ids, nil
}

func (s *Store) checkExistLocked(ids []string) error {
	for _, id := range ids {
		if _, ok := s.events[id]; !ok {
			return fmt.Errorf("%w: %s", entities.ErrEventNotFound, id)
		}
	}
	return nil
}
