package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/domain/recurrence"
	"github.com/eventcal/core/internal/infrastructure/logger"
	"github.com/eventcal/core/internal/infrastructure/metrics"
	"github.com/eventcal/core/internal/ports"
)

// EventService handles event persistence, repeat-group bookkeeping and the
// calendar view. Mutations are persisted first; the index and the view cache
// only change after the repository call succeeded.
type EventService struct {
	repo    ports.EventRepository
	cache   ports.ViewCache
	index   *EventIndex
	metrics *metrics.Metrics
	logger  *logger.Logger

	maxOccurrences int
	// generation changes on every invalidation; a view computed under an
	// older generation is not cached.
	generation atomic.Uint64

	now   func() time.Time
	newID func() string
}

// Option configures an EventService.
type Option func(*EventService)

// WithMaxOccurrences limits how many records one recurring save may
// materialize. Zero or less disables the limit.
func WithMaxOccurrences(n int) Option {
	return func(s *EventService) {
		s.maxOccurrences = n
	}
}

// NewEventService creates a new event service. cache and m may be nil.
func NewEventService(repo ports.EventRepository, cache ports.ViewCache, m *metrics.Metrics, logger *logger.Logger, opts ...Option) *EventService {
	if cache == nil {
		cache = nopCache{}
	}
	s := &EventService{
		repo:           repo,
		cache:          cache,
		index:          NewEventIndex(),
		metrics:        m,
		logger:         logger.WithComponent("event_service"),
		maxOccurrences: recurrence.DefaultMaxOccurrences,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new event. An expandable rule is materialized as one record
// per occurrence, base date included, all sharing a fresh group id.
func (s *EventService) Create(ctx context.Context, req ports.EventRequest) ([]entities.Event, error) {
	event := req.ToEvent()
	if err := event.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	event.ID = s.newID()
	event.CreatedAt, event.UpdatedAt = now, now

	if !recurrence.ShouldExpandEvent(event) {
		event.Repeat = event.Repeat.WithoutGroup()
		id, err := s.repo.Create(ctx, &event)
		if err != nil {
			return nil, fmt.Errorf("failed to create event: %w", err)
		}
		event.ID = id

		s.commit(ctx, nil, event)
		s.logger.Infow("Event created", "event_id", id, "title", event.Title)
		return []entities.Event{event}, nil
	}

	if err := s.checkOccurrences(event); err != nil {
		return nil, err
	}
	groupID := s.newID()
	event.Repeat = event.Repeat.WithGroup(groupID)
	records := recurrence.Occurrences(event)
	if _, err := s.repo.CreateBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to create repeating event: %w", err)
	}

	s.commit(ctx, nil, records...)
	s.metrics.OccurrencesMaterialized(len(records))
	s.logger.LogEventMutation("create_group", len(records), map[string]interface{}{
		"group_id": groupID,
		"base_id":  event.ID,
		"rule":     event.Repeat.String(),
	})
	return records, nil
}

// Get retrieves an event by id
func (s *EventService) Get(ctx context.Context, id string) (*entities.Event, error) {
	event, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// List returns every stored record ordered by date.
func (s *EventService) List(ctx context.Context) ([]entities.Event, error) {
	return s.index.All(), nil
}

// View returns the calendar for [start, end]. Grouped records are already
// materialized and are only clipped; everything else goes through the
// expansion engine.
func (s *EventService) View(ctx context.Context, start, end caldate.Date) ([]entities.Event, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, fmt.Errorf("%w: %s..%s", entities.ErrInvalidRange, start, end)
	}

	key := fmt.Sprintf("view:%s:%s", start, end)
	if cached, ok := s.cache.Get(ctx, key); ok {
		s.metrics.ViewCacheLookup(true)
		return cached, nil
	}
	s.metrics.ViewCacheLookup(false)

	gen := s.generation.Load()
	view := []entities.Event{}
	for _, e := range s.index.All() {
		if _, grouped := e.GroupID(); grouped {
			if recurrence.InRange(e.Date, start, end) {
				view = append(view, e)
			}
			continue
		}
		view = append(view, recurrence.ExpandRepeatingEvents([]entities.Event{e}, start, end)...)
	}

	s.storeView(ctx, key, gen, view)
	return view, nil
}

// storeView caches a view computed at generation gen. A mutation committed
// since then makes the view stale, so it is not stored, or dropped again when
// the mutation lands between the check and Set.
func (s *EventService) storeView(ctx context.Context, key string, gen uint64, view []entities.Event) {
	if s.generation.Load() != gen {
		return
	}
	if err := s.cache.Set(ctx, key, view); err != nil {
		s.logger.Warnw("Failed to cache calendar view", "key", key, "error", err)
		return
	}
	if s.generation.Load() != gen {
		s.invalidate(ctx)
	}
}

// Update edits one record. A grouped record is detached (single edit). A
// standalone record that gains an expandable rule is replaced by a new group.
func (s *EventService) Update(ctx context.Context, id string, req ports.EventRequest) ([]entities.Event, error) {
	current, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, grouped := current.GroupID(); grouped {
		event, err := s.SingleEdit(ctx, id, req)
		if err != nil {
			return nil, err
		}
		return []entities.Event{*event}, nil
	}

	event := req.ToEvent()
	if err := event.Validate(); err != nil {
		return nil, err
	}
	event.ID = id
	event.CreatedAt, event.UpdatedAt = current.CreatedAt, s.now()

	if recurrence.ShouldExpandEvent(event) {
		if err := s.checkOccurrences(event); err != nil {
			return nil, err
		}
		groupID := s.newID()
		event.Repeat = event.Repeat.WithGroup(groupID)
		records := recurrence.Occurrences(event)
		if err := s.repo.Replace(ctx, []string{id}, records); err != nil {
			return nil, fmt.Errorf("failed to expand event %s: %w", id, err)
		}

		s.commit(ctx, []string{id}, records...)
		s.metrics.OccurrencesMaterialized(len(records))
		s.logger.LogEventMutation("promote_group", len(records), map[string]interface{}{
			"group_id": groupID,
			"base_id":  id,
		})
		return records, nil
	}

	event.Repeat = event.Repeat.WithoutGroup()
	if err := s.repo.Update(ctx, id, &event); err != nil {
		return nil, fmt.Errorf("failed to update event %s: %w", id, err)
	}

	s.commit(ctx, nil, event)
	s.logger.Infow("Event updated", "event_id", id)
	return []entities.Event{event}, nil
}

// SingleEdit replaces one record and detaches it from its group. The record
// keeps its own id and never rejoins a group.
func (s *EventService) SingleEdit(ctx context.Context, id string, req ports.EventRequest) (*entities.Event, error) {
	current, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	event := req.ToEvent()
	event.Detach()
	if err := event.Validate(); err != nil {
		return nil, err
	}
	event.ID = id
	event.CreatedAt, event.UpdatedAt = current.CreatedAt, s.now()

	if err := s.repo.Update(ctx, id, &event); err != nil {
		return nil, fmt.Errorf("failed to edit event %s: %w", id, err)
	}

	s.commit(ctx, nil, event)
	s.metrics.GroupOperation("single_edit")
	groupID, _ := current.GroupID()
	s.logger.LogEventMutation("single_edit", 1, map[string]interface{}{
		"event_id":        id,
		"former_group_id": groupID,
	})
	return &event, nil
}

// Delete removes exactly one record. Other members of its group stay.
func (s *EventService) Delete(ctx context.Context, id string) error {
	current, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}

	s.commit(ctx, []string{id})
	if _, grouped := current.GroupID(); grouped {
		s.metrics.GroupOperation("single_delete")
	}
	s.logger.Infow("Event deleted", "event_id", id)
	return nil
}

// Group returns the records sharing groupID, ordered by date.
func (s *EventService) Group(ctx context.Context, groupID string) ([]entities.Event, error) {
	members := s.index.Group(groupID)
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", entities.ErrGroupNotFound, groupID)
	}
	return members, nil
}

// GroupEdit atomically replaces every record of groupID with a fresh
// expansion of the updated event. The expansion gets a new base id so it
// cannot collide with records detached from the group, which stay as they are.
func (s *EventService) GroupEdit(ctx context.Context, groupID string, req ports.EventRequest) ([]entities.Event, error) {
	members, err := s.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}

	event := req.ToEvent()
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if !recurrence.ShouldExpandEvent(event) {
		return nil, fmt.Errorf("%w: %s", entities.ErrRuleNotExpandable, event.Repeat)
	}
	if err := s.checkOccurrences(event); err != nil {
		return nil, err
	}

	event.ID = s.newID()
	event.CreatedAt, event.UpdatedAt = members[0].CreatedAt, s.now()
	event.Repeat = event.Repeat.WithGroup(groupID)
	records := recurrence.Occurrences(event)

	if err := s.repo.ReplaceGroup(ctx, groupID, records); err != nil {
		return nil, fmt.Errorf("failed to replace repeat group %s: %w", groupID, err)
	}

	// the repository replaced whatever carried groupID when it ran, which
	// excludes records detached after members was read
	removed := s.commitGroup(ctx, groupID, records...)
	s.metrics.GroupOperation("group_edit")
	s.metrics.OccurrencesMaterialized(len(records))
	s.logger.LogEventMutation("group_edit", len(records), map[string]interface{}{
		"group_id": groupID,
		"replaced": len(removed),
		"rule":     event.Repeat.String(),
	})
	return records, nil
}

// GroupDelete removes every record of groupID. Records detached from the
// group are not touched.
func (s *EventService) GroupDelete(ctx context.Context, groupID string) error {
	if _, err := s.Group(ctx, groupID); err != nil {
		return err
	}

	if err := s.repo.ReplaceGroup(ctx, groupID, nil); err != nil {
		return fmt.Errorf("failed to delete repeat group %s: %w", groupID, err)
	}

	ids := s.commitGroup(ctx, groupID)
	s.metrics.GroupOperation("group_delete")
	s.logger.LogEventMutation("group_delete", len(ids), map[string]interface{}{
		"group_id": groupID,
	})
	return nil
}

// CreateBatch stores events as given. Ids left empty are assigned by the
// repository.
func (s *EventService) CreateBatch(ctx context.Context, events []entities.Event) ([]entities.Event, error) {
	if len(events) == 0 {
		return []entities.Event{}, nil
	}

	now := s.now()
	records := make([]entities.Event, len(events))
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		e.CreatedAt, e.UpdatedAt = now, now
		records[i] = e
	}

	ids, err := s.repo.CreateBatch(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to create events: %w", err)
	}
	for i := range records {
		records[i].ID = ids[i]
	}

	s.commit(ctx, nil, records...)
	s.logger.LogEventMutation("create_batch", len(records), nil)
	return records, nil
}

// UpdateBatch overwrites existing events as given.
func (s *EventService) UpdateBatch(ctx context.Context, events []entities.Event) ([]entities.Event, error) {
	if len(events) == 0 {
		return []entities.Event{}, nil
	}

	now := s.now()
	records := make([]entities.Event, len(events))
	for i, e := range events {
		current, err := s.lookup(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		if err := checkGroupMove(current, e); err != nil {
			return nil, err
		}
		e.CreatedAt, e.UpdatedAt = current.CreatedAt, now
		records[i] = e
	}

	if err := s.repo.UpdateBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to update events: %w", err)
	}

	s.commit(ctx, nil, records...)
	s.logger.LogEventMutation("update_batch", len(records), nil)
	return records, nil
}

// DeleteBatch removes the given events. Unknown ids fail the whole batch.
func (s *EventService) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := s.lookup(ctx, id); err != nil {
			return err
		}
	}

	if err := s.repo.DeleteBatch(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}

	s.commit(ctx, ids)
	s.logger.LogEventMutation("delete_batch", len(ids), nil)
	return nil
}

// Import creates each item through Create. Items that fail validation are
// skipped and reported; a persistence failure aborts the import.
func (s *EventService) Import(ctx context.Context, items []ports.ImportItem) (*ports.ImportReport, error) {
	started := s.now()
	report := &ports.ImportReport{
		Imported: []entities.Event{},
		Skipped:  []ports.ImportSkip{},
	}

	for _, item := range items {
		created, err := s.Create(ctx, item.Request)
		if err != nil {
			if errors.Is(err, entities.ErrInvalidEvent) || errors.Is(err, entities.ErrTooManyOccurrences) {
				report.Skipped = append(report.Skipped, ports.ImportSkip{UID: item.UID, Reason: err.Error()})
				continue
			}
			return report, fmt.Errorf("failed to import %s: %w", item.UID, err)
		}
		report.Imported = append(report.Imported, created...)
	}

	report.Duration = s.now().Sub(started)
	s.logger.Infow("Calendar imported",
		"imported", len(report.Imported),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

// Reload rebuilds the index from the repository.
func (s *EventService) Reload(ctx context.Context) error {
	events, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	s.index.Reset(events)
	s.invalidate(ctx)
	s.metrics.IndexSize(len(events))
	s.logger.Infow("Event index reloaded", "events", len(events))
	return nil
}

func (s *EventService) lookup(ctx context.Context, id string) (entities.Event, error) {
	if e, ok := s.index.Get(id); ok {
		return e, nil
	}

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, entities.ErrEventNotFound) {
			return entities.Event{}, fmt.Errorf("%w: %s", entities.ErrEventNotFound, id)
		}
		return entities.Event{}, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	s.index.Put(*e)
	return *e, nil
}

// commit applies a persisted change to the index and drops cached views.
func (s *EventService) commit(ctx context.Context, removed []string, put ...entities.Event) {
	s.index.Remove(removed...)
	s.index.Put(put...)
	s.invalidate(ctx)
	s.metrics.IndexSize(s.index.Len())
}

// commitGroup drops the current members of groupID from the index, adds put
// and returns the dropped ids.
func (s *EventService) commitGroup(ctx context.Context, groupID string, put ...entities.Event) []string {
	removed := s.index.RemoveGroup(groupID)
	s.commit(ctx, nil, put...)
	return removed
}

func (s *EventService) invalidate(ctx context.Context) {
	s.generation.Add(1)
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warnw("Failed to invalidate view cache", "error", err)
	}
}

func (s *EventService) checkOccurrences(e entities.Event) error {
	if recurrence.ExceedsOccurrences(e, caldate.Date{}, caldate.Date{}, s.maxOccurrences) {
		return fmt.Errorf("%w: %s exceeds %d", entities.ErrTooManyOccurrences, e.Repeat, s.maxOccurrences)
	}
	return nil
}

// checkGroupMove rejects batch updates that would put a record into a group
// it does not already belong to. Detached and standalone records stay out of
// every group; grouped records may keep their group or leave it.
func checkGroupMove(current, next entities.Event) error {
	nextGroup, joins := next.GroupID()
	if !joins {
		return nil
	}
	if currentGroup, grouped := current.GroupID(); grouped && currentGroup == nextGroup {
		return nil
	}
	return fmt.Errorf("%w: event %s cannot join repeat group %s", entities.ErrInvalidEvent, next.ID, nextGroup)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]entities.Event, bool) { return nil, false }
func (nopCache) Set(context.Context, string, []entities.Event) error { return nil }
func (nopCache) Invalidate(context.Context) error { return nil }
