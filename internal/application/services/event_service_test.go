package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventcal/core/internal/adapters/repository/memory"
	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/infrastructure/logger"
	"github.com/eventcal/core/internal/ports"
)

var errStorageDown = errors.New("storage down")

// flakyRepo fails the named operations.
type flakyRepo struct {
	ports.EventRepository
	fail map[string]bool
	// beforeReplaceGroup runs once ahead of the next ReplaceGroup.
	beforeReplaceGroup func()
}

func (r *flakyRepo) CreateBatch(ctx context.Context, events []entities.Event) ([]string, error) {
	if r.fail["CreateBatch"] {
		return nil, errStorageDown
	}
	return r.EventRepository.CreateBatch(ctx, events)
}

func (r *flakyRepo) Update(ctx context.Context, id string, e *entities.Event) error {
	if r.fail["Update"] {
		return errStorageDown
	}
	return r.EventRepository.Update(ctx, id, e)
}

func (r *flakyRepo) ReplaceGroup(ctx context.Context, groupID string, events []entities.Event) error {
	if r.fail["ReplaceGroup"] {
		return errStorageDown
	}
	if hook := r.beforeReplaceGroup; hook != nil {
		r.beforeReplaceGroup = nil
		hook()
	}
	return r.EventRepository.ReplaceGroup(ctx, groupID, events)
}

func (r *flakyRepo) DeleteBatch(ctx context.Context, ids []string) error {
	if r.fail["DeleteBatch"] {
		return errStorageDown
	}
	return r.EventRepository.DeleteBatch(ctx, ids)
}

// countingCache is a map cache that records invalidations.
type countingCache struct {
	entries       map[string][]entities.Event
	invalidations int
	// beforeSet runs once ahead of the next Set.
	beforeSet func()
}

func newCountingCache() *countingCache {
	return &countingCache{entries: map[string][]entities.Event{}}
}

func (c *countingCache) Get(_ context.Context, key string) ([]entities.Event, bool) {
	e, ok := c.entries[key]
	return e, ok
}

func (c *countingCache) Set(_ context.Context, key string, events []entities.Event) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.entries[key] = events
	return nil
}

func (c *countingCache) Invalidate(context.Context) error {
	c.entries = map[string][]entities.Event{}
	c.invalidations++
	return nil
}

type fixture struct {
	svc   *EventService
	repo  *flakyRepo
	cache *countingCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &flakyRepo{EventRepository: memory.New(), fail: map[string]bool{}}
	cache := newCountingCache()
	svc := NewEventService(repo, cache, nil, logger.NewNop())

	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	svc.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, repo: repo, cache: cache}
}

func request(date string, kind entities.RepeatType, interval int, endDate string) ports.EventRequest {
	var end caldate.Date
	if endDate != "" {
		end = caldate.MustParse(endDate)
	}
	return ports.EventRequest{
		Title:            "team sync",
		Date:             caldate.MustParse(date),
		StartTime:        "10:00",
		EndTime:          "11:00",
		Repeat:           entities.NewRecurrenceRule(kind, interval, end),
		NotificationTime: 10,
	}
}

func ids(events []entities.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestEventService_CreateSingle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, request("2025-01-10", entities.RepeatNone, 0, ""))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "id1", created[0].ID)
	assert.False(t, created[0].IsRecurring())

	got, err := f.svc.Get(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "team sync", got.Title)
}

func TestEventService_CreateUnboundedRuleIsSingleRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, request("2025-01-10", entities.RepeatWeekly, 1, ""))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].IsRecurring())
	_, grouped := created[0].GroupID()
	assert.False(t, grouped)
}

func TestEventService_CreateMaterializesGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 2, "2025-01-07"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id1-2025-01-01", "id1-2025-01-03", "id1-2025-01-05", "id1-2025-01-07"}, ids(created))
	for _, e := range created {
		assert.True(t, e.InGroup("id2"))
		assert.True(t, e.IsRecurring())
	}

	members, err := f.svc.Group(ctx, "id2")
	require.NoError(t, err)
	assert.Equal(t, ids(created), ids(members))

	stored, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestEventService_CreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := request("2025-01-01", entities.RepeatNone, 0, "")
	req.Title = ""
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, entities.ErrInvalidEvent)

	list, _ := f.svc.List(ctx)
	assert.Empty(t, list)
}

func TestEventService_SingleEditDetaches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	require.NoError(t, err)
	target := created[1].ID

	req := request("2025-01-02", entities.RepeatDaily, 1, "2025-01-03")
	req.Title = "moved sync"
	edited, err := f.svc.Update(ctx, target, req)
	require.NoError(t, err)
	require.Len(t, edited, 1)

	assert.Equal(t, target, edited[0].ID)
	assert.Equal(t, "moved sync", edited[0].Title)
	assert.Equal(t, entities.RepeatNone, edited[0].Repeat.Type())
	assert.Equal(t, 0, edited[0].Repeat.Interval())
	assert.True(t, edited[0].Repeat.EndDate().IsAbsent())
	assert.False(t, edited[0].IsRecurring())

	members, err := f.svc.Group(ctx, "id2")
	require.NoError(t, err)
	assert.Equal(t, []string{created[0].ID, created[2].ID}, ids(members))

	stored, err := f.repo.Get(ctx, target)
	require.NoError(t, err)
	assert.False(t, stored.IsRecurring())
}

func TestEventService_DetachedRecordSurvivesGroupOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	require.NoError(t, err)
	detached := created[1].ID

	_, err = f.svc.SingleEdit(ctx, detached, request("2025-01-02", entities.RepeatNone, 0, ""))
	require.NoError(t, err)

	_, err = f.svc.GroupEdit(ctx, "id2", request("2025-01-01", entities.RepeatDaily, 1, "2025-01-04"))
	require.NoError(t, err)
	require.NoError(t, f.svc.GroupDelete(ctx, "id2"))

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{detached}, ids(list))
}

func TestEventService_GroupOperationsKeepRecordDetachedMeanwhile(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, svc *EventService) error
		want int
	}{
		{
			name: "group edit",
			run: func(ctx context.Context, svc *EventService) error {
				_, err := svc.GroupEdit(ctx, "id2", request("2025-01-01", entities.RepeatDaily, 1, "2025-01-04"))
				return err
			},
			want: 5,
		},
		{
			name: "group delete",
			run: func(ctx context.Context, svc *EventService) error {
				return svc.GroupDelete(ctx, "id2")
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
			require.NoError(t, err)
			detached := created[1].ID

			// the single edit commits after the group was read but before
			// the repository replaces it
			f.repo.beforeReplaceGroup = func() {
				_, err := f.svc.SingleEdit(ctx, detached, request("2025-01-02", entities.RepeatNone, 0, ""))
				require.NoError(t, err)
			}
			require.NoError(t, tt.run(ctx, f.svc))

			indexed, err := f.svc.List(ctx)
			require.NoError(t, err)
			stored, err := f.repo.List(ctx)
			require.NoError(t, err)

			assert.Len(t, indexed, tt.want)
			assert.Contains(t, ids(indexed), detached)
			assert.ElementsMatch(t, ids(stored), ids(indexed))
		})
	}
}

func TestEventService_SingleDeleteKeepsSiblings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatWeekly, 1, "2025-01-15"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, created[1].ID))

	members, err := f.svc.Group(ctx, "id2")
	require.NoError(t, err)
	assert.Equal(t, []string{created[0].ID, created[2].ID}, ids(members))

	assert.ErrorIs(t, f.svc.Delete(ctx, created[1].ID), entities.ErrEventNotFound)
}

func TestEventService_GroupEditReplacesMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	require.NoError(t, err)

	req := request("2025-01-01", entities.RepeatWeekly, 1, "2025-01-15")
	req.Location = "room 2"
	replaced, err := f.svc.GroupEdit(ctx, "id2", req)
	require.NoError(t, err)
	assert.Equal(t, []string{"id3-2025-01-01", "id3-2025-01-08", "id3-2025-01-15"}, ids(replaced))

	members, err := f.svc.Group(ctx, "id2")
	require.NoError(t, err)
	require.Len(t, members, 3)
	for _, m := range members {
		assert.Equal(t, "room 2", m.Location)
		assert.Equal(t, entities.RepeatWeekly, m.Repeat.Type())
	}

	stored, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(members), ids(stored))
}

func TestEventService_GroupEditErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	require.NoError(t, err)

	_, err = f.svc.GroupEdit(ctx, "nope", request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	assert.ErrorIs(t, err, entities.ErrGroupNotFound)

	_, err = f.svc.GroupEdit(ctx, "id2", request("2025-01-01", entities.RepeatNone, 0, ""))
	assert.ErrorIs(t, err, entities.ErrRuleNotExpandable)

	_, err = f.svc.GroupEdit(ctx, "id2", request("2025-01-01", entities.RepeatDaily, 1, ""))
	assert.ErrorIs(t, err, entities.ErrRuleNotExpandable)
}

func TestEventService_GroupDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatMonthly, 1, "2025-04-01"))
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, request("2025-01-05", entities.RepeatNone, 0, ""))
	require.NoError(t, err)

	require.NoError(t, f.svc.GroupDelete(ctx, "id2"))

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(other), ids(list))

	assert.ErrorIs(t, f.svc.GroupDelete(ctx, "id2"), entities.ErrGroupNotFound)
}

func TestEventService_UpdatePromotesStandaloneToGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatNone, 0, ""))
	require.NoError(t, err)

	records, err := f.svc.Update(ctx, created[0].ID, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-02"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id1-2025-01-01", "id1-2025-01-02"}, ids(records))

	_, err = f.svc.Get(ctx, "id1")
	assert.ErrorIs(t, err, entities.ErrEventNotFound)

	members, err := f.svc.Group(ctx, "id2")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestEventService_UpdateInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatNone, 0, ""))
	require.NoError(t, err)

	req := request("2025-01-09", entities.RepeatNone, 0, "")
	req.Category = "work"
	updated, err := f.svc.Update(ctx, created[0].ID, req)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, created[0].ID, updated[0].ID)
	assert.Equal(t, "2025-01-09", updated[0].Date.String())
	assert.Equal(t, "work", updated[0].Category)

	_, err = f.svc.Update(ctx, "missing", req)
	assert.ErrorIs(t, err, entities.ErrEventNotFound)
}

func TestEventService_FailedPersistenceLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	require.NoError(t, err)
	before, _ := f.svc.List(ctx)
	invalidations := f.cache.invalidations

	f.repo.fail = map[string]bool{"CreateBatch": true, "Update": true, "ReplaceGroup": true, "DeleteBatch": true}

	_, err = f.svc.Create(ctx, request("2025-02-01", entities.RepeatDaily, 1, "2025-02-03"))
	assert.ErrorIs(t, err, errStorageDown)
	_, err = f.svc.SingleEdit(ctx, created[0].ID, request("2025-01-01", entities.RepeatNone, 0, ""))
	assert.ErrorIs(t, err, errStorageDown)
	_, err = f.svc.GroupEdit(ctx, "id2", request("2025-01-01", entities.RepeatDaily, 1, "2025-01-05"))
	assert.ErrorIs(t, err, errStorageDown)
	assert.ErrorIs(t, f.svc.GroupDelete(ctx, "id2"), errStorageDown)

	after, _ := f.svc.List(ctx)
	assert.Equal(t, before, after)
	assert.Equal(t, invalidations, f.cache.invalidations)
}

func TestEventService_View(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatWeekly, 1, "2025-01-29"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, request("2025-01-10", entities.RepeatNone, 0, ""))
	require.NoError(t, err)

	// a rule stored without a group is expanded on the fly
	raw := request("2025-01-02", entities.RepeatDaily, 10, "2025-01-31").ToEvent()
	raw.ID = "raw"
	_, err = f.svc.CreateBatch(ctx, []entities.Event{raw})
	require.NoError(t, err)

	start, end := caldate.MustParse("2025-01-08"), caldate.MustParse("2025-01-22")
	view, err := f.svc.View(ctx, start, end)
	require.NoError(t, err)

	var got []string
	for _, e := range view {
		got = append(got, e.Date.String()+" "+e.ID)
	}
	assert.ElementsMatch(t, []string{
		"2025-01-08 id1-2025-01-08",
		"2025-01-15 id1-2025-01-15",
		"2025-01-22 id1-2025-01-22",
		"2025-01-10 id3",
		"2025-01-12 raw-2025-01-12",
		"2025-01-22 raw-2025-01-22",
	}, got)

	_, err = f.svc.View(ctx, end, start)
	assert.ErrorIs(t, err, entities.ErrInvalidRange)
}

func TestEventService_ViewCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, request("2025-01-10", entities.RepeatNone, 0, ""))
	require.NoError(t, err)

	start, end := caldate.MustParse("2025-01-01"), caldate.MustParse("2025-01-31")
	first, err := f.svc.View(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Len(t, f.cache.entries, 1)

	_, err = f.svc.Create(ctx, request("2025-01-11", entities.RepeatNone, 0, ""))
	require.NoError(t, err)
	assert.Empty(t, f.cache.entries)

	second, err := f.svc.View(ctx, start, end)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestEventService_ViewNotCachedAcrossMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	start, end := caldate.MustParse("2025-01-01"), caldate.MustParse("2025-01-31")

	// a create commits while the empty view is being stored
	f.cache.beforeSet = func() {
		_, err := f.svc.Create(ctx, request("2025-01-10", entities.RepeatNone, 0, ""))
		require.NoError(t, err)
	}
	first, err := f.svc.View(ctx, start, end)
	require.NoError(t, err)
	assert.Empty(t, first)
	assert.Empty(t, f.cache.entries)

	second, err := f.svc.View(ctx, start, end)
	require.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Len(t, f.cache.entries, 1)
}

func TestEventService_OccurrenceLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	WithMaxOccurrences(3)(f.svc)

	_, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-04"))
	assert.ErrorIs(t, err, entities.ErrTooManyOccurrences)

	created, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	require.NoError(t, err)
	require.Len(t, created, 3)
	groupID, ok := created[0].GroupID()
	require.True(t, ok)

	_, err = f.svc.GroupEdit(ctx, groupID, request("2025-01-01", entities.RepeatDaily, 1, "9999-12-31"))
	assert.ErrorIs(t, err, entities.ErrTooManyOccurrences)

	single, err := f.svc.Create(ctx, request("2025-02-01", entities.RepeatNone, 0, ""))
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, single[0].ID, request("2025-02-01", entities.RepeatWeekly, 1, "2025-12-31"))
	assert.ErrorIs(t, err, entities.ErrTooManyOccurrences)

	list, _ := f.svc.List(ctx)
	assert.Len(t, list, 4)
}

func TestEventService_UpdateBatchKeepsGroupMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.svc.Create(ctx, request("2025-01-01", entities.RepeatDaily, 1, "2025-01-03"))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, request("2025-02-01", entities.RepeatDaily, 1, "2025-02-02"))
	require.NoError(t, err)

	detached, err := f.svc.SingleEdit(ctx, first[1].ID, request("2025-01-02", entities.RepeatNone, 0, ""))
	require.NoError(t, err)

	rejoin := *detached
	rejoin.Repeat = entities.NewRecurrenceRule(entities.RepeatDaily, 1, caldate.MustParse("2025-01-03")).WithGroup("id2")
	_, err = f.svc.UpdateBatch(ctx, []entities.Event{rejoin})
	assert.ErrorIs(t, err, entities.ErrInvalidEvent)

	moved := first[0]
	moved.Repeat = moved.Repeat.WithGroup("id4")
	_, err = f.svc.UpdateBatch(ctx, []entities.Event{moved})
	assert.ErrorIs(t, err, entities.ErrInvalidEvent)

	kept := second[0]
	kept.Title = "renamed"
	_, err = f.svc.UpdateBatch(ctx, []entities.Event{kept})
	require.NoError(t, err)

	require.NoError(t, f.svc.GroupDelete(ctx, "id2"))
	got, err := f.svc.Get(ctx, detached.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRecurring())

	members, err := f.svc.Group(ctx, "id4")
	require.NoError(t, err)
	assert.Equal(t, "renamed", members[0].Title)
}

func TestEventService_Batches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := request("2025-03-01", entities.RepeatNone, 0, "").ToEvent()
	b := request("2025-03-02", entities.RepeatNone, 0, "").ToEvent()
	created, err := f.svc.CreateBatch(ctx, []entities.Event{a, b})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotEmpty(t, created[0].ID)
	assert.NotEqual(t, created[0].ID, created[1].ID)

	created[0].Title = "renamed"
	updated, err := f.svc.UpdateBatch(ctx, created[:1])
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated[0].Title)

	missing := created[1]
	missing.ID = "missing"
	_, err = f.svc.UpdateBatch(ctx, []entities.Event{created[1], missing})
	assert.ErrorIs(t, err, entities.ErrEventNotFound)

	assert.ErrorIs(t, f.svc.DeleteBatch(ctx, []string{created[0].ID, "missing"}), entities.ErrEventNotFound)
	require.NoError(t, f.svc.DeleteBatch(ctx, ids(created)))

	list, _ := f.svc.List(ctx)
	assert.Empty(t, list)
}

func TestEventService_Reload(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seed := request("2025-01-01", entities.RepeatDaily, 1, "2025-01-02").ToEvent()
	seed.Repeat = seed.Repeat.WithGroup("g")
	seed.ID = "s-2025-01-01"
	_, err := repo.CreateBatch(ctx, []entities.Event{seed})
	require.NoError(t, err)

	svc := NewEventService(repo, nil, nil, logger.NewNop())
	list, _ := svc.List(ctx)
	assert.Empty(t, list)

	require.NoError(t, svc.Reload(ctx))
	members, err := svc.Group(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"s-2025-01-01"}, ids(members))
}

func TestEventService_Import(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := request("2025-01-01", entities.RepeatNone, 0, "")
	bad.Title = ""
	report, err := f.svc.Import(ctx, []ports.ImportItem{
		{UID: "a@example", Request: request("2025-01-01", entities.RepeatDaily, 1, "2025-01-02")},
		{UID: "b@example", Request: bad},
	})
	require.NoError(t, err)
	assert.Len(t, report.Imported, 2)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "b@example", report.Skipped[0].UID)
}
