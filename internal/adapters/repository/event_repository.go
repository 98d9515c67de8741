package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/infrastructure/database"
	"github.com/eventcal/core/internal/infrastructure/logger"
)

const eventColumns = `id, title, date, start_time, end_time, description, location, category,
	repeat_type, repeat_interval, repeat_end_date, repeat_group_id, notification_time,
	created_at, updated_at`

const insertEventQuery = `
	INSERT INTO events (` + eventColumns + `)
	VALUES (:id, :title, :date, :start_time, :end_time, :description, :location, :category,
		:repeat_type, :repeat_interval, :repeat_end_date, :repeat_group_id, :notification_time,
		:created_at, :updated_at)
`

const updateEventQuery = `
	UPDATE events
	SET title = :title, date = :date, start_time = :start_time, end_time = :end_time,
		description = :description, location = :location, category = :category,
		repeat_type = :repeat_type, repeat_interval = :repeat_interval,
		repeat_end_date = :repeat_end_date, repeat_group_id = :repeat_group_id,
		notification_time = :notification_time, updated_at = :updated_at
	WHERE id = :id
`

// uniqueViolation is the postgres SQLSTATE for duplicate keys
const uniqueViolation = "23505"

// eventRow is the events table layout
type eventRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	Date             caldate.Date   `db:"date"`
	StartTime        string         `db:"start_time"`
	EndTime          string         `db:"end_time"`
	Description      string         `db:"description"`
	Location         string         `db:"location"`
	Category         string         `db:"category"`
	RepeatType       string         `db:"repeat_type"`
	RepeatInterval   int            `db:"repeat_interval"`
	RepeatEndDate    caldate.Date   `db:"repeat_end_date"`
	RepeatGroupID    sql.NullString `db:"repeat_group_id"`
	NotificationTime int            `db:"notification_time"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toRow(e entities.Event) eventRow {
	row := eventRow{
		ID:               e.ID,
		Title:            e.Title,
		Date:             e.Date,
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
		Description:      e.Description,
		Location:         e.Location,
		Category:         e.Category,
		RepeatType:       string(e.Repeat.Type()),
		RepeatInterval:   e.Repeat.Interval(),
		RepeatEndDate:    e.Repeat.EndDate().OrEmpty(),
		NotificationTime: e.NotificationTime,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if groupID, ok := e.Repeat.GroupID().Get(); ok {
		row.RepeatGroupID = sql.NullString{String: groupID, Valid: true}
	}
	return row
}

func (r eventRow) toEntity() entities.Event {
	rule := entities.NewRecurrenceRule(entities.RepeatType(r.RepeatType), r.RepeatInterval, r.RepeatEndDate)
	if r.RepeatGroupID.Valid {
		rule = rule.WithGroup(r.RepeatGroupID.String)
	}
	return entities.Event{
		ID:               r.ID,
		Title:            r.Title,
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Description:      r.Description,
		Location:         r.Location,
		Category:         r.Category,
		Repeat:           rule,
		NotificationTime: r.NotificationTime,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// EventRepository implements ports.EventRepository on PostgreSQL. Batch and
// replace operations run in a single transaction.
type EventRepository struct {
	db     *database.DB
	logger *logger.Logger
	now    func() time.Time
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.DB, log *logger.Logger) *EventRepository {
	return &EventRepository{db: db, logger: log.WithComponent("event_repository"), now: time.Now}
}

// observe logs the outcome of one repository operation.
func (r *EventRepository) observe(op string, started time.Time, err error) {
	r.logger.LogDatabaseQuery(op, float64(time.Since(started).Microseconds())/1000, err)
}

// stamp fills timestamps the caller left empty. Timestamps set by the
// service are stored as given so the index and the table agree.
func stamp(row *eventRow, now time.Time) {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}
}

// Create inserts an event, assigning a uuid when it has no id
func (r *EventRepository) Create(ctx context.Context, event *entities.Event) (string, error) {
	ids, err := r.CreateBatch(ctx, []entities.Event{*event})
	if err != nil {
		return "", err
	}
	event.ID = ids[0]
	return ids[0], nil
}

func (r *EventRepository) CreateBatch(ctx context.Context, events []entities.Event) (ids []string, err error) {
	started := time.Now()
	defer func() { r.observe("create_batch", started, err) }()

	err = r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		ids, err = r.insert(ctx, tx, events)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Get retrieves an event by ID
func (r *EventRepository) Get(ctx context.Context, id string) (*entities.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	var row eventRow
	if err := r.db.DB.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", entities.ErrEventNotFound, id)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event := row.toEntity()
	return &event, nil
}

func (r *EventRepository) Update(ctx context.Context, id string, event *entities.Event) error {
	e := *event
	e.ID = id
	return r.UpdateBatch(ctx, []entities.Event{e})
}

func (r *EventRepository) UpdateBatch(ctx context.Context, events []entities.Event) (err error) {
	started := time.Now()
	defer func() { r.observe("update_batch", started, err) }()

	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		now := r.now().UTC()
		for _, e := range events {
			row := toRow(e)
			stamp(&row, now)

			result, err := tx.NamedExecContext(ctx, updateEventQuery, row)
			if err != nil {
				return fmt.Errorf("failed to update event %s: %w", e.ID, err)
			}
			if err := expectRows(result, 1, e.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	return r.DeleteBatch(ctx, []string{id})
}

func (r *EventRepository) DeleteBatch(ctx context.Context, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}
	started := time.Now()
	defer func() { r.observe("delete_batch", started, err) }()

	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return deleteIDs(ctx, tx, ids)
	})
}

// List returns all events ordered by date, then id
func (r *EventRepository) List(ctx context.Context) (events []entities.Event, err error) {
	started := time.Now()
	defer func() { r.observe("list", started, err) }()

	query := `SELECT ` + eventColumns + ` FROM events ORDER BY date, id`

	var rows []eventRow
	if err := r.db.DB.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events = make([]entities.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEntity())
	}
	return events, nil
}

// ReplaceGroup deletes every row of groupID and inserts events; events may
// be empty, which deletes the group.
func (r *EventRepository) ReplaceGroup(ctx context.Context, groupID string, events []entities.Event) (err error) {
	started := time.Now()
	defer func() { r.observe("replace_group", started, err) }()

	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE repeat_group_id = $1`, groupID); err != nil {
			return fmt.Errorf("failed to delete group %s: %w", groupID, err)
		}
		_, err := r.insert(ctx, tx, events)
		return err
	})
}

func (r *EventRepository) Replace(ctx context.Context, ids []string, events []entities.Event) (err error) {
	started := time.Now()
	defer func() { r.observe("replace", started, err) }()

	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := deleteIDs(ctx, tx, ids); err != nil {
			return err
		}
		_, err := r.insert(ctx, tx, events)
		return err
	})
}

func (r *EventRepository) insert(ctx context.Context, tx *sqlx.Tx, events []entities.Event) ([]string, error) {
	now := r.now().UTC()
	ids := make([]string, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		row := toRow(e)
		stamp(&row, now)

		if _, err := tx.NamedExecContext(ctx, insertEventQuery, row); err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: %s", entities.ErrDuplicateEvent, e.ID)
			}
			return nil, fmt.Errorf("failed to insert event %s: %w", e.ID, err)
		}
		ids[i] = e.ID
	}
	return ids, nil
}

func deleteIDs(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return expectRows(result, len(uniqueIDs(ids)), ids...)
}

// expectRows fails with ErrEventNotFound when fewer rows than want changed,
// which rolls back the surrounding transaction.
func expectRows(result sql.Result, want int, ids ...string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if int(affected) < want {
		return fmt.Errorf("%w: %v", entities.ErrEventNotFound, ids)
	}
	return nil
}

func uniqueIDs(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
