package ports

import (
	"context"
	"time"

	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
)

// EventService interface for calendar event operations
type EventService interface {
	Create(ctx context.Context, req EventRequest) ([]entities.Event, error)
	Get(ctx context.Context, id string) (*entities.Event, error)
	List(ctx context.Context) ([]entities.Event, error)
	View(ctx context.Context, start, end caldate.Date) ([]entities.Event, error)
	Update(ctx context.Context, id string, req EventRequest) ([]entities.Event, error)
	SingleEdit(ctx context.Context, id string, req EventRequest) (*entities.Event, error)
	Delete(ctx context.Context, id string) error

	Group(ctx context.Context, groupID string) ([]entities.Event, error)
	GroupEdit(ctx context.Context, groupID string, req EventRequest) ([]entities.Event, error)
	GroupDelete(ctx context.Context, groupID string) error

	CreateBatch(ctx context.Context, events []entities.Event) ([]entities.Event, error)
	UpdateBatch(ctx context.Context, events []entities.Event) ([]entities.Event, error)
	DeleteBatch(ctx context.Context, ids []string) error

	Import(ctx context.Context, items []ImportItem) (*ImportReport, error)
	Reload(ctx context.Context) error
}

// Request/Response Types

// EventRequest carries the user-editable fields of an event.
type EventRequest struct {
	Title            string                  `json:"title" validate:"required,max=200"`
	Date             caldate.Date            `json:"date"`
	StartTime        string                  `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime          string                  `json:"endTime" validate:"omitempty,datetime=15:04"`
	Description      string                  `json:"description" validate:"max=2000"`
	Location         string                  `json:"location" validate:"max=200"`
	Category         string                  `json:"category" validate:"max=100"`
	Repeat           entities.RecurrenceRule `json:"repeat"`
	NotificationTime int                     `json:"notificationTime" validate:"min=0,max=10080"`
}

// ToEvent builds an event without id or timestamps.
func (r EventRequest) ToEvent() entities.Event {
	return entities.Event{
		Title:            r.Title,
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Description:      r.Description,
		Location:         r.Location,
		Category:         r.Category,
		Repeat:           r.Repeat,
		NotificationTime: r.NotificationTime,
	}
}

// EventRequestFrom is the inverse of ToEvent.
func EventRequestFrom(e entities.Event) EventRequest {
	return EventRequest{
		Title:            e.Title,
		Date:             e.Date,
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
		Description:      e.Description,
		Location:         e.Location,
		Category:         e.Category,
		Repeat:           e.Repeat,
		NotificationTime: e.NotificationTime,
	}
}

// ImportItem is one decoded calendar entry waiting to be created.
type ImportItem struct {
	UID     string
	Request EventRequest
}

// ImportReport summarizes an iCalendar import.
type ImportReport struct {
	Imported []entities.Event `json:"imported"`
	Skipped  []ImportSkip     `json:"skipped"`
	Duration time.Duration    `json:"-"`
}

type ImportSkip struct {
	UID    string `json:"uid"`
	Reason string `json:"reason"`
}
