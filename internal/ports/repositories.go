package ports

import (
	"context"

	"github.com/eventcal/core/internal/domain/entities"
)

// EventRepository defines the interface for event persistence. Batch and
// replace operations are all-or-nothing.
type EventRepository interface {
	// Create stores a single event and returns its id. An empty id is
	// assigned by the repository.
	Create(ctx context.Context, event *entities.Event) (string, error)
	CreateBatch(ctx context.Context, events []entities.Event) ([]string, error)
	Get(ctx context.Context, id string) (*entities.Event, error)
	Update(ctx context.Context, id string, event *entities.Event) error
	UpdateBatch(ctx context.Context, events []entities.Event) error
	Delete(ctx context.Context, id string) error
	DeleteBatch(ctx context.Context, ids []string) error
	List(ctx context.Context) ([]entities.Event, error)
	// ReplaceGroup removes every event carrying groupID and stores events in
	// their place. With no events it deletes the group.
	ReplaceGroup(ctx context.Context, groupID string, events []entities.Event) error
	// Replace removes the events with the given ids and stores events in
	// their place.
	Replace(ctx context.Context, ids []string, events []entities.Event) error
}

// ViewCache stores computed calendar views. Implementations may drop entries
// at any time.
type ViewCache interface {
	Get(ctx context.Context, key string) ([]entities.Event, bool)
	Set(ctx context.Context, key string, events []entities.Event) error
	Invalidate(ctx context.Context) error
}
