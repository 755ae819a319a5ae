package event

import (
	"context"

	"github.com/google/uuid"
)

// EventRepository defines the persistence contract for events.
type EventRepository interface {
	Save(ctx context.Context, e *Event) error
	Update(ctx context.Context, e *Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*Event, error)
	List(ctx context.Context, page, limit int) ([]*Event, int64, error)
	// Delete removes the event and, by cascade, its photos.
	Delete(ctx context.Context, id uuid.UUID) error
}
