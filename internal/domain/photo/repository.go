package photo

import (
	"context"

	"github.com/google/uuid"
)

// PhotoRepository defines the persistence contract for photos.
type PhotoRepository interface {
	Save(ctx context.Context, p *Photo) error
	FindByID(ctx context.Context, id uuid.UUID) (*Photo, error)

	// FindByIDs returns the photos that exist; unknown ids are skipped.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Photo, error)

	// FindByEvent returns the full gallery, indexed or not.
	FindByEvent(ctx context.Context, eventID uuid.UUID) ([]*Photo, error)

	// FindUnindexed returns photos of the event with a null face id.
	FindUnindexed(ctx context.Context, eventID uuid.UUID) ([]*Photo, error)

	// FindByEventAndFaceIDs never returns photos with a null face id.
	FindByEventAndFaceIDs(ctx context.Context, eventID uuid.UUID, faceIDs []string) ([]*Photo, error)

	UpdateFaceID(ctx context.Context, id uuid.UUID, faceID string) error
	CountByEvent(ctx context.Context, eventID uuid.UUID) (int64, error)
	DeleteByEvent(ctx context.Context, eventID uuid.UUID) error
}
