package repository

import (
	"context"
	"errors"
	"time"

	photoDomain "github.com/eventsnap/service-gallery/internal/domain/photo"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhotoModel is the GORM persistence model for the photos table.
type PhotoModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID     uuid.UUID `gorm:"type:uuid;not null;index"`
	OriginalURL string    `gorm:"type:text;not null"`
	OriginalKey string    `gorm:"type:text;not null"`
	PreviewURL  string    `gorm:"type:text;not null"`
	Filename    string    `gorm:"type:varchar(255)"`
	PriceCents  int64     `gorm:"not null;default:0"`
	FaceID      *string   `gorm:"type:varchar(64);index"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName specifies the table name for GORM.
func (PhotoModel) TableName() string { return "photos" }

// PhotoRepositoryImpl is the GORM-based implementation of PhotoRepository.
type PhotoRepositoryImpl struct {
	db *gorm.DB
}

// NewPhotoRepository creates a new GORM-based photo repository.
func NewPhotoRepository(db *gorm.DB) *PhotoRepositoryImpl {
	return &PhotoRepositoryImpl{db: db}
}

// Save persists a new photo.
func (r *PhotoRepositoryImpl) Save(ctx context.Context, p *photoDomain.Photo) error {
	return r.db.WithContext(ctx).Create(toPhotoModel(p)).Error
}

// FindByID retrieves a photo by its ID.
func (r *PhotoRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*photoDomain.Photo, error) {
	var model PhotoModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Photo", id.String())
		}
		return nil, err
	}
	return toPhotoDomain(&model), nil
}

// FindByIDs returns the photos that exist among ids.
func (r *PhotoRepositoryImpl) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*photoDomain.Photo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []PhotoModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	return toPhotoDomains(models), nil
}

// FindByEvent returns every photo of the event.
func (r *PhotoRepositoryImpl) FindByEvent(ctx context.Context, eventID uuid.UUID) ([]*photoDomain.Photo, error) {
	var models []PhotoModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toPhotoDomains(models), nil
}

// FindUnindexed returns photos of the event that have no face id.
func (r *PhotoRepositoryImpl) FindUnindexed(ctx context.Context, eventID uuid.UUID) ([]*photoDomain.Photo, error) {
	var models []PhotoModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ? AND face_id IS NULL", eventID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toPhotoDomains(models), nil
}

// FindByEventAndFaceIDs returns the event's photos whose face id is in faceIDs.
func (r *PhotoRepositoryImpl) FindByEventAndFaceIDs(ctx context.Context, eventID uuid.UUID, faceIDs []string) ([]*photoDomain.Photo, error) {
	if len(faceIDs) == 0 {
		return nil, nil
	}
	var models []PhotoModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ? AND face_id IS NOT NULL AND face_id IN ?", eventID, faceIDs).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toPhotoDomains(models), nil
}

// UpdateFaceID sets the face id of a photo.
func (r *PhotoRepositoryImpl) UpdateFaceID(ctx context.Context, id uuid.UUID, faceID string) error {
	result := r.db.WithContext(ctx).Model(&PhotoModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"face_id": faceID, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Photo", id.String())
	}
	return nil
}

// CountByEvent counts the photos of an event.
func (r *PhotoRepositoryImpl) CountByEvent(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PhotoModel{}).Where("event_id = ?", eventID).Count(&count).Error
	return count, err
}

// DeleteByEvent removes every photo row of an event.
func (r *PhotoRepositoryImpl) DeleteByEvent(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&PhotoModel{}).Error
}

func toPhotoDomains(models []PhotoModel) []*photoDomain.Photo {
	photos := make([]*photoDomain.Photo, len(models))
	for i := range models {
		photos[i] = toPhotoDomain(&models[i])
	}
	return photos
}

func toPhotoModel(p *photoDomain.Photo) *PhotoModel {
	return &PhotoModel{
		ID:          p.ID(),
		EventID:     p.EventID(),
		OriginalURL: p.OriginalURL(),
		OriginalKey: p.OriginalKey(),
		PreviewURL:  p.PreviewURL(),
		Filename:    p.Filename(),
		PriceCents:  p.PriceCents(),
		FaceID:      p.FaceID(),
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
	}
}

func toPhotoDomain(m *PhotoModel) *photoDomain.Photo {
	return photoDomain.Reconstruct(
		m.ID, m.EventID, m.OriginalURL, m.OriginalKey, m.PreviewURL,
		m.Filename, m.PriceCents, m.FaceID, m.CreatedAt, m.UpdatedAt,
	)
}
