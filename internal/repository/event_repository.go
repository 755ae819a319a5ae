package repository

import (
	"context"
	"errors"
	"time"

	eventDomain "github.com/eventsnap/service-gallery/internal/domain/event"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventModel is the GORM persistence model for the events table.
type EventModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(255);not null"`
	Date        time.Time `gorm:"not null;index"`
	Description string    `gorm:"type:text"`
	CoverURL    string    `gorm:"type:text"`
	Status      string    `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName specifies the table name for GORM.
func (EventModel) TableName() string { return "events" }

// EventRepositoryImpl is the GORM-based implementation of EventRepository.
type EventRepositoryImpl struct {
	db *gorm.DB
}

// NewEventRepository creates a new GORM-based event repository.
func NewEventRepository(db *gorm.DB) *EventRepositoryImpl {
	return &EventRepositoryImpl{db: db}
}

// Save persists a new event.
func (r *EventRepositoryImpl) Save(ctx context.Context, e *eventDomain.Event) error {
	return r.db.WithContext(ctx).Create(toEventModel(e)).Error
}

// Update persists changes to an existing event.
func (r *EventRepositoryImpl) Update(ctx context.Context, e *eventDomain.Event) error {
	result := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ?", e.ID()).
		Updates(map[string]interface{}{
			"name":        e.Name(),
			"date":        e.Date(),
			"description": e.Description(),
			"cover_url":   e.CoverURL(),
			"status":      string(e.Status()),
			"updated_at":  e.UpdatedAt(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Event", e.ID().String())
	}
	return nil
}

// FindByID retrieves an event by its ID.
func (r *EventRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*eventDomain.Event, error) {
	var model EventModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Event", id.String())
		}
		return nil, err
	}
	return toEventDomain(&model), nil
}

// List returns events newest first.
func (r *EventRepositoryImpl) List(ctx context.Context, page, limit int) ([]*eventDomain.Event, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&EventModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []EventModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).Order("date DESC, created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	events := make([]*eventDomain.Event, len(models))
	for i := range models {
		events[i] = toEventDomain(&models[i])
	}
	return events, total, nil
}

// Delete removes the event and its photos in one transaction. The foreign
// key cascades as well; the explicit delete covers catalogs without it.
func (r *EventRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&PhotoModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&EventModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NewNotFoundError("Event", id.String())
		}
		return nil
	})
}

func toEventModel(e *eventDomain.Event) *EventModel {
	return &EventModel{
		ID:          e.ID(),
		Name:        e.Name(),
		Date:        e.Date(),
		Description: e.Description(),
		CoverURL:    e.CoverURL(),
		Status:      string(e.Status()),
		CreatedAt:   e.CreatedAt(),
		UpdatedAt:   e.UpdatedAt(),
	}
}

func toEventDomain(m *EventModel) *eventDomain.Event {
	return eventDomain.Reconstruct(
		m.ID, m.Name, m.Date, m.Description, m.CoverURL,
		eventDomain.Status(m.Status), m.CreatedAt, m.UpdatedAt,
	)
}
