package event

import (
	"strings"
	"time"

	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
)

// Status is the visibility state of an event.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// Event groups the photos of one occasion.
type Event struct {
	id          uuid.UUID
	name        string
	date        time.Time
	description string
	coverURL    string
	status      Status
	createdAt   time.Time
	updatedAt   time.Time
}

// NewEvent creates an active event.
func NewEvent(name string, date time.Time, description string) (*Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("event name is required")
	}
	if date.IsZero() {
		return nil, domain.NewValidationError("event date is required")
	}

	now := time.Now().UTC()
	return &Event{
		id:          uuid.New(),
		name:        name,
		date:        date.UTC(),
		description: strings.TrimSpace(description),
		status:      StatusActive,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct rebuilds an Event from persistence.
func Reconstruct(id uuid.UUID, name string, date time.Time, description, coverURL string, status Status, createdAt, updatedAt time.Time) *Event {
	return &Event{
		id: id, name: name, date: date, description: description,
		coverURL: coverURL, status: status,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// SetStatus moves the event between ACTIVE and ARCHIVED.
func (e *Event) SetStatus(s Status) error {
	if s != StatusActive && s != StatusArchived {
		return domain.NewValidationError("status must be ACTIVE or ARCHIVED")
	}
	e.status = s
	e.updatedAt = time.Now().UTC()
	return nil
}

// SetCover records the preview used as the event thumbnail.
func (e *Event) SetCover(url string) {
	e.coverURL = url
	e.updatedAt = time.Now().UTC()
}

func (e *Event) ID() uuid.UUID        { return e.id }
func (e *Event) Name() string         { return e.name }
func (e *Event) Date() time.Time      { return e.date }
func (e *Event) Description() string  { return e.description }
func (e *Event) CoverURL() string     { return e.coverURL }
func (e *Event) Status() Status       { return e.status }
func (e *Event) IsActive() bool       { return e.status == StatusActive }
func (e *Event) CreatedAt() time.Time { return e.createdAt }
func (e *Event) UpdatedAt() time.Time { return e.updatedAt }
