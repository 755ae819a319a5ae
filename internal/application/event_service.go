package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eventsnap/service-gallery/internal/adapter"
	eventDomain "github.com/eventsnap/service-gallery/internal/domain/event"
	photoDomain "github.com/eventsnap/service-gallery/internal/domain/photo"
	"github.com/eventsnap/service-gallery/internal/domain/pricing"
	"github.com/eventsnap/service-gallery/internal/ingest"
	"github.com/eventsnap/service-gallery/pkg/domain"
)

// CreateEventRequest holds data to create an event.
type CreateEventRequest struct {
	Name        string `json:"name" binding:"required"`
	Date        string `json:"date" binding:"required"`
	Description string `json:"description"`
}

// UpdateEventStatusRequest holds the new event status.
type UpdateEventStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// EventDTO is the API response representation of an event.
type EventDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Status      string    `json:"status"`
	PhotoCount  int64     `json:"photo_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PhotoDTO is a gallery entry. The original URL is never exposed.
type PhotoDTO struct {
	ID         uuid.UUID `json:"id"`
	EventID    uuid.UUID `json:"event_id"`
	PreviewURL string    `json:"preview_url"`
	Filename   string    `json:"filename"`
	PriceCents int64     `json:"price_cents"`
	Price      string    `json:"price"`
	Indexed    bool      `json:"indexed"`
	CreatedAt  time.Time `json:"created_at"`
}

// IntakeDTO acknowledges an accepted batch.
type IntakeDTO struct {
	BatchID  uuid.UUID `json:"batch_id"`
	EventID  uuid.UUID `json:"event_id"`
	Accepted int       `json:"accepted"`
}

// EventService handles event lifecycle, gallery and ingestion use cases.
type EventService struct {
	events   eventDomain.EventRepository
	photos   photoDomain.PhotoRepository
	storage  adapter.StorageGateway
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

// NewEventService creates a new EventService.
func NewEventService(
	events eventDomain.EventRepository,
	photos photoDomain.PhotoRepository,
	storage adapter.StorageGateway,
	pipeline *ingest.Pipeline,
	logger *zap.Logger,
) *EventService {
	return &EventService{
		events:   events,
		photos:   photos,
		storage:  storage,
		pipeline: pipeline,
		logger:   logger,
	}
}

// CreateEvent creates a new active event.
func (s *EventService) CreateEvent(ctx context.Context, req CreateEventRequest) (*EventDTO, error) {
	date, err := ParseEventDate(req.Date)
	if err != nil {
		return nil, err
	}

	e, err := eventDomain.NewEvent(req.Name, date, req.Description)
	if err != nil {
		return nil, err
	}
	if err := s.events.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to save event: %w", err)
	}

	s.logger.Info("event created", zap.String("event_id", e.ID().String()), zap.String("name", e.Name()))
	return toEventDTO(e, 0), nil
}

// GetEvent returns an event with its current photo count. Clients poll the
// count to see ingestion progress.
func (s *EventService) GetEvent(ctx context.Context, id uuid.UUID) (*EventDTO, error) {
	e, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.photos.CountByEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count photos: %w", err)
	}
	return toEventDTO(e, count), nil
}

// ListEvents returns a page of events, newest first.
func (s *EventService) ListEvents(ctx context.Context, page, limit int) ([]*EventDTO, int64, error) {
	list, total, err := s.events.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]*EventDTO, len(list))
	for i, e := range list {
		count, err := s.photos.CountByEvent(ctx, e.ID())
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count photos: %w", err)
		}
		dtos[i] = toEventDTO(e, count)
	}
	return dtos, total, nil
}

// SetStatus toggles an event between ACTIVE and ARCHIVED.
func (s *EventService) SetStatus(ctx context.Context, id uuid.UUID, req UpdateEventStatusRequest) (*EventDTO, error) {
	e, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.SetStatus(eventDomain.Status(strings.ToUpper(req.Status))); err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	s.logger.Info("event status changed", zap.String("event_id", id.String()), zap.String("status", string(e.Status())))
	return s.GetEvent(ctx, id)
}

// DeleteEvent removes the event, its photos and every stored object under
// the event prefix. Storage cleanup failures are logged; the rows are gone
// either way.
func (s *EventService) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	if _, err := s.events.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.DeletePrefix(ctx, adapter.EventPrefix(id.String())); err != nil {
		s.logger.Warn("failed to delete event objects",
			zap.String("event_id", id.String()),
			zap.Error(err),
		)
	}
	s.logger.Info("event deleted", zap.String("event_id", id.String()))
	return nil
}

// ListPhotos returns the full gallery of an event, indexed or not.
func (s *EventService) ListPhotos(ctx context.Context, eventID uuid.UUID) ([]*PhotoDTO, error) {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return nil, err
	}
	list, err := s.photos.FindByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*PhotoDTO, len(list))
	for i, p := range list {
		dtos[i] = toPhotoDTO(p)
	}
	return dtos, nil
}

// Intake validates a batch and hands it to the pipeline. It returns as soon
// as the batch is queued.
func (s *EventService) Intake(ctx context.Context, eventID uuid.UUID, priceCents int64, items []*ingest.Item) (*IntakeDTO, error) {
	e, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewValidationError("event " + eventID.String() + " does not exist")
		}
		return nil, err
	}
	if !e.IsActive() {
		return nil, domain.NewValidationError("event is archived")
	}
	return s.submit(eventID, priceCents, items)
}

// IntakeNewEvent creates the event and queues the batch in one call. If the
// batch cannot be queued the new event is removed again.
func (s *EventService) IntakeNewEvent(ctx context.Context, req CreateEventRequest, priceCents int64, items []*ingest.Item) (*IntakeDTO, error) {
	if err := validateBatch(priceCents, items); err != nil {
		return nil, err
	}
	created, err := s.CreateEvent(ctx, req)
	if err != nil {
		return nil, err
	}
	ack, err := s.submit(created.ID, priceCents, items)
	if err != nil {
		if delErr := s.events.Delete(ctx, created.ID); delErr != nil {
			s.logger.Error("failed to remove event after rejected intake",
				zap.String("event_id", created.ID.String()),
				zap.Error(delErr),
			)
		}
		return nil, err
	}
	return ack, nil
}

func (s *EventService) submit(eventID uuid.UUID, priceCents int64, items []*ingest.Item) (*IntakeDTO, error) {
	if err := validateBatch(priceCents, items); err != nil {
		return nil, err
	}
	id, err := s.pipeline.Submit(&ingest.Batch{EventID: eventID, PriceCents: priceCents, Items: items})
	if err != nil {
		return nil, err
	}
	return &IntakeDTO{BatchID: id, EventID: eventID, Accepted: len(items)}, nil
}

// BatchStatus returns what the pipeline knows about a submitted batch.
func (s *EventService) BatchStatus(_ context.Context, batchID uuid.UUID) (*ingest.BatchStatus, error) {
	st, ok := s.pipeline.Tracker().Get(batchID)
	if !ok {
		return nil, domain.NewNotFoundError("Batch", batchID.String())
	}
	return &st, nil
}

// EventBatches lists the batches the pipeline still tracks for an event,
// newest first.
func (s *EventService) EventBatches(ctx context.Context, eventID uuid.UUID) ([]ingest.BatchStatus, error) {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return nil, err
	}
	list := s.pipeline.Tracker().ByEvent(eventID)
	if list == nil {
		list = []ingest.BatchStatus{}
	}
	return list, nil
}

// Reindex retries face indexing for the unindexed photos of an event.
func (s *EventService) Reindex(ctx context.Context, eventID uuid.UUID) (*ingest.ReindexResult, error) {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return nil, err
	}
	res, err := s.pipeline.Reindex(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func validateBatch(priceCents int64, items []*ingest.Item) error {
	if len(items) == 0 {
		return domain.NewValidationError("no images in batch")
	}
	if priceCents < 0 {
		return domain.NewValidationError("price cannot be negative")
	}
	for _, it := range items {
		if len(it.Data) == 0 {
			return domain.NewValidationError("file " + it.Filename + " is empty")
		}
	}
	return nil
}

// ParseEventDate accepts a calendar date or an RFC3339 timestamp.
func ParseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, domain.NewValidationError("invalid date format (use YYYY-MM-DD or RFC3339)")
}

// ParsePrice reads a unit price in currency units, e.g. "12.50", as cents.
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, domain.NewValidationError("price is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, domain.NewValidationError("invalid price: " + s)
	}
	if d.IsNegative() {
		return 0, domain.NewValidationError("price cannot be negative")
	}
	return pricing.ToCents(d), nil
}

func toEventDTO(e *eventDomain.Event, photoCount int64) *EventDTO {
	return &EventDTO{
		ID:          e.ID(),
		Name:        e.Name(),
		Date:        e.Date(),
		Description: e.Description(),
		CoverURL:    e.CoverURL(),
		Status:      string(e.Status()),
		PhotoCount:  photoCount,
		CreatedAt:   e.CreatedAt(),
		UpdatedAt:   e.UpdatedAt(),
	}
}

func toPhotoDTO(p *photoDomain.Photo) *PhotoDTO {
	return &PhotoDTO{
		ID:         p.ID(),
		EventID:    p.EventID(),
		PreviewURL: p.PreviewURL(),
		Filename:   p.Filename(),
		PriceCents: p.PriceCents(),
		Price:      formatCents(p.PriceCents()),
		Indexed:    p.IsIndexed(),
		CreatedAt:  p.CreatedAt(),
	}
}

func formatCents(cents int64) string {
	return pricing.FromCents(cents).StringFixed(2)
}
