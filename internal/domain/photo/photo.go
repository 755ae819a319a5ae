package photo

import (
	"strings"
	"time"

	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
)

// Photo is one ingested image: the private original plus its public preview.
type Photo struct {
	id          uuid.UUID
	eventID     uuid.UUID
	originalURL string
	originalKey string
	previewURL  string
	filename    string
	priceCents  int64
	faceID      *string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewPhoto creates a photo record. faceID may be nil when indexing failed
// or found no face; the photo then stays out of search results.
func NewPhoto(id, eventID uuid.UUID, originalURL, originalKey, previewURL, filename string, priceCents int64, faceID *string) (*Photo, error) {
	if eventID == uuid.Nil {
		return nil, domain.NewValidationError("event id is required")
	}
	if originalURL == "" || previewURL == "" {
		return nil, domain.NewValidationError("original and preview urls are required")
	}
	if priceCents < 0 {
		return nil, domain.NewValidationError("price cannot be negative")
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	if faceID != nil && strings.TrimSpace(*faceID) == "" {
		faceID = nil
	}

	now := time.Now().UTC()
	return &Photo{
		id:          id,
		eventID:     eventID,
		originalURL: originalURL,
		originalKey: originalKey,
		previewURL:  previewURL,
		filename:    filename,
		priceCents:  priceCents,
		faceID:      faceID,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct rebuilds a Photo from persistence.
func Reconstruct(id, eventID uuid.UUID, originalURL, originalKey, previewURL, filename string, priceCents int64, faceID *string, createdAt, updatedAt time.Time) *Photo {
	return &Photo{
		id: id, eventID: eventID,
		originalURL: originalURL, originalKey: originalKey, previewURL: previewURL,
		filename: filename, priceCents: priceCents, faceID: faceID,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// AssignFace sets the face identifier after a successful re-index.
func (p *Photo) AssignFace(faceID string) error {
	if strings.TrimSpace(faceID) == "" {
		return domain.NewValidationError("face id is required")
	}
	p.faceID = &faceID
	p.updatedAt = time.Now().UTC()
	return nil
}

func (p *Photo) ID() uuid.UUID        { return p.id }
func (p *Photo) EventID() uuid.UUID   { return p.eventID }
func (p *Photo) OriginalURL() string  { return p.originalURL }
func (p *Photo) OriginalKey() string  { return p.originalKey }
func (p *Photo) PreviewURL() string   { return p.previewURL }
func (p *Photo) Filename() string     { return p.filename }
func (p *Photo) PriceCents() int64    { return p.priceCents }
func (p *Photo) FaceID() *string      { return p.faceID }
func (p *Photo) IsIndexed() bool      { return p.faceID != nil }
func (p *Photo) CreatedAt() time.Time { return p.createdAt }
func (p *Photo) UpdatedAt() time.Time { return p.updatedAt }
