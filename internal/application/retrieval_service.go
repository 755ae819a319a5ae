package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventsnap/service-gallery/internal/adapter"
	eventDomain "github.com/eventsnap/service-gallery/internal/domain/event"
	photoDomain "github.com/eventsnap/service-gallery/internal/domain/photo"
	"github.com/eventsnap/service-gallery/pkg/domain"
)

// MatchedPhotoDTO is one retrieval hit.
type MatchedPhotoDTO struct {
	ID         uuid.UUID `json:"id"`
	PreviewURL string    `json:"preview_url"`
	PriceCents int64     `json:"price_cents"`
	Price      string    `json:"price"`
	Similarity float64   `json:"similarity"`
}

// RetrievalService finds an event's photos showing the person in a selfie.
type RetrievalService struct {
	events eventDomain.EventRepository
	photos photoDomain.PhotoRepository
	faces  adapter.FaceIndexer
	logger *zap.Logger
}

// NewRetrievalService creates a new RetrievalService.
func NewRetrievalService(
	events eventDomain.EventRepository,
	photos photoDomain.PhotoRepository,
	faces adapter.FaceIndexer,
	logger *zap.Logger,
) *RetrievalService {
	return &RetrievalService{events: events, photos: photos, faces: faces, logger: logger}
}

// Match searches the face collection with selfie and keeps the hits that
// belong to eventID, best match first. No face in the selfie and no match
// both yield an empty list.
func (s *RetrievalService) Match(ctx context.Context, eventID uuid.UUID, selfie []byte) ([]*MatchedPhotoDTO, error) {
	if len(selfie) == 0 {
		return nil, domain.NewValidationError("selfie is required")
	}
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return nil, err
	}

	if len(selfie) > adapter.MaxImageBytes {
		small, err := adapter.PrepareImage(selfie, adapter.MaxImageBytes)
		if err != nil {
			return nil, domain.NewValidationError("selfie is not a readable image")
		}
		selfie = small
	}

	matches, err := s.faces.Search(ctx, selfie)
	if err != nil {
		if errors.Is(err, adapter.ErrProviderUnavailable) {
			return nil, domain.NewUnavailableError("face search is unavailable, retry later")
		}
		return nil, fmt.Errorf("search faces: %w", err)
	}

	out := []*MatchedPhotoDTO{}
	if len(matches) == 0 {
		return out, nil
	}

	similarity := make(map[string]float64, len(matches))
	faceIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		if prev, seen := similarity[m.FaceID]; seen {
			if m.Similarity > prev {
				similarity[m.FaceID] = m.Similarity
			}
			continue
		}
		similarity[m.FaceID] = m.Similarity
		faceIDs = append(faceIDs, m.FaceID)
	}

	found, err := s.photos.FindByEventAndFaceIDs(ctx, eventID, faceIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range found {
		out = append(out, &MatchedPhotoDTO{
			ID:         p.ID(),
			PreviewURL: p.PreviewURL(),
			PriceCents: p.PriceCents(),
			Price:      formatCents(p.PriceCents()),
			Similarity: similarity[*p.FaceID()],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })

	s.logger.Debug("selfie matched",
		zap.String("event_id", eventID.String()),
		zap.Int("faces", len(faceIDs)),
		zap.Int("photos", len(out)),
	)
	return out, nil
}
