package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eventsnap/service-gallery/internal/adapter"
	"github.com/eventsnap/service-gallery/internal/domain/photo"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/eventsnap/service-gallery/pkg/kafka"
)

type memPhotos struct {
	mu     sync.Mutex
	photos map[uuid.UUID]*photo.Photo
}

func newMemPhotos() *memPhotos {
	return &memPhotos{photos: make(map[uuid.UUID]*photo.Photo)}
}

func (m *memPhotos) Save(_ context.Context, p *photo.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos[p.ID()] = p
	return nil
}

func (m *memPhotos) FindByID(_ context.Context, id uuid.UUID) (*photo.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.photos[id]; ok {
		return p, nil
	}
	return nil, domain.NewNotFoundError("Photo", id.String())
}

func (m *memPhotos) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*photo.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*photo.Photo
	for _, id := range ids {
		if p, ok := m.photos[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPhotos) filter(keep func(*photo.Photo) bool) []*photo.Photo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*photo.Photo
	for _, p := range m.photos {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (m *memPhotos) FindByEvent(_ context.Context, eventID uuid.UUID) ([]*photo.Photo, error) {
	return m.filter(func(p *photo.Photo) bool { return p.EventID() == eventID }), nil
}

func (m *memPhotos) FindUnindexed(_ context.Context, eventID uuid.UUID) ([]*photo.Photo, error) {
	return m.filter(func(p *photo.Photo) bool { return p.EventID() == eventID && p.FaceID() == nil }), nil
}

func (m *memPhotos) FindByEventAndFaceIDs(_ context.Context, eventID uuid.UUID, faceIDs []string) ([]*photo.Photo, error) {
	set := make(map[string]bool, len(faceIDs))
	for _, f := range faceIDs {
		set[f] = true
	}
	return m.filter(func(p *photo.Photo) bool {
		return p.EventID() == eventID && p.FaceID() != nil && set[*p.FaceID()]
	}), nil
}

func (m *memPhotos) UpdateFaceID(_ context.Context, id uuid.UUID, faceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok {
		return domain.NewNotFoundError("Photo", id.String())
	}
	return p.AssignFace(faceID)
}

func (m *memPhotos) CountByEvent(ctx context.Context, eventID uuid.UUID) (int64, error) {
	ps, _ := m.FindByEvent(ctx, eventID)
	return int64(len(ps)), nil
}

func (m *memPhotos) DeleteByEvent(_ context.Context, eventID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.photos {
		if p.EventID() == eventID {
			delete(m.photos, id)
		}
	}
	return nil
}

// scriptedFaces indexes every image as face "face-<externalID>" unless
// indexFn says otherwise.
type scriptedFaces struct {
	mu      sync.Mutex
	indexFn func(externalID string) (string, bool, error)
	indexed map[string]bool
}

func newScriptedFaces() *scriptedFaces {
	return &scriptedFaces{indexed: make(map[string]bool)}
}

func (f *scriptedFaces) Index(_ context.Context, _ []byte, externalID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexFn != nil {
		id, found, err := f.indexFn(externalID)
		if err == nil && found {
			f.indexed[id] = true
		}
		return id, found, err
	}
	id := "face-" + externalID
	f.indexed[id] = true
	return id, true, nil
}

func (f *scriptedFaces) Search(context.Context, []byte) ([]adapter.FaceMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []adapter.FaceMatch
	for id := range f.indexed {
		out = append(out, adapter.FaceMatch{FaceID: id, Similarity: 99})
	}
	return out, nil
}

// gaugedFaces records the peak number of concurrent Index calls.
type gaugedFaces struct {
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (g *gaugedFaces) Index(_ context.Context, _ []byte, externalID string) (string, bool, error) {
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.calls.Add(1)
	time.Sleep(g.delay)
	return "face-" + externalID, true, nil
}

func (g *gaugedFaces) Search(context.Context, []byte) ([]adapter.FaceMatch, error) {
	return nil, nil
}

type flakyStorage struct {
	*adapter.MemoryStorage
	mu       sync.Mutex
	failures int
}

func (s *flakyStorage) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return "", errors.New("503 from storage")
	}
	s.mu.Unlock()
	return s.MemoryStorage.Put(ctx, data, key, contentType)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []kafka.CloudEvent
}

func (c *capturePublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ce)
	return nil
}

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
