// Package ingest turns uploaded batches into stored, previewed and
// face-indexed photos on a fixed pool of workers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventsnap/service-gallery/internal/adapter"
	"github.com/eventsnap/service-gallery/internal/domain/photo"
	"github.com/eventsnap/service-gallery/internal/saga"
	"github.com/eventsnap/service-gallery/internal/watermark"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/eventsnap/service-gallery/pkg/events"
	"github.com/eventsnap/service-gallery/pkg/kafka"
)

// Config sizes the pipeline.
type Config struct {
	Workers   int
	QueueSize int
	Watermark watermark.Options
	// Attempts and RetryBase control storage retries.
	Attempts  int
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	return c
}

// Pipeline processes batches in the background. At most Workers items are
// in flight at any time, across all batches and re-index runs.
type Pipeline struct {
	cfg       Config
	storage   adapter.StorageGateway
	faces     adapter.FaceIndexer
	photos    photo.PhotoRepository
	publisher kafka.EventPublisher
	tracker   *Tracker
	logger    *zap.Logger

	jobs chan *Batch
	// slots bounds in-flight items across batches and re-index runs.
	slots   chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewPipeline creates a pipeline. Call Start before Submit.
func NewPipeline(
	cfg Config,
	storage adapter.StorageGateway,
	faces adapter.FaceIndexer,
	photos photo.PhotoRepository,
	publisher kafka.EventPublisher,
	tracker *Tracker,
	logger *zap.Logger,
) *Pipeline {
	cfg = cfg.withDefaults()
	if publisher == nil {
		publisher = kafka.NoopPublisher{}
	}
	return &Pipeline{
		cfg:       cfg,
		storage:   storage,
		faces:     faces,
		photos:    photos,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
		jobs:      make(chan *Batch, cfg.QueueSize),
		slots:     make(chan struct{}, cfg.Workers),
	}
}

// Tracker returns the batch status tracker.
func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// Start launches the dispatcher. Cancelling ctx stops new items from being
// picked up; items already running finish.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.dispatch(ctx)
	}()
	p.logger.Info("ingest pipeline started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_size", p.cfg.QueueSize),
	)
}

// Stop closes intake and waits for the dispatcher to return.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("ingest pipeline stopped")
}

// Submit enqueues b and returns its id without waiting for any item.
func (p *Pipeline) Submit(b *Batch) (uuid.UUID, error) {
	if b == nil || len(b.Items) == 0 {
		return uuid.Nil, domain.NewValidationError("no images in batch")
	}
	if b.EventID == uuid.Nil {
		return uuid.Nil, domain.NewValidationError("event id is required")
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return uuid.Nil, domain.NewUnavailableError("ingest pipeline is shutting down")
	}

	p.tracker.queued(b)
	select {
	case p.jobs <- b:
	default:
		p.tracker.forget(b.ID)
		return uuid.Nil, domain.NewUnavailableError("ingest queue is full, retry later")
	}

	p.logger.Info("batch queued",
		zap.String("batch_id", b.ID.String()),
		zap.String("event_id", b.EventID.String()),
		zap.Int("items", len(b.Items)),
	)
	return b.ID, nil
}

func (p *Pipeline) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drainCancelled()
			return
		case b, ok := <-p.jobs:
			if !ok {
				return
			}
			p.tracker.processing(b.ID)
			res := p.ProcessBatch(ctx, b)
			p.finish(res)
		}
	}
}

// drainCancelled records queued batches that will never run.
func (p *Pipeline) drainCancelled() {
	for {
		select {
		case b, ok := <-p.jobs:
			if !ok {
				return
			}
			p.finish(cancelledResult(b, 0))
		default:
			return
		}
	}
}

func cancelledResult(b *Batch, from int) BatchResult {
	res := BatchResult{BatchID: b.ID, EventID: b.EventID}
	for _, it := range b.Items[from:] {
		res.Errors = append(res.Errors, ItemError{Filename: it.Filename, Stage: StageCancelled, Error: "service shutting down"})
		it.Data = nil
	}
	return res
}

func (p *Pipeline) finish(res BatchResult) {
	p.tracker.completed(res)

	p.logger.Info("batch completed",
		zap.String("batch_id", res.BatchID.String()),
		zap.String("event_id", res.EventID.String()),
		zap.Int("created", res.Created),
		zap.Int("failed", len(res.Errors)),
	)

	evt := events.IngestBatchCompletedEvent{
		BatchID:    res.BatchID,
		EventID:    res.EventID,
		Created:    res.Created,
		Failed:     len(res.Errors),
		OccurredAt: time.Now().UTC(),
	}
	for _, e := range res.Errors {
		evt.Errors = append(evt.Errors, events.IngestItemError(e))
	}
	ce, err := kafka.NewCloudEvent("service-gallery", events.IngestBatchCompleted, evt)
	if err != nil {
		p.logger.Error("failed to create cloud event", zap.Error(err))
		return
	}
	// The batch is done regardless of the bus.
	if err := p.publisher.PublishEvent(context.Background(), events.TopicGalleryEvents, ce); err != nil {
		p.logger.Warn("failed to publish batch completion", zap.Error(err))
	}
}

// ProcessBatch runs every item of b on the worker pool and waits for them.
// Items complete in any order. Once ctx is cancelled no further item is
// started; started items run to the end on a context detached from ctx.
func (p *Pipeline) ProcessBatch(ctx context.Context, b *Batch) BatchResult {
	res := BatchResult{BatchID: b.ID, EventID: b.EventID}

	type outcome struct {
		created bool
		err     *ItemError
	}

	items := make(chan *Item)
	outcomes := make(chan outcome, len(b.Items))

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range items {
				p.slots <- struct{}{}
				itemErr := p.processItem(context.WithoutCancel(ctx), b, it)
				<-p.slots
				outcomes <- outcome{created: itemErr == nil, err: itemErr}
			}
		}()
	}

	sent := 0
feed:
	for _, it := range b.Items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case items <- it:
			sent++
		}
	}
	close(items)
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		if o.created {
			res.Created++
		} else {
			res.Errors = append(res.Errors, *o.err)
		}
	}
	if sent < len(b.Items) {
		res.Errors = append(res.Errors, cancelledResult(b, sent).Errors...)
	}
	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Filename < res.Errors[j].Filename })
	return res
}

// processItem stores one upload. The returned error is nil when a photo
// row was written, even if face indexing failed.
func (p *Pipeline) processItem(ctx context.Context, b *Batch, it *Item) *ItemError {
	defer func() { it.Data = nil }()

	photoID := uuid.New()
	eventID := b.EventID.String()

	var originalKey, originalURL, previewURL string
	var preview []byte
	var faceID *string

	contentType := it.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sg := saga.NewSaga("ingest_item", p.logger)

	sg.AddStep(saga.SagaStep{
		Name: StageUploadOriginal,
		Execute: func(ctx context.Context) error {
			originalKey = adapter.OriginalKey(eventID, photoID.String(), it.Filename)
			var err error
			originalURL, err = p.put(ctx, it.Data, originalKey, contentType)
			return err
		},
	})

	// A preview failure leaves the original in storage. The next upload of
	// the same file gets a new photo id and key, so the orphan is harmless
	// and removed with the event prefix.
	sg.AddStep(saga.SagaStep{
		Name: StageRenderPreview,
		Execute: func(ctx context.Context) error {
			var err error
			preview, err = watermark.Render(it.Data, p.cfg.Watermark)
			return err
		},
	})

	sg.AddStep(saga.SagaStep{
		Name: StageUploadPreview,
		Execute: func(ctx context.Context) error {
			key := adapter.PreviewKey(eventID, photoID.String(), it.Filename)
			var err error
			previewURL, err = p.put(ctx, preview, key, "image/jpeg")
			preview = nil
			return err
		},
	})

	sg.AddStep(saga.SagaStep{
		Name: StageIndexFace,
		Execute: func(ctx context.Context) error {
			id, found, err := p.faces.Index(ctx, it.Data, photoID.String())
			switch {
			case err != nil:
				p.logger.Warn("face indexing failed, photo stays unindexed",
					zap.String("photo_id", photoID.String()),
					zap.String("filename", it.Filename),
					zap.Error(err),
				)
			case !found:
				p.logger.Debug("no face detected", zap.String("photo_id", photoID.String()))
			default:
				faceID = &id
			}
			return nil
		},
	})

	sg.AddStep(saga.SagaStep{
		Name: StageSavePhoto,
		Execute: func(ctx context.Context) error {
			ph, err := photo.NewPhoto(photoID, b.EventID, originalURL, originalKey, previewURL, it.Filename, b.PriceCents, faceID)
			if err != nil {
				return err
			}
			return p.photos.Save(ctx, ph)
		},
	})

	if err := sg.Execute(ctx); err != nil {
		stage := "unknown"
		cause := err
		var stepErr *saga.StepError
		if errors.As(err, &stepErr) {
			stage = stepErr.Step
			cause = stepErr.Err
		}
		return &ItemError{Filename: it.Filename, Stage: stage, Error: cause.Error()}
	}
	return nil
}

func (p *Pipeline) put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	var url string
	err := adapter.RetryWithBackoff(ctx, p.cfg.Attempts, p.cfg.RetryBase, func(ctx context.Context) error {
		var err error
		url, err = p.storage.Put(ctx, data, key, contentType)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return url, nil
}
