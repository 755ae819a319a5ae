package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventsnap/service-gallery/internal/adapter"
	"github.com/eventsnap/service-gallery/internal/domain/photo"
)

const errNoFace = "no face detected"

// Reindex retries face indexing for every photo of the event that has no
// face id, with the same concurrency bound as ingestion. A photo in which no
// face is found counts as failed.
func (p *Pipeline) Reindex(ctx context.Context, eventID uuid.UUID) (ReindexResult, error) {
	pending, err := p.photos.FindUnindexed(ctx, eventID)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("list unindexed photos: %w", err)
	}

	res := ReindexResult{Errors: []ReindexError{}}
	if len(pending) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	fail := func(ph *photo.Photo, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.FailedCount++
		res.Errors = append(res.Errors, ReindexError{PhotoID: ph.ID(), Error: err.Error()})
	}

	for _, ph := range pending {
		if ctx.Err() != nil {
			fail(ph, ctx.Err())
			continue
		}

		// Slots are shared with ingestion workers.
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			fail(ph, ctx.Err())
			continue
		}
		wg.Add(1)
		go func(ph *photo.Photo) {
			defer wg.Done()
			defer func() { <-p.slots }()

			if err := p.reindexOne(ctx, ph); err != nil {
				fail(ph, err)
				return
			}
			mu.Lock()
			res.SuccessCount++
			mu.Unlock()
		}(ph)
	}
	wg.Wait()

	sort.Slice(res.Errors, func(i, j int) bool {
		return res.Errors[i].PhotoID.String() < res.Errors[j].PhotoID.String()
	})

	p.logger.Info("reindex finished",
		zap.String("event_id", eventID.String()),
		zap.Int("success", res.SuccessCount),
		zap.Int("failed", res.FailedCount),
	)
	return res, nil
}

func (p *Pipeline) reindexOne(ctx context.Context, ph *photo.Photo) error {
	var data []byte
	err := adapter.RetryWithBackoff(ctx, p.cfg.Attempts, p.cfg.RetryBase, func(ctx context.Context) error {
		var err error
		data, err = p.storage.Get(ctx, ph.OriginalKey())
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch original: %w", err)
	}

	faceID, found, err := p.faces.Index(ctx, data, ph.ID().String())
	if err != nil {
		return err
	}
	if !found {
		return errors.New(errNoFace)
	}

	if err := ph.AssignFace(faceID); err != nil {
		return err
	}
	return p.photos.UpdateFaceID(ctx, ph.ID(), faceID)
}
