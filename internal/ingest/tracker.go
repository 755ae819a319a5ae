package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker keeps the status of recent batches in memory. Completed batches
// older than the retention are dropped on the next write.
type Tracker struct {
	mu        sync.RWMutex
	batches   map[uuid.UUID]*BatchStatus
	retention time.Duration
	now       func() time.Time
}

// NewTracker creates a tracker keeping completed batches for retention.
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{
		batches:   make(map[uuid.UUID]*BatchStatus),
		retention: retention,
		now:       time.Now,
	}
}

func (t *Tracker) queued(b *Batch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune()
	t.batches[b.ID] = &BatchStatus{
		BatchID:     b.ID,
		EventID:     b.EventID,
		State:       BatchQueued,
		Total:       len(b.Items),
		SubmittedAt: t.now().UTC(),
	}
}

func (t *Tracker) processing(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.batches[id]; ok {
		s.State = BatchProcessing
	}
}

func (t *Tracker) completed(res BatchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	s, ok := t.batches[res.BatchID]
	if !ok {
		s = &BatchStatus{BatchID: res.BatchID, EventID: res.EventID, SubmittedAt: now}
		t.batches[res.BatchID] = s
	}
	s.State = BatchCompleted
	s.CompletedAt = &now
	s.Result = &res
	if s.Total == 0 {
		s.Total = res.Created + len(res.Errors)
	}
}

func (t *Tracker) forget(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.batches, id)
}

// Get returns a copy of the status of batch id.
func (t *Tracker) Get(id uuid.UUID) (BatchStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.batches[id]
	if !ok {
		return BatchStatus{}, false
	}
	return *s, true
}

// ByEvent lists the tracked batches of an event, newest first.
func (t *Tracker) ByEvent(eventID uuid.UUID) []BatchStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []BatchStatus
	for _, s := range t.batches {
		if s.EventID == eventID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// prune must be called with mu held.
func (t *Tracker) prune() {
	if t.retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	for id, s := range t.batches {
		if s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			delete(t.batches, id)
		}
	}
}
