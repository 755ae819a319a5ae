package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Item is one uploaded file. Data is released once the item is processed.
type Item struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Batch is a set of uploads for one event, all sold at the same price.
type Batch struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	PriceCents int64
	Items      []*Item
}

// Item processing stages, in order.
const (
	StageUploadOriginal = "upload_original"
	StageRenderPreview  = "render_preview"
	StageUploadPreview  = "upload_preview"
	StageIndexFace      = "index_face"
	StageSavePhoto      = "save_photo"
	StageCancelled      = "cancelled"
)

// ItemError names an item that was not stored and the stage it failed at.
type ItemError struct {
	Filename string `json:"filename"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// BatchResult summarizes a processed batch.
type BatchResult struct {
	BatchID uuid.UUID   `json:"batch_id"`
	EventID uuid.UUID   `json:"event_id"`
	Created int         `json:"created"`
	Errors  []ItemError `json:"errors"`
}

// ReindexError names a photo that is still without a face id.
type ReindexError struct {
	PhotoID uuid.UUID `json:"photo_id"`
	Error   string    `json:"error"`
}

// ReindexResult summarizes a re-indexing run.
type ReindexResult struct {
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	Errors       []ReindexError `json:"errors"`
}

// BatchState is the lifecycle of a submitted batch.
type BatchState string

const (
	BatchQueued     BatchState = "QUEUED"
	BatchProcessing BatchState = "PROCESSING"
	BatchCompleted  BatchState = "COMPLETED"
)

// BatchStatus is what the tracker knows about a batch.
type BatchStatus struct {
	BatchID     uuid.UUID    `json:"batch_id"`
	EventID     uuid.UUID    `json:"event_id"`
	State       BatchState   `json:"state"`
	Total       int          `json:"total"`
	SubmittedAt time.Time    `json:"submitted_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Result      *BatchResult `json:"result,omitempty"`
}
