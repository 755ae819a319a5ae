package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventsnap/service-gallery/internal/application"
	"github.com/eventsnap/service-gallery/internal/ingest"
	"github.com/eventsnap/service-gallery/pkg/auth"
	"github.com/eventsnap/service-gallery/pkg/middleware"
	"github.com/eventsnap/service-gallery/pkg/response"
)

// EventService is the event, gallery and ingestion use case surface.
type EventService interface {
	CreateEvent(ctx context.Context, req application.CreateEventRequest) (*application.EventDTO, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*application.EventDTO, error)
	ListEvents(ctx context.Context, page, limit int) ([]*application.EventDTO, int64, error)
	SetStatus(ctx context.Context, id uuid.UUID, req application.UpdateEventStatusRequest) (*application.EventDTO, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error
	ListPhotos(ctx context.Context, eventID uuid.UUID) ([]*application.PhotoDTO, error)
	Intake(ctx context.Context, eventID uuid.UUID, priceCents int64, items []*ingest.Item) (*application.IntakeDTO, error)
	IntakeNewEvent(ctx context.Context, req application.CreateEventRequest, priceCents int64, items []*ingest.Item) (*application.IntakeDTO, error)
	BatchStatus(ctx context.Context, batchID uuid.UUID) (*ingest.BatchStatus, error)
	EventBatches(ctx context.Context, eventID uuid.UUID) ([]ingest.BatchStatus, error)
	Reindex(ctx context.Context, eventID uuid.UUID) (*ingest.ReindexResult, error)
}

// RetrievalService matches selfies against an event.
type RetrievalService interface {
	Match(ctx context.Context, eventID uuid.UUID, selfie []byte) ([]*application.MatchedPhotoDTO, error)
}

// EventHandler handles HTTP requests for events, photo intake and retrieval.
type EventHandler struct {
	events         EventService
	retrieval      RetrievalService
	maxUploadBytes int64
}

// NewEventHandler creates a new EventHandler. maxUploadBytes bounds a whole
// multipart request.
func NewEventHandler(events EventService, retrieval RetrievalService, maxUploadBytes int64) *EventHandler {
	return &EventHandler{events: events, retrieval: retrieval, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers all event routes.
func (h *EventHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	admin := []gin.HandlerFunc{middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleAdmin)}
	optional := middleware.OptionalAuthMiddleware(jwtManager)

	events := r.Group("/events")
	{
		events.GET("", h.ListEvents)
		events.GET("/:id", h.GetEvent)
		events.GET("/:id/photos", h.ListPhotos)
		events.POST("/:id/match", optional, h.Match)

		events.POST("", append(admin, h.CreateEvent)...)
		events.POST("/photos", append(admin, h.IntakeNewEvent)...)
		events.PATCH("/:id/status", append(admin, h.SetStatus)...)
		events.DELETE("/:id", append(admin, h.DeleteEvent)...)
		events.POST("/:id/photos", append(admin, h.Intake)...)
		events.POST("/:id/reindex", append(admin, h.Reindex)...)
		events.GET("/:id/batches", append(admin, h.ListBatches)...)
	}

	batches := r.Group("/ingest/batches")
	batches.Use(admin...)
	{
		batches.GET("/:id", h.GetBatch)
	}
}

// CreateEvent handles POST /api/v1/events.
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req application.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.events.CreateEvent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto)
}

// ListEvents handles GET /api/v1/events.
func (h *EventHandler) ListEvents(c *gin.Context) {
	page, limit := pagination(c)

	list, total, err := h.events.ListEvents(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, list, total, page, limit)
}

// GetEvent handles GET /api/v1/events/:id.
func (h *EventHandler) GetEvent(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}

	dto, err := h.events.GetEvent(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// SetStatus handles PATCH /api/v1/events/:id/status.
func (h *EventHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}
	var req application.UpdateEventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.events.SetStatus(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// DeleteEvent handles DELETE /api/v1/events/:id.
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}

	if err := h.events.DeleteEvent(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPhotos handles GET /api/v1/events/:id/photos.
func (h *EventHandler) ListPhotos(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}

	list, err := h.events.ListPhotos(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Intake handles POST /api/v1/events/:id/photos. It answers 202 once the
// batch is queued.
func (h *EventHandler) Intake(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}
	priceCents, items, ok := h.readBatch(c)
	if !ok {
		return
	}

	dto, err := h.events.Intake(c.Request.Context(), id, priceCents, items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto)
}

// IntakeNewEvent handles POST /api/v1/events/photos, creating the event from
// the name and date form fields.
func (h *EventHandler) IntakeNewEvent(c *gin.Context) {
	priceCents, items, ok := h.readBatch(c)
	if !ok {
		return
	}
	req := application.CreateEventRequest{
		Name:        c.PostForm("name"),
		Date:        c.PostForm("date"),
		Description: c.PostForm("description"),
	}

	dto, err := h.events.IntakeNewEvent(c.Request.Context(), req, priceCents, items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto)
}

// GetBatch handles GET /api/v1/ingest/batches/:id.
func (h *EventHandler) GetBatch(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid batch ID")
	if !ok {
		return
	}

	st, err := h.events.BatchStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// ListBatches handles GET /api/v1/events/:id/batches.
func (h *EventHandler) ListBatches(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}

	list, err := h.events.EventBatches(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Reindex handles POST /api/v1/events/:id/reindex.
func (h *EventHandler) Reindex(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}

	res, err := h.events.Reindex(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Match handles POST /api/v1/events/:id/match with a multipart selfie.
func (h *EventHandler) Match(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid event ID")
	if !ok {
		return
	}
	h.limitBody(c)

	fh, err := c.FormFile("selfie")
	if err != nil {
		uploadError(c, err, "selfie file is required")
		return
	}
	selfie, err := readFile(fh)
	if err != nil {
		uploadError(c, err, "could not read selfie")
		return
	}

	list, err := h.retrieval.Match(c.Request.Context(), id, selfie)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// readBatch parses the intake form: photos[] files and a price field.
func (h *EventHandler) readBatch(c *gin.Context) (int64, []*ingest.Item, bool) {
	h.limitBody(c)

	form, err := c.MultipartForm()
	if err != nil {
		uploadError(c, err, "expected a multipart form")
		return 0, nil, false
	}

	priceCents, err := application.ParsePrice(c.PostForm("price"))
	if err != nil {
		response.Error(c, err)
		return 0, nil, false
	}

	files := form.File["photos[]"]
	if len(files) == 0 {
		files = form.File["photos"]
	}
	if len(files) == 0 {
		response.BadRequest(c, "no images in batch")
		return 0, nil, false
	}

	items := make([]*ingest.Item, 0, len(files))
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			uploadError(c, err, fmt.Sprintf("could not read %s", fh.Filename))
			return 0, nil, false
		}
		items = append(items, &ingest.Item{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return priceCents, items, true
}

func (h *EventHandler) limitBody(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uploadError(c *gin.Context, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.PayloadTooLarge(c, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	response.BadRequest(c, message)
}

func pathID(c *gin.Context, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, message)
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
