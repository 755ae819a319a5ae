package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventsnap/service-gallery/internal/application"
	"github.com/eventsnap/service-gallery/pkg/auth"
	"github.com/eventsnap/service-gallery/pkg/middleware"
	"github.com/eventsnap/service-gallery/pkg/response"
)

// OrderService is the pricing and checkout use case surface.
type OrderService interface {
	Quote(ctx context.Context, identity string, req application.QuoteRequest) (*application.QuoteDTO, error)
	Checkout(ctx context.Context, identity string, req application.CheckoutRequest) (*application.CheckoutDTO, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*application.OrderDTO, error)
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes registers all order routes. Ordering works with or
// without a customer token.
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	orders := r.Group("/orders")
	orders.Use(middleware.OptionalAuthMiddleware(jwtManager))
	{
		orders.POST("/quote", h.Quote)
		orders.POST("", h.Checkout)
		orders.GET("/:id", h.GetOrder)
	}
}

// Quote handles POST /api/v1/orders/quote.
func (h *OrderHandler) Quote(c *gin.Context) {
	var req application.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.Quote(c.Request.Context(), callerIdentity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Checkout handles POST /api/v1/orders.
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req application.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Email == "" {
		req.Email = middleware.GetEmail(c)
	}

	result, err := h.service.Checkout(c.Request.Context(), callerIdentity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetOrder handles GET /api/v1/orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid order ID")
	if !ok {
		return
	}

	result, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
