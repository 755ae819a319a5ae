package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/eventsnap/service-gallery/internal/application"
	"github.com/eventsnap/service-gallery/pkg/auth"
	"github.com/eventsnap/service-gallery/pkg/middleware"
	"github.com/eventsnap/service-gallery/pkg/response"
)

// AdminOrderService is the back-office view of orders.
type AdminOrderService interface {
	ListAllOrders(ctx context.Context, status string, page, limit int) ([]*application.OrderDTO, int64, error)
	GetSalesStats(ctx context.Context) (*application.SalesStatsDTO, error)
}

// AdminHandler handles admin HTTP requests for sales management.
type AdminHandler struct {
	orders AdminOrderService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(orders AdminOrderService) *AdminHandler {
	return &AdminHandler{orders: orders}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/orders", h.ListOrders)
		admin.GET("/stats/orders", h.OrderStats)
	}
}

// ListOrders handles GET /api/v1/admin/orders?status=&page=&limit=.
func (h *AdminHandler) ListOrders(c *gin.Context) {
	page, limit := pagination(c)

	orders, total, err := h.orders.ListAllOrders(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, orders, total, page, limit)
}

// OrderStats handles GET /api/v1/admin/stats/orders.
func (h *AdminHandler) OrderStats(c *gin.Context) {
	stats, err := h.orders.GetSalesStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}
