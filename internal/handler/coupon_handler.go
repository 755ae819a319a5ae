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

// CouponService is the coupon use case surface.
type CouponService interface {
	CreateCoupon(ctx context.Context, req application.CreateCouponRequest) (*application.CouponDTO, error)
	ValidateCoupon(ctx context.Context, identity string, req application.ValidateCouponRequest) (*application.CouponValidationDTO, error)
	ListCoupons(ctx context.Context) ([]*application.CouponDTO, error)
	SetStatus(ctx context.Context, id uuid.UUID, req application.UpdateCouponStatusRequest) (*application.CouponDTO, error)
}

// CouponHandler handles HTTP requests for coupon operations.
type CouponHandler struct {
	service CouponService
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(service CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

// RegisterRoutes registers all coupon routes.
func (h *CouponHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	coupons := r.Group("/coupons")
	{
		coupons.POST("/validate", middleware.OptionalAuthMiddleware(jwtManager), h.ValidateCoupon)
		coupons.POST("", authMW, middleware.RequireRole(auth.RoleAdmin), h.CreateCoupon)
		coupons.GET("", authMW, middleware.RequireRole(auth.RoleAdmin), h.ListCoupons)
		coupons.PATCH("/:id/status", authMW, middleware.RequireRole(auth.RoleAdmin), h.SetStatus)
	}
}

// CreateCoupon handles POST /api/v1/coupons.
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req application.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateCoupon(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ValidateCoupon handles POST /api/v1/coupons/validate.
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req application.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ValidateCoupon(c.Request.Context(), callerIdentity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ListCoupons handles GET /api/v1/coupons.
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	result, err := h.service.ListCoupons(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// SetStatus handles PATCH /api/v1/coupons/:id/status.
func (h *CouponHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid coupon ID")
	if !ok {
		return
	}
	var req application.UpdateCouponStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SetStatus(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// callerIdentity is the signed-in caller's identity, or "" for anonymous
// requests. Services fall back to the request email.
func callerIdentity(c *gin.Context) string {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return ""
	}
	return application.Identity(userID, middleware.GetEmail(c))
}
