package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	couponDomain "github.com/eventsnap/service-gallery/internal/domain/coupon"
	"github.com/eventsnap/service-gallery/internal/domain/pricing"
	"github.com/eventsnap/service-gallery/pkg/domain"
)

// CreateCouponRequest holds data to create a coupon.
type CreateCouponRequest struct {
	Code           string `json:"code" binding:"required"`
	DiscountType   string `json:"discount_type" binding:"required"`
	DiscountValue  int64  `json:"discount_value"`
	ExpiresAt      string `json:"expires_at"`
	MaxUses        *int   `json:"max_uses"`
	FreeUnits      int    `json:"free_units"`
	OnePerIdentity bool   `json:"one_per_identity"`
}

// ValidateCouponRequest asks what a coupon would do for an order size.
type ValidateCouponRequest struct {
	Code       string `json:"code" binding:"required"`
	PhotoCount int    `json:"photo_count"`
	Email      string `json:"email"`
}

// UpdateCouponStatusRequest switches a coupon on or off.
type UpdateCouponStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// CouponDTO is the API response representation of a coupon.
type CouponDTO struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"code"`
	DiscountType   string     `json:"discount_type"`
	DiscountValue  int64      `json:"discount_value"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	MaxUses        *int       `json:"max_uses,omitempty"`
	UsedCount      int        `json:"used_count"`
	FreeUnits      int        `json:"free_units"`
	Active         bool       `json:"active"`
	OnePerIdentity bool       `json:"one_per_identity"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CouponValidationDTO is the result of a coupon preview. Nothing is redeemed.
type CouponValidationDTO struct {
	Valid  bool      `json:"valid"`
	Code   string    `json:"code"`
	Reason string    `json:"reason,omitempty"`
	Quote  *QuoteDTO `json:"quote,omitempty"`
}

// CouponService handles coupon use cases.
type CouponService struct {
	repo   couponDomain.CouponRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewCouponService creates a new CouponService.
func NewCouponService(repo couponDomain.CouponRepository, logger *zap.Logger) *CouponService {
	return &CouponService{repo: repo, logger: logger, now: time.Now}
}

// CreateCoupon creates a new coupon (admin only).
func (s *CouponService) CreateCoupon(ctx context.Context, req CreateCouponRequest) (*CouponDTO, error) {
	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, domain.NewValidationError("invalid expires_at format (use RFC3339)")
		}
		t = t.UTC()
		expiresAt = &t
	}

	c, err := couponDomain.NewCoupon(couponDomain.Params{
		Code:           req.Code,
		DiscountType:   pricing.DiscountType(strings.ToUpper(req.DiscountType)),
		DiscountValue:  req.DiscountValue,
		ExpiresAt:      expiresAt,
		MaxUses:        req.MaxUses,
		FreeUnits:      req.FreeUnits,
		OnePerIdentity: req.OnePerIdentity,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("coupon created", zap.String("code", c.Code()))
	return toCouponDTO(c), nil
}

// ValidateCoupon reports whether code would apply for identity and, if a
// photo count is given, the resulting price.
func (s *CouponService) ValidateCoupon(ctx context.Context, identity string, req ValidateCouponRequest) (*CouponValidationDTO, error) {
	code := couponDomain.NormalizeCode(req.Code)
	if identity == "" {
		identity = normalizeEmail(req.Email)
	}

	c, err := resolveCoupon(ctx, s.repo, code, identity, s.now())
	if err != nil {
		if reason, ok := rejectionReason(err); ok {
			return &CouponValidationDTO{Valid: false, Code: code, Reason: reason}, nil
		}
		return nil, err
	}

	res := &CouponValidationDTO{Valid: true, Code: c.Code()}
	if req.PhotoCount > 0 {
		q := pricing.Calculate(req.PhotoCount, c.Terms())
		res.Quote = toQuoteDTO(q)
		res.Quote.CouponCode = c.Code()
		res.Quote.CouponApplied = true
	}
	return res, nil
}

// SetStatus activates or deactivates a coupon (admin only). Redemptions
// already made are kept.
func (s *CouponService) SetStatus(ctx context.Context, id uuid.UUID, req UpdateCouponStatusRequest) (*CouponDTO, error) {
	if req.Active == nil {
		return nil, domain.NewValidationError("active is required")
	}
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if *req.Active {
		c.Activate()
	} else {
		c.Deactivate()
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}

	s.logger.Info("coupon status changed", zap.String("code", c.Code()), zap.Bool("active", c.Active()))
	return toCouponDTO(c), nil
}

// ListCoupons returns every coupon (admin only).
func (s *CouponService) ListCoupons(ctx context.Context) ([]*CouponDTO, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	dtos := make([]*CouponDTO, len(list))
	for i, c := range list {
		dtos[i] = toCouponDTO(c)
	}
	return dtos, nil
}

// resolveCoupon loads code and checks it can be redeemed by identity at now.
// Rejections are returned as the coupon reason errors.
func resolveCoupon(ctx context.Context, repo couponDomain.CouponRepository, code, identity string, now time.Time) (*couponDomain.Coupon, error) {
	c, err := repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := c.Check(now); err != nil {
		return nil, err
	}
	if c.OnePerIdentity() {
		if identity == "" {
			return nil, domain.NewCodedValidationError("coupon_identity_required", "coupon requires a customer identity or email")
		}
		used, err := repo.HasIdentityUsed(ctx, c.ID(), identity)
		if err != nil {
			return nil, fmt.Errorf("failed to check coupon usage: %w", err)
		}
		if used {
			return nil, couponDomain.ErrAlreadyUsed
		}
	}
	if err := c.CheckRemaining(); err != nil {
		return nil, err
	}
	return c, nil
}

// rejectionReason returns the machine readable code of a coupon rejection.
// Infrastructure errors are not rejections.
func rejectionReason(err error) (string, bool) {
	var domErr *domain.DomainError
	if !errors.As(err, &domErr) {
		return "", false
	}
	if strings.HasPrefix(domErr.Code, "coupon_") {
		return domErr.Code, true
	}
	return "", false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toCouponDTO(c *couponDomain.Coupon) *CouponDTO {
	return &CouponDTO{
		ID:             c.ID(),
		Code:           c.Code(),
		DiscountType:   string(c.DiscountType()),
		DiscountValue:  c.DiscountValue(),
		ExpiresAt:      c.ExpiresAt(),
		MaxUses:        c.MaxUses(),
		UsedCount:      c.UsedCount(),
		FreeUnits:      c.FreeUnits(),
		Active:         c.Active(),
		OnePerIdentity: c.OnePerIdentity(),
		CreatedAt:      c.CreatedAt(),
	}
}
