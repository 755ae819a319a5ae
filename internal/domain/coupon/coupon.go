package coupon

import (
	"strings"
	"time"

	"github.com/eventsnap/service-gallery/internal/domain/pricing"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
)

// Rejection reasons. Each is a DomainError so the HTTP layer maps them
// without knowing about coupons.
var (
	ErrNotFound    = domain.NewCodedValidationError("coupon_not_found", "coupon not found")
	ErrInactive    = domain.NewCodedValidationError("coupon_inactive", "coupon is not active")
	ErrExpired     = domain.NewCodedValidationError("coupon_expired", "coupon has expired")
	ErrExhausted   = domain.NewCodedConflictError("coupon_exhausted", "coupon has reached its usage limit")
	ErrAlreadyUsed = domain.NewCodedConflictError("coupon_already_used", "coupon already used")
)

// Coupon is the aggregate root for discount codes.
type Coupon struct {
	id             uuid.UUID
	code           string
	discountType   pricing.DiscountType
	discountValue  int64 // percentage (1-100) or fixed amount in cents
	expiresAt      *time.Time
	maxUses        *int
	usedCount      int
	freeUnits      int
	active         bool
	onePerIdentity bool
	createdAt      time.Time
	updatedAt      time.Time
}

// Params groups the inputs of NewCoupon.
type Params struct {
	Code           string
	DiscountType   pricing.DiscountType
	DiscountValue  int64
	ExpiresAt      *time.Time
	MaxUses        *int
	FreeUnits      int
	OnePerIdentity bool
}

// NewCoupon validates params and creates an active coupon.
func NewCoupon(p Params) (*Coupon, error) {
	code := NormalizeCode(p.Code)
	if code == "" {
		return nil, domain.NewValidationError("coupon code is required")
	}
	if !p.DiscountType.Valid() {
		return nil, domain.NewValidationError("invalid discount type: " + string(p.DiscountType))
	}
	if p.DiscountValue < 0 {
		return nil, domain.NewValidationError("discount value cannot be negative")
	}
	if p.DiscountType == pricing.DiscountPercentage && p.DiscountValue > 100 {
		return nil, domain.NewValidationError("percentage discount cannot exceed 100")
	}
	if p.FreeUnits < 0 {
		return nil, domain.NewValidationError("free units cannot be negative")
	}
	if p.DiscountValue == 0 && p.FreeUnits == 0 {
		return nil, domain.NewValidationError("coupon grants no discount")
	}
	if p.MaxUses != nil && *p.MaxUses <= 0 {
		return nil, domain.NewValidationError("max uses must be positive")
	}

	now := time.Now().UTC()
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return nil, domain.NewValidationError("expiry must be in the future")
	}

	return &Coupon{
		id:             uuid.New(),
		code:           code,
		discountType:   p.DiscountType,
		discountValue:  p.DiscountValue,
		expiresAt:      p.ExpiresAt,
		maxUses:        p.MaxUses,
		freeUnits:      p.FreeUnits,
		active:         true,
		onePerIdentity: p.OnePerIdentity,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstruct rebuilds a Coupon from persistence.
func Reconstruct(id uuid.UUID, code string, discountType pricing.DiscountType, discountValue int64, expiresAt *time.Time, maxUses *int, usedCount, freeUnits int, active, onePerIdentity bool, createdAt, updatedAt time.Time) *Coupon {
	return &Coupon{
		id: id, code: code, discountType: discountType, discountValue: discountValue,
		expiresAt: expiresAt, maxUses: maxUses, usedCount: usedCount, freeUnits: freeUnits,
		active: active, onePerIdentity: onePerIdentity,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check reports why the coupon cannot be redeemed at now, or nil.
// Expiry is exclusive: a coupon expiring at now is already expired.
// Per-identity reuse and the use ceiling are checked by CheckRemaining,
// after the caller has looked up the identity's usage.
func (c *Coupon) Check(now time.Time) error {
	if !c.active {
		return ErrInactive
	}
	if c.expiresAt != nil && !now.Before(*c.expiresAt) {
		return ErrExpired
	}
	return nil
}

// CheckRemaining reports whether a use is left.
func (c *Coupon) CheckRemaining() error {
	return UseLimitError(c.maxUses, c.usedCount)
}

// UseLimitError returns the rejection for a coupon with usedCount uses out
// of maxUses, or nil when one is left. A spent single-use coupon is
// reported as already used.
func UseLimitError(maxUses *int, usedCount int) error {
	if maxUses == nil || usedCount < *maxUses {
		return nil
	}
	if *maxUses == 1 {
		return ErrAlreadyUsed
	}
	return ErrExhausted
}

// Terms returns the pricing inputs of the coupon.
func (c *Coupon) Terms() *pricing.CouponTerms {
	return &pricing.CouponTerms{
		Type:      c.discountType,
		Value:     c.discountValue,
		FreeUnits: c.freeUnits,
	}
}

// Deactivate stops further redemptions.
func (c *Coupon) Deactivate() {
	c.active = false
	c.updatedAt = time.Now().UTC()
}

// Activate allows redemptions again. Expiry and the use ceiling still apply.
func (c *Coupon) Activate() {
	c.active = true
	c.updatedAt = time.Now().UTC()
}

func (c *Coupon) ID() uuid.UUID                      { return c.id }
func (c *Coupon) Code() string                       { return c.code }
func (c *Coupon) DiscountType() pricing.DiscountType { return c.discountType }
func (c *Coupon) DiscountValue() int64               { return c.discountValue }
func (c *Coupon) ExpiresAt() *time.Time              { return c.expiresAt }
func (c *Coupon) MaxUses() *int                      { return c.maxUses }
func (c *Coupon) UsedCount() int                     { return c.usedCount }
func (c *Coupon) FreeUnits() int                     { return c.freeUnits }
func (c *Coupon) Active() bool                       { return c.active }
func (c *Coupon) OnePerIdentity() bool               { return c.onePerIdentity }
func (c *Coupon) CreatedAt() time.Time               { return c.createdAt }
func (c *Coupon) UpdatedAt() time.Time               { return c.updatedAt }
