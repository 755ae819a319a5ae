package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CouponRepository defines persistence operations for coupons.
type CouponRepository interface {
	Save(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	List(ctx context.Context) ([]*Coupon, error)
	HasIdentityUsed(ctx context.Context, couponID uuid.UUID, identity string) (bool, error)
}

// Usage records one redemption of a coupon.
type Usage struct {
	ID            uuid.UUID
	CouponID      uuid.UUID
	Identity      string
	OrderID       uuid.UUID
	DiscountCents int64
	UsedAt        time.Time
}

// Redemption is what an order consumes from a coupon. It is applied in the
// same transaction as the order insert.
type Redemption struct {
	CouponID       uuid.UUID
	Identity       string
	OnePerIdentity bool
	DiscountCents  int64
}
