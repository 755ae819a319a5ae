package order

import (
	"context"

	"github.com/eventsnap/service-gallery/internal/domain/coupon"
	"github.com/google/uuid"
)

// OrderRepository defines the persistence contract for Order aggregates.
type OrderRepository interface {
	// CreateWithRedemption inserts the order and, when redemption is not
	// nil, consumes one use of the coupon in the same transaction. A lost
	// race and a spent single-use coupon return coupon.ErrAlreadyUsed; a
	// spent multi-use coupon returns coupon.ErrExhausted. Nothing is
	// written in either case.
	CreateWithRedemption(ctx context.Context, o *Order, redemption *coupon.Redemption) error

	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByPaymentRef(ctx context.Context, ref string) (*Order, error)
	Update(ctx context.Context, o *Order) error

	// ListAll returns orders newest first together with the total count.
	ListAll(ctx context.Context, status Status, page, limit int) ([]*Order, int64, error)
	// SalesStats returns the summed total of PAID orders and the order
	// count per status.
	SalesStats(ctx context.Context) (int64, map[string]int64, error)
}
