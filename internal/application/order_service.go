package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	couponDomain "github.com/eventsnap/service-gallery/internal/domain/coupon"
	orderDomain "github.com/eventsnap/service-gallery/internal/domain/order"
	photoDomain "github.com/eventsnap/service-gallery/internal/domain/photo"
	"github.com/eventsnap/service-gallery/internal/domain/pricing"
	"github.com/eventsnap/service-gallery/internal/saga"
	"github.com/eventsnap/service-gallery/pkg/domain"
)

// QuoteRequest asks for the price of a set of photos.
type QuoteRequest struct {
	PhotoIDs   []string `json:"photo_ids" binding:"required"`
	CouponCode string   `json:"coupon_code"`
	Email      string   `json:"email"`
}

// CheckoutRequest holds data to place an order. It carries no total; the
// price is always computed from the catalog.
type CheckoutRequest struct {
	PhotoIDs   []string `json:"photo_ids" binding:"required"`
	CouponCode string   `json:"coupon_code"`
	Email      string   `json:"email"`
}

// QuoteDTO is a computed price. Amounts are decimal strings in currency units.
type QuoteDTO struct {
	PhotoCount     int    `json:"photo_count"`
	UnitPrice      string `json:"unit_price"`
	Subtotal       string `json:"subtotal"`
	Discount       string `json:"discount"`
	Total          string `json:"total"`
	TotalCents     int64  `json:"total_cents"`
	CouponCode     string `json:"coupon_code,omitempty"`
	CouponApplied  bool   `json:"coupon_applied"`
	CouponRejected string `json:"coupon_rejected,omitempty"`
}

// OrderDTO is the API response representation of an order.
type OrderDTO struct {
	ID            uuid.UUID   `json:"id"`
	PhotoIDs      []uuid.UUID `json:"photo_ids"`
	UnitPrice     string      `json:"unit_price"`
	Subtotal      string      `json:"subtotal"`
	Discount      string      `json:"discount"`
	Total         string      `json:"total"`
	TotalCents    int64       `json:"total_cents"`
	Status        string      `json:"status"`
	CouponCode    string      `json:"coupon_code,omitempty"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	PaymentRef    string      `json:"payment_ref,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	PaidAt        *time.Time  `json:"paid_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// CheckoutDTO is the checkout outcome: a paid order, or one waiting at the
// payment URL.
type CheckoutDTO struct {
	Order      *OrderDTO `json:"order"`
	Status     string    `json:"status"`
	PaymentURL string    `json:"payment_url,omitempty"`
}

// SalesStatsDTO holds order statistics for the admin dashboard.
type SalesStatsDTO struct {
	RevenueCents int64            `json:"revenue_cents"`
	Revenue      string           `json:"revenue"`
	TotalOrders  int64            `json:"total_orders"`
	ByStatus     map[string]int64 `json:"by_status"`
}

// OrderService prices and places orders.
type OrderService struct {
	photos   photoDomain.PhotoRepository
	coupons  couponDomain.CouponRepository
	orders   orderDomain.OrderRepository
	checkout *saga.CheckoutSagaService
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	photos photoDomain.PhotoRepository,
	coupons couponDomain.CouponRepository,
	orders orderDomain.OrderRepository,
	checkout *saga.CheckoutSagaService,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		photos:   photos,
		coupons:  coupons,
		orders:   orders,
		checkout: checkout,
		logger:   logger,
		now:      time.Now,
	}
}

// Identity is the key one-per-identity coupons are tracked by: the token
// subject when signed in, otherwise the lowercased email.
func Identity(userID uuid.UUID, email string) string {
	if userID != uuid.Nil {
		return userID.String()
	}
	return normalizeEmail(email)
}

// Quote prices the photos. An unusable coupon is reported in
// CouponRejected and the undiscounted price is returned.
func (s *OrderService) Quote(ctx context.Context, identity string, req QuoteRequest) (*QuoteDTO, error) {
	ids, err := s.lookupPhotos(ctx, req.PhotoIDs)
	if err != nil {
		return nil, err
	}
	if identity == "" {
		identity = normalizeEmail(req.Email)
	}

	var terms *pricing.CouponTerms
	code := couponDomain.NormalizeCode(req.CouponCode)
	rejected := ""
	if code != "" {
		c, err := resolveCoupon(ctx, s.coupons, code, identity, s.now())
		switch {
		case err == nil:
			terms = c.Terms()
		default:
			reason, ok := rejectionReason(err)
			if !ok {
				return nil, err
			}
			rejected = reason
		}
	}

	dto := toQuoteDTO(pricing.Calculate(len(ids), terms))
	dto.CouponCode = code
	dto.CouponApplied = terms != nil
	dto.CouponRejected = rejected
	return dto, nil
}

// Checkout prices the photos, redeems the coupon and opens payment. A
// coupon that cannot be used blocks the checkout.
func (s *OrderService) Checkout(ctx context.Context, identity string, req CheckoutRequest) (*CheckoutDTO, error) {
	ids, err := s.lookupPhotos(ctx, req.PhotoIDs)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)
	if identity == "" {
		identity = email
	}

	var c *couponDomain.Coupon
	code := couponDomain.NormalizeCode(req.CouponCode)
	if code != "" {
		c, err = resolveCoupon(ctx, s.coupons, code, identity, s.now())
		if err != nil {
			return nil, err
		}
	}

	var terms *pricing.CouponTerms
	if c != nil {
		terms = c.Terms()
	}
	q := pricing.Calculate(len(ids), terms)

	o, err := orderDomain.NewOrder(ids, q, code, identity, email)
	if err != nil {
		return nil, err
	}

	var redemption *couponDomain.Redemption
	if c != nil {
		redemption = &couponDomain.Redemption{
			CouponID:       c.ID(),
			Identity:       identity,
			OnePerIdentity: c.OnePerIdentity(),
			DiscountCents:  o.DiscountCents(),
		}
	}

	paymentURL, err := s.checkout.Checkout(ctx, o, redemption)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order_id", o.ID().String()),
		zap.String("status", string(o.Status())),
		zap.Int("photos", len(ids)),
		zap.Int64("total_cents", o.TotalCents()),
	)
	return &CheckoutDTO{Order: toOrderDTO(o), Status: string(o.Status()), PaymentURL: paymentURL}, nil
}

// GetOrder returns an order by id.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*OrderDTO, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toOrderDTO(o), nil
}

// GetOrderByPaymentRef returns the order a payment session belongs to.
func (s *OrderService) GetOrderByPaymentRef(ctx context.Context, ref string) (*OrderDTO, error) {
	if ref == "" {
		return nil, domain.NewValidationError("payment reference is required")
	}
	o, err := s.orders.FindByPaymentRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return toOrderDTO(o), nil
}

// MarkPaid records a confirmed payment. Repeated confirmations are no-ops.
func (s *OrderService) MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*OrderDTO, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if paymentRef != "" && o.PaymentRef() != "" && paymentRef != o.PaymentRef() {
		return nil, domain.NewValidationError("payment reference does not match order")
	}
	if o.Status() == orderDomain.StatusPaid {
		return toOrderDTO(o), nil
	}

	if err := o.MarkPaid(paymentRef); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	s.checkout.PublishPaid(ctx, o)
	s.logger.Info("order paid", zap.String("order_id", id.String()), zap.String("payment_ref", o.PaymentRef()))
	return toOrderDTO(o), nil
}

// MarkFailed records a failed payment on a pending order.
func (s *OrderService) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*OrderDTO, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status() == orderDomain.StatusFailed {
		return toOrderDTO(o), nil
	}
	if err := o.Fail(reason); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	s.logger.Info("order payment failed", zap.String("order_id", id.String()), zap.String("reason", reason))
	return toOrderDTO(o), nil
}

// ListAllOrders returns a page of orders, optionally only those in status (admin).
func (s *OrderService) ListAllOrders(ctx context.Context, status string, page, limit int) ([]*OrderDTO, int64, error) {
	st := orderDomain.Status(strings.ToUpper(strings.TrimSpace(status)))
	switch st {
	case "", orderDomain.StatusPending, orderDomain.StatusPaid, orderDomain.StatusFailed, orderDomain.StatusCancelled:
	default:
		return nil, 0, domain.NewValidationError(fmt.Sprintf("unknown order status: %s", status))
	}

	orders, total, err := s.orders.ListAll(ctx, st, page, limit)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]*OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	return dtos, total, nil
}

// GetSalesStats returns aggregate order statistics (admin).
func (s *OrderService) GetSalesStats(ctx context.Context) (*SalesStatsDTO, error) {
	revenue, counts, err := s.orders.SalesStats(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	return &SalesStatsDTO{
		RevenueCents: revenue,
		Revenue:      formatCents(revenue),
		TotalOrders:  total,
		ByStatus:     counts,
	}, nil
}

// lookupPhotos resolves the requested ids against the catalog. Malformed,
// duplicate and unknown ids are dropped.
func (s *OrderService) lookupPhotos(ctx context.Context, raw []string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool, len(raw))
	requested := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		requested = append(requested, id)
	}
	if len(requested) == 0 {
		return nil, domain.NewValidationError("no valid photos")
	}

	found, err := s.photos.FindByIDs(ctx, requested)
	if err != nil {
		return nil, fmt.Errorf("failed to look up photos: %w", err)
	}
	if len(found) == 0 {
		return nil, domain.NewValidationError("no valid photos")
	}
	ids := make([]uuid.UUID, len(found))
	for i, p := range found {
		ids[i] = p.ID()
	}
	return ids, nil
}

func toQuoteDTO(q pricing.Quote) *QuoteDTO {
	return &QuoteDTO{
		PhotoCount: q.Units,
		UnitPrice:  q.UnitPrice.StringFixed(2),
		Subtotal:   q.Subtotal.StringFixed(2),
		Discount:   q.Discount.StringFixed(2),
		Total:      q.Total.StringFixed(2),
		TotalCents: pricing.ToCents(q.Total),
	}
}

func toOrderDTO(o *orderDomain.Order) *OrderDTO {
	return &OrderDTO{
		ID:            o.ID(),
		PhotoIDs:      o.PhotoIDs(),
		UnitPrice:     formatCents(o.UnitPriceCents()),
		Subtotal:      formatCents(o.SubtotalCents()),
		Discount:      formatCents(o.DiscountCents()),
		Total:         formatCents(o.TotalCents()),
		TotalCents:    o.TotalCents(),
		Status:        string(o.Status()),
		CouponCode:    o.CouponCode(),
		CustomerEmail: o.CustomerEmail(),
		PaymentRef:    o.PaymentRef(),
		FailureReason: o.FailureReason(),
		PaidAt:        o.PaidAt(),
		CreatedAt:     o.CreatedAt(),
	}
}
