package order

import (
	"time"

	"github.com/eventsnap/service-gallery/internal/domain/pricing"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
)

// Status represents the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Order is the aggregate root for a purchase of photos. Its amounts are
// fixed at creation and never recomputed.
type Order struct {
	id             uuid.UUID
	photoIDs       []uuid.UUID
	unitPriceCents int64
	subtotalCents  int64
	discountCents  int64
	totalCents     int64
	status         Status
	couponCode     string
	identity       string
	customerEmail  string
	paymentRef     string
	failureReason  string
	paidAt         *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewOrder creates an order from a server computed quote. A zero total is
// created PAID straight away.
func NewOrder(photoIDs []uuid.UUID, q pricing.Quote, couponCode, identity, email string) (*Order, error) {
	if len(photoIDs) == 0 {
		return nil, domain.NewValidationError("no valid photos")
	}
	if q.Units != len(photoIDs) {
		return nil, domain.NewValidationError("quote does not match photo count")
	}

	now := time.Now().UTC()
	o := &Order{
		id:             uuid.New(),
		photoIDs:       append([]uuid.UUID(nil), photoIDs...),
		unitPriceCents: pricing.ToCents(q.UnitPrice),
		subtotalCents:  pricing.ToCents(q.Subtotal),
		discountCents:  pricing.ToCents(q.Discount),
		totalCents:     pricing.ToCents(q.Total),
		status:         StatusPending,
		couponCode:     couponCode,
		identity:       identity,
		customerEmail:  email,
		createdAt:      now,
		updatedAt:      now,
	}
	if o.totalCents == 0 {
		o.status = StatusPaid
		o.paidAt = &now
	}
	return o, nil
}

// --- Getters ---

func (o *Order) ID() uuid.UUID         { return o.id }
func (o *Order) PhotoIDs() []uuid.UUID { return o.photoIDs }
func (o *Order) UnitPriceCents() int64 { return o.unitPriceCents }
func (o *Order) SubtotalCents() int64  { return o.subtotalCents }
func (o *Order) DiscountCents() int64  { return o.discountCents }
func (o *Order) TotalCents() int64     { return o.totalCents }
func (o *Order) Status() Status        { return o.status }
func (o *Order) CouponCode() string    { return o.couponCode }
func (o *Order) Identity() string      { return o.identity }
func (o *Order) CustomerEmail() string { return o.customerEmail }
func (o *Order) PaymentRef() string    { return o.paymentRef }
func (o *Order) FailureReason() string { return o.failureReason }
func (o *Order) PaidAt() *time.Time    { return o.paidAt }
func (o *Order) CreatedAt() time.Time  { return o.createdAt }
func (o *Order) UpdatedAt() time.Time  { return o.updatedAt }

// --- State transitions ---

// AttachPaymentRef records the provider checkout reference.
func (o *Order) AttachPaymentRef(ref string) error {
	if o.status != StatusPending {
		return domain.NewInvalidStateError(string(o.status), "awaiting payment")
	}
	o.paymentRef = ref
	o.updatedAt = time.Now().UTC()
	return nil
}

// MarkPaid moves a pending order to PAID. Confirmations are delivered at
// least once, so an already paid order is left untouched.
func (o *Order) MarkPaid(paymentRef string) error {
	switch o.status {
	case StatusPaid:
		return nil
	case StatusPending:
	default:
		return domain.NewInvalidStateError(string(o.status), string(StatusPaid))
	}
	now := time.Now().UTC()
	o.status = StatusPaid
	if paymentRef != "" {
		o.paymentRef = paymentRef
	}
	o.paidAt = &now
	o.updatedAt = now
	return nil
}

// Fail marks a pending order as failed.
func (o *Order) Fail(reason string) error {
	if o.status != StatusPending {
		return domain.NewInvalidStateError(string(o.status), string(StatusFailed))
	}
	o.status = StatusFailed
	o.failureReason = reason
	o.updatedAt = time.Now().UTC()
	return nil
}

// Cancel marks a pending order as cancelled.
func (o *Order) Cancel(reason string) error {
	if o.status != StatusPending {
		return domain.NewInvalidStateError(string(o.status), string(StatusCancelled))
	}
	o.status = StatusCancelled
	o.failureReason = reason
	o.updatedAt = time.Now().UTC()
	return nil
}

// Reconstitute rebuilds an Order from persisted data.
func Reconstitute(
	id uuid.UUID,
	photoIDs []uuid.UUID,
	unitPriceCents, subtotalCents, discountCents, totalCents int64,
	status Status,
	couponCode, identity, customerEmail, paymentRef, failureReason string,
	paidAt *time.Time,
	createdAt, updatedAt time.Time,
) *Order {
	return &Order{
		id:             id,
		photoIDs:       photoIDs,
		unitPriceCents: unitPriceCents,
		subtotalCents:  subtotalCents,
		discountCents:  discountCents,
		totalCents:     totalCents,
		status:         status,
		couponCode:     couponCode,
		identity:       identity,
		customerEmail:  customerEmail,
		paymentRef:     paymentRef,
		failureReason:  failureReason,
		paidAt:         paidAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}
