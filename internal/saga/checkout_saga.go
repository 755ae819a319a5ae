package saga

import (
	"context"
	"time"

	"github.com/eventsnap/service-gallery/internal/adapter"
	"github.com/eventsnap/service-gallery/internal/domain/coupon"
	"github.com/eventsnap/service-gallery/internal/domain/order"
	"github.com/eventsnap/service-gallery/pkg/events"
	"github.com/eventsnap/service-gallery/pkg/kafka"
	"go.uber.org/zap"
)

const serviceSource = "service-gallery"

// CheckoutSagaService persists orders and hands them off to the payment provider.
type CheckoutSagaService struct {
	orders    order.OrderRepository
	gateway   adapter.PaymentGateway
	publisher kafka.EventPublisher
	currency  string
	logger    *zap.Logger
}

// NewCheckoutSagaService creates a new CheckoutSagaService.
func NewCheckoutSagaService(
	orders order.OrderRepository,
	gateway adapter.PaymentGateway,
	publisher kafka.EventPublisher,
	currency string,
	logger *zap.Logger,
) *CheckoutSagaService {
	return &CheckoutSagaService{
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
	}
}

// Checkout stores o together with its coupon redemption and, unless the order
// is already paid, opens a payment session. It returns the redirect URL, or
// "" for a free order. A gateway failure leaves the order FAILED.
func (s *CheckoutSagaService) Checkout(ctx context.Context, o *order.Order, redemption *coupon.Redemption) (string, error) {
	var ref, redirectURL string

	sg := NewSaga("checkout", s.logger)

	sg.AddStep(SagaStep{
		Name: "save_order",
		Execute: func(ctx context.Context) error {
			return s.orders.CreateWithRedemption(ctx, o, redemption)
		},
		Compensate: func(ctx context.Context) error {
			if o.Status() != order.StatusPending {
				return nil
			}
			if err := o.Fail("payment handoff failed"); err != nil {
				return err
			}
			return s.orders.Update(ctx, o)
		},
	})

	if o.Status() == order.StatusPending {
		sg.AddStep(SagaStep{
			Name: "create_checkout_session",
			Execute: func(ctx context.Context) error {
				var err error
				ref, redirectURL, err = s.gateway.CreateCheckout(ctx, o.ID(), o.TotalCents(), s.currency, o.CustomerEmail())
				return err
			},
			Compensate: func(ctx context.Context) error {
				if ref == "" {
					return nil
				}
				return s.gateway.CancelCheckout(ctx, ref)
			},
		})

		sg.AddStep(SagaStep{
			Name: "attach_payment_ref",
			Execute: func(ctx context.Context) error {
				if err := o.AttachPaymentRef(ref); err != nil {
					return err
				}
				return s.orders.Update(ctx, o)
			},
		})
	}

	if err := sg.Execute(ctx); err != nil {
		if o.Status() == order.StatusFailed {
			s.publish(ctx, events.OrderFailed, events.OrderFailedEvent{
				OrderID:    o.ID(),
				Reason:     err.Error(),
				OccurredAt: time.Now().UTC(),
			})
		}
		return "", err
	}

	s.publish(ctx, events.OrderCreated, events.OrderCreatedEvent{
		OrderID:       o.ID(),
		Status:        string(o.Status()),
		PhotoCount:    len(o.PhotoIDs()),
		TotalCents:    o.TotalCents(),
		CouponCode:    o.CouponCode(),
		PaymentRef:    o.PaymentRef(),
		CustomerEmail: o.CustomerEmail(),
		OccurredAt:    time.Now().UTC(),
	})
	if o.Status() == order.StatusPaid {
		s.PublishPaid(ctx, o)
	}
	return redirectURL, nil
}

// PublishPaid announces that o is paid.
func (s *CheckoutSagaService) PublishPaid(ctx context.Context, o *order.Order) {
	s.publish(ctx, events.OrderPaid, events.OrderPaidEvent{
		OrderID:       o.ID(),
		PaymentRef:    o.PaymentRef(),
		TotalCents:    o.TotalCents(),
		CustomerEmail: o.CustomerEmail(),
		OccurredAt:    time.Now().UTC(),
	})
}

// publish is best effort: the order is already committed, so a bus outage
// is logged rather than surfaced.
func (s *CheckoutSagaService) publish(ctx context.Context, eventType string, data interface{}) {
	ce, err := kafka.NewCloudEvent(serviceSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.publisher.PublishEvent(ctx, events.TopicGalleryEvents, ce); err != nil {
		s.logger.Error("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
