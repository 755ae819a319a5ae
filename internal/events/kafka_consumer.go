package events

import (
	"context"
	"strings"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/eventsnap/service-gallery/internal/application"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/eventsnap/service-gallery/pkg/events"
	"github.com/eventsnap/service-gallery/pkg/kafka"
)

// OrderPayments is the part of the order service the consumer drives.
type OrderPayments interface {
	GetOrderByPaymentRef(ctx context.Context, ref string) (*application.OrderDTO, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*application.OrderDTO, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*application.OrderDTO, error)
}

// PaymentEventConsumer listens to payment events and settles orders.
type PaymentEventConsumer struct {
	consumer *kafka.Consumer
	orders   OrderPayments
	logger   *zap.Logger
}

// NewPaymentEventConsumer creates a new consumer for payment events.
func NewPaymentEventConsumer(
	brokers []string,
	groupID string,
	orders OrderPayments,
	logger *zap.Logger,
) *PaymentEventConsumer {
	return &PaymentEventConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, events.TopicPaymentEvents, logger),
		orders:   orders,
		logger:   logger,
	}
}

// Start begins consuming payment events. It blocks until the context is cancelled.
func (c *PaymentEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.HandleMessage)
}

// HandleMessage routes one payment event. Confirmations for unknown orders
// are logged and dropped.
func (c *PaymentEventConsumer) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from payment topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return err
	}

	c.logger.Info("received payment event",
		zap.String("type", cloudEvent.Type),
		zap.String("id", cloudEvent.ID),
	)

	switch {
	case strings.EqualFold(cloudEvent.Type, events.PaymentConfirmed):
		return c.handlePaymentConfirmed(ctx, cloudEvent)

	case strings.EqualFold(cloudEvent.Type, events.PaymentFailed):
		return c.handlePaymentFailed(ctx, cloudEvent)

	default:
		c.logger.Debug("ignoring unhandled payment event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *PaymentEventConsumer) handlePaymentConfirmed(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.PaymentConfirmedEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse PaymentConfirmedEvent data", zap.Error(err))
		return err
	}

	id, err := c.resolve(ctx, event.OrderID, event.PaymentRef)
	if err != nil {
		return c.dropIfUnknown(err, event.PaymentRef)
	}
	_, err = c.orders.MarkPaid(ctx, id, event.PaymentRef)
	return c.dropIfUnknown(err, event.PaymentRef)
}

func (c *PaymentEventConsumer) handlePaymentFailed(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.PaymentFailedEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse PaymentFailedEvent data", zap.Error(err))
		return err
	}

	id, err := c.resolve(ctx, event.OrderID, event.PaymentRef)
	if err != nil {
		return c.dropIfUnknown(err, event.PaymentRef)
	}
	reason := event.Reason
	if reason == "" {
		reason = "payment failed"
	}
	_, err = c.orders.MarkFailed(ctx, id, reason)
	return c.dropIfUnknown(err, event.PaymentRef)
}

func (c *PaymentEventConsumer) resolve(ctx context.Context, orderID uuid.UUID, ref string) (uuid.UUID, error) {
	if orderID != uuid.Nil {
		return orderID, nil
	}
	o, err := c.orders.GetOrderByPaymentRef(ctx, ref)
	if err != nil {
		return uuid.Nil, err
	}
	return o.ID, nil
}

func (c *PaymentEventConsumer) dropIfUnknown(err error, ref string) error {
	if err != nil && domain.IsNotFound(err) {
		c.logger.Warn("payment event for unknown order", zap.String("payment_ref", ref), zap.Error(err))
		return nil
	}
	return err
}

// Close closes the underlying Kafka consumer.
func (c *PaymentEventConsumer) Close() error {
	return c.consumer.Close()
}
