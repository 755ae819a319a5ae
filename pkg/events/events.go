// Package events holds the topic names, event types and payloads exchanged
// on the message bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicGalleryEvents = "gallery.events"
	TopicPaymentEvents = "payment.events"
)

// Produced on TopicGalleryEvents.
const (
	IngestBatchCompleted = "ingest.batch.completed"
	OrderCreated         = "order.created"
	OrderPaid            = "order.paid"
	OrderFailed          = "order.failed"
)

// Consumed from TopicPaymentEvents.
const (
	PaymentConfirmed = "payment.confirmed"
	PaymentFailed    = "payment.failed"
)

// IngestItemError describes one item of a batch that was not stored.
type IngestItemError struct {
	Filename string `json:"filename"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// IngestBatchCompletedEvent is published once every item of a batch is done.
type IngestBatchCompletedEvent struct {
	BatchID    uuid.UUID         `json:"batch_id"`
	EventID    uuid.UUID         `json:"event_id"`
	Created    int               `json:"created"`
	Failed     int               `json:"failed"`
	Errors     []IngestItemError `json:"errors,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// OrderCreatedEvent is published after an order is persisted.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	Status        string    `json:"status"`
	PhotoCount    int       `json:"photo_count"`
	TotalCents    int64     `json:"total_cents"`
	CouponCode    string    `json:"coupon_code,omitempty"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OrderPaidEvent is published when an order becomes PAID.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
	TotalCents    int64     `json:"total_cents"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OrderFailedEvent is published when checkout could not hand off to payment.
type OrderFailedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentConfirmedEvent arrives from the payment provider integration.
// Either OrderID or PaymentRef identifies the order.
type PaymentConfirmedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	PaymentRef string    `json:"payment_ref"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentFailedEvent reports an abandoned or declined payment.
type PaymentFailedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	PaymentRef string    `json:"payment_ref"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
