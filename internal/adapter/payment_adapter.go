package adapter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentGateway is the anti-corruption layer in front of the hosted
// payment page provider.
type PaymentGateway interface {
	// CreateCheckout opens a hosted checkout session and returns its
	// reference and the URL the customer is redirected to.
	CreateCheckout(ctx context.Context, orderID uuid.UUID, amountCents int64, currency, customerEmail string) (ref, redirectURL string, err error)

	// CancelCheckout expires an unpaid session.
	CancelCheckout(ctx context.Context, ref string) error
}

// MockPaymentGateway simulates the provider for development and tests.
// Payment confirmation arrives separately on the payment events topic.
type MockPaymentGateway struct {
	baseURL string
	logger  *zap.Logger
}

// NewMockPaymentGateway creates a mock gateway redirecting to baseURL.
func NewMockPaymentGateway(baseURL string, logger *zap.Logger) *MockPaymentGateway {
	return &MockPaymentGateway{baseURL: baseURL, logger: logger}
}

// CreateCheckout returns a mock session reference.
func (m *MockPaymentGateway) CreateCheckout(ctx context.Context, orderID uuid.UUID, amountCents int64, currency, customerEmail string) (string, string, error) {
	ref := fmt.Sprintf("cs_mock_%s", uuid.New().String()[:8])
	redirect := fmt.Sprintf("%s?session=%s&order=%s", m.baseURL, url.QueryEscape(ref), orderID)

	m.logger.Info("[MOCK PAYMENT] checkout session created",
		zap.String("ref", ref),
		zap.String("order_id", orderID.String()),
		zap.Int64("amount_cents", amountCents),
		zap.String("currency", currency),
		zap.String("customer_email", customerEmail),
	)
	return ref, redirect, nil
}

// CancelCheckout simulates expiring a session.
func (m *MockPaymentGateway) CancelCheckout(ctx context.Context, ref string) error {
	m.logger.Info("[MOCK PAYMENT] checkout session expired", zap.String("ref", ref))
	return nil
}
