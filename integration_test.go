//go:build integration

package main_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsnap/service-gallery/internal/application"
	"github.com/eventsnap/service-gallery/internal/repository"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/eventsnap/service-gallery/pkg/events"
	"github.com/google/uuid"
)

// TestCheckout_SingleUseCouponRace fires two checkouts at a coupon with one
// use left. Exactly one may redeem it.
func TestCheckout_SingleUseCouponRace(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupGalleryStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	ctx := context.Background()
	_, photoIDs := seedPhotos(t, stack, 3)

	one := 1
	_, err := stack.Coupons.CreateCoupon(ctx, application.CreateCouponRequest{
		Code:          "race",
		DiscountType:  "PERCENTAGE",
		DiscountValue: 50,
		MaxUses:       &one,
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, email := range []string{"a@example.com", "b@example.com"} {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			_, err := stack.Orders.Checkout(ctx, "", application.CheckoutRequest{
				PhotoIDs:   photoIDs,
				CouponCode: "RACE",
				Email:      email,
			})
			mu.Lock()
			defer mu.Unlock()
			var de *domain.DomainError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &de) && de.Code == "coupon_already_used":
				conflicts++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(email)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	var model repository.CouponModel
	require.NoError(t, infra.DB.Where("code = ?", "RACE").First(&model).Error)
	assert.Equal(t, 1, model.UsedCount)

	var orders int64
	require.NoError(t, infra.DB.Model(&repository.OrderModel{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders, "the losing checkout must not leave an order behind")
}

// TestCheckout_OnePerIdentity verifies the unique usage index rejects a
// second redemption by the same email.
func TestCheckout_OnePerIdentity(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupGalleryStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	ctx := context.Background()
	_, photoIDs := seedPhotos(t, stack, 2)

	_, err := stack.Coupons.CreateCoupon(ctx, application.CreateCouponRequest{
		Code:           "WELCOME",
		DiscountType:   "FIXED",
		DiscountValue:  500,
		OnePerIdentity: true,
	})
	require.NoError(t, err)

	req := application.CheckoutRequest{PhotoIDs: photoIDs, CouponCode: "welcome", Email: "Guest@Example.com"}
	first, err := stack.Orders.Checkout(ctx, "", req)
	require.NoError(t, err)
	assert.Equal(t, "35.00", first.Order.Total)

	req.Email = "guest@example.com"
	_, err = stack.Orders.Checkout(ctx, "", req)
	require.Error(t, err)
	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "coupon_already_used", de.Code)

	var usages int64
	require.NoError(t, infra.DB.Model(&repository.CouponUsageModel{}).Count(&usages).Error)
	assert.Equal(t, int64(1), usages)
}

// TestPaymentConfirmed_MarksOrderPaid verifies that a payment.confirmed event
// on payment.events moves a pending order to PAID and announces it.
func TestPaymentConfirmed_MarksOrderPaid(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupGalleryStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	_, photoIDs := seedPhotos(t, stack, 5)
	res, err := stack.Orders.Checkout(context.Background(), "", application.CheckoutRequest{
		PhotoIDs: photoIDs,
		Email:    "buyer@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "PENDING", res.Status)
	require.NotEmpty(t, res.Order.PaymentRef)
	assert.Equal(t, "75.00", res.Order.Total)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second) // consumer group join

	publishTestEvent(t, infra.KafkaBrokers, events.TopicPaymentEvents,
		"service-payment", events.PaymentConfirmed, events.PaymentConfirmedEvent{
			PaymentRef: res.Order.PaymentRef,
			OccurredAt: time.Now().UTC(),
		})

	model := waitForOrderStatus(t, infra.DB, res.Order.ID, "PAID", 15*time.Second)
	assert.NotNil(t, model.PaidAt)

	ce := consumeOneEvent(t, infra.KafkaBrokers, events.TopicGalleryEvents, events.OrderPaid, 15*time.Second)
	var paid events.OrderPaidEvent
	require.NoError(t, ce.ParseData(&paid))
	assert.Equal(t, res.Order.ID, paid.OrderID)
	assert.Equal(t, int64(7500), paid.TotalCents)
	assert.Equal(t, "buyer@example.com", paid.CustomerEmail)
}

// TestPaymentFailed_MarksOrderFailed verifies a declined payment fails the order.
func TestPaymentFailed_MarksOrderFailed(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupGalleryStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	_, photoIDs := seedPhotos(t, stack, 1)
	res, err := stack.Orders.Checkout(context.Background(), "", application.CheckoutRequest{PhotoIDs: photoIDs})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second)

	publishTestEvent(t, infra.KafkaBrokers, events.TopicPaymentEvents,
		"service-payment", events.PaymentFailed, events.PaymentFailedEvent{
			OrderID:    res.Order.ID,
			Reason:     "card declined",
			OccurredAt: time.Now().UTC(),
		})

	model := waitForOrderStatus(t, infra.DB, res.Order.ID, "FAILED", 15*time.Second)
	assert.Equal(t, "card declined", model.FailureReason)
}

// TestPaymentConfirmed_UnknownOrder_Skips verifies an event for an order this
// service never created is dropped without stalling the consumer.
func TestPaymentConfirmed_UnknownOrder_Skips(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupGalleryStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	_, photoIDs := seedPhotos(t, stack, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second)

	publishTestEvent(t, infra.KafkaBrokers, events.TopicPaymentEvents,
		"service-payment", events.PaymentConfirmed, events.PaymentConfirmedEvent{
			OrderID:    uuid.New(),
			OccurredAt: time.Now().UTC(),
		})

	// A real order placed afterwards is still processed.
	res, err := stack.Orders.Checkout(context.Background(), "", application.CheckoutRequest{PhotoIDs: photoIDs})
	require.NoError(t, err)
	publishTestEvent(t, infra.KafkaBrokers, events.TopicPaymentEvents,
		"service-payment", events.PaymentConfirmed, events.PaymentConfirmedEvent{
			OrderID:    res.Order.ID,
			PaymentRef: res.Order.PaymentRef,
			OccurredAt: time.Now().UTC(),
		})

	waitForOrderStatus(t, infra.DB, res.Order.ID, "PAID", 15*time.Second)
}

// TestDeleteEvent_CascadesPhotos verifies the foreign key removes an event's
// photo rows.
func TestDeleteEvent_CascadesPhotos(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupGalleryStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	eventID, _ := seedPhotos(t, stack, 4)
	require.NoError(t, stack.Events.DeleteEvent(context.Background(), eventID))

	var photos int64
	require.NoError(t, infra.DB.Model(&repository.PhotoModel{}).Where("event_id = ?", eventID).Count(&photos).Error)
	assert.Zero(t, photos)
}
