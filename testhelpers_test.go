//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/eventsnap/service-gallery/internal/adapter"
	"github.com/eventsnap/service-gallery/internal/application"
	eventDomain "github.com/eventsnap/service-gallery/internal/domain/event"
	photoDomain "github.com/eventsnap/service-gallery/internal/domain/photo"
	galleryEvents "github.com/eventsnap/service-gallery/internal/events"
	"github.com/eventsnap/service-gallery/internal/repository"
	"github.com/eventsnap/service-gallery/internal/saga"
	"github.com/eventsnap/service-gallery/pkg/database"
	"github.com/eventsnap/service-gallery/pkg/events"
	"github.com/eventsnap/service-gallery/pkg/kafka"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// galleryStack holds wired-up gallery components.
type galleryStack struct {
	Orders          *application.OrderService
	Coupons         *application.CouponService
	Events          *application.EventService
	Consumer        *galleryEvents.PaymentEventConsumer
	Photos          *repository.PhotoRepositoryImpl
	EventRepo       *repository.EventRepositoryImpl
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka, applies the SQL migrations and
// returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("test_gallery"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	dbURL, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dbURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(dbURL, "migrations", logger))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, events.TopicGalleryEvents, events.TopicPaymentEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupGalleryStack wires the order, coupon and payment consumer components
// the same way cmd/server does.
func setupGalleryStack(t *testing.T, db *gorm.DB, brokers []string) *galleryStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	eventRepo := repository.NewEventRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	couponRepo := repository.NewGormCouponRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	producer := kafka.NewProducer(brokers, logger)
	gateway := adapter.NewMockPaymentGateway("http://pay.test/checkout", logger)
	checkout := saga.NewCheckoutSagaService(orderRepo, gateway, producer, "EUR", logger)

	orderSvc := application.NewOrderService(photoRepo, couponRepo, orderRepo, checkout, logger)
	couponSvc := application.NewCouponService(couponRepo, logger)
	eventSvc := application.NewEventService(eventRepo, photoRepo, adapter.NewMemoryStorage("http://cdn.test"), nil, logger)

	groupID := fmt.Sprintf("test-gallery-%s", uuid.New().String()[:8])
	consumer := galleryEvents.NewPaymentEventConsumer(brokers, groupID, orderSvc, logger)

	return &galleryStack{
		Orders:          orderSvc,
		Coupons:         couponSvc,
		Events:          eventSvc,
		Consumer:        consumer,
		Photos:          photoRepo,
		EventRepo:       eventRepo,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedPhotos inserts an active event with n photos and returns the photo IDs.
func seedPhotos(t *testing.T, stack *galleryStack, n int) (uuid.UUID, []string) {
	t.Helper()
	ctx := context.Background()

	ev, err := eventDomain.NewEvent("Spring Run", time.Now().UTC(), "")
	require.NoError(t, err)
	require.NoError(t, stack.EventRepo.Save(ctx, ev))

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		key := fmt.Sprintf("events/%s/originals/%d.jpg", ev.ID(), i)
		p, err := photoDomain.NewPhoto(id, ev.ID(),
			"http://cdn.test/"+key, key,
			fmt.Sprintf("http://cdn.test/events/%s/previews/%d.jpg", ev.ID(), i),
			fmt.Sprintf("IMG_%04d.jpg", i), 1000, nil)
		require.NoError(t, err)
		require.NoError(t, stack.Photos.Save(ctx, p))
		ids = append(ids, id.String())
	}
	return ev.ID(), ids
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForOrderStatus polls the orders table until the status matches.
func waitForOrderStatus(t *testing.T, db *gorm.DB, orderID uuid.UUID, expectedStatus string, timeout time.Duration) repository.OrderModel {
	t.Helper()
	var result repository.OrderModel
	require.Eventually(t, func() bool {
		var model repository.OrderModel
		if err := db.Where("id = ?", orderID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "order did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	time.Sleep(1 * time.Second)
}
