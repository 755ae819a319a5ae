package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eventsnap/service-gallery/internal/adapter"
	"github.com/eventsnap/service-gallery/internal/application"
	"github.com/eventsnap/service-gallery/internal/config"
	galleryEvents "github.com/eventsnap/service-gallery/internal/events"
	"github.com/eventsnap/service-gallery/internal/handler"
	"github.com/eventsnap/service-gallery/internal/ingest"
	"github.com/eventsnap/service-gallery/internal/repository"
	"github.com/eventsnap/service-gallery/internal/saga"
	"github.com/eventsnap/service-gallery/internal/watermark"
	"github.com/eventsnap/service-gallery/pkg/auth"
	"github.com/eventsnap/service-gallery/pkg/database"
	"github.com/eventsnap/service-gallery/pkg/health"
	"github.com/eventsnap/service-gallery/pkg/kafka"
	"github.com/eventsnap/service-gallery/pkg/logger"
	"github.com/eventsnap/service-gallery/pkg/middleware"
)

const serviceName = "service-gallery"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	migrate(db, cfg, zapLogger)

	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, 15*time.Minute, 7*24*time.Hour)

	// Kafka is optional; without brokers events are dropped.
	var publisher kafka.EventPublisher = kafka.NoopPublisher{}
	if len(cfg.KafkaConfig.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
		defer producer.Close()
		publisher = producer
	} else {
		zapLogger.Warn("no kafka brokers configured, events will not be published")
	}

	storage := newStorage(cfg, zapLogger)
	faces := newFaceIndexer(cfg, zapLogger)
	gateway := adapter.NewMockPaymentGateway(cfg.PaymentBaseURL, zapLogger)

	// Repositories
	eventRepo := repository.NewEventRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	couponRepo := repository.NewGormCouponRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Ingestion pipeline
	pipeline := ingest.NewPipeline(ingest.Config{
		Workers:   cfg.IngestConfig.Workers,
		QueueSize: cfg.IngestConfig.QueueSize,
		Watermark: watermark.Options{
			Text:         cfg.WatermarkConfig.Text,
			Opacity:      cfg.WatermarkConfig.Opacity,
			Angle:        cfg.WatermarkConfig.Angle,
			Spacing:      cfg.WatermarkConfig.Spacing,
			FontSize:     cfg.WatermarkConfig.FontSize,
			MaxDimension: cfg.WatermarkConfig.MaxDimension,
			MaxPixels:    cfg.WatermarkConfig.MaxPixels,
		},
	}, storage, faces, photoRepo, publisher, ingest.NewTracker(24*time.Hour), zapLogger)

	pipelineCtx, pipelineCancel := context.WithCancel(context.Background())
	defer pipelineCancel()
	pipeline.Start(pipelineCtx)

	// Application services
	checkoutSaga := saga.NewCheckoutSagaService(orderRepo, gateway, publisher, cfg.Currency, zapLogger)
	eventService := application.NewEventService(eventRepo, photoRepo, storage, pipeline, zapLogger)
	retrievalService := application.NewRetrievalService(eventRepo, photoRepo, faces, zapLogger)
	couponService := application.NewCouponService(couponRepo, zapLogger)
	orderService := application.NewOrderService(photoRepo, couponRepo, orderRepo, checkoutSaga, zapLogger)

	// Payment events consumer
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if len(cfg.KafkaConfig.Brokers) > 0 {
		paymentConsumer := galleryEvents.NewPaymentEventConsumer(
			cfg.KafkaConfig.Brokers,
			cfg.KafkaConfig.GroupPrefix+"gallery-service",
			orderService,
			zapLogger,
		)
		defer paymentConsumer.Close()

		go func() {
			zapLogger.Info("starting payment event consumer")
			if err := paymentConsumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
				zapLogger.Error("payment event consumer failed", zap.Error(err))
			}
		}()
	}

	// Setup Gin router
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = 32 << 20

	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	health.NewHandler(db, serviceName).RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	handler.NewEventHandler(eventService, retrievalService, cfg.IngestConfig.MaxUploadBytes).RegisterRoutes(apiV1, jwtManager)
	handler.NewCouponHandler(couponService).RegisterRoutes(apiV1, jwtManager)
	handler.NewOrderHandler(orderService).RegisterRoutes(apiV1, jwtManager)
	handler.NewAdminHandler(orderService).RegisterRoutes(apiV1, jwtManager)

	// Uploads are large, so the read timeout is generous.
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down " + serviceName + "...")

	consumerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	// Queued batches are recorded as cancelled; items already running finish.
	pipelineCancel()
	pipeline.Stop()

	zapLogger.Info(serviceName + " stopped")
}

func migrate(db *gorm.DB, cfg *config.ServiceConfig, logger *zap.Logger) {
	if cfg.AppEnv == "development" || cfg.DBConfig.Driver == "sqlite" {
		if err := db.AutoMigrate(repository.Models()...); err != nil {
			logger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		logger.Info("database migration completed (dev auto-migrate)")
		return
	}
	if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), cfg.MigrationsDir, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
}

func newStorage(cfg *config.ServiceConfig, logger *zap.Logger) adapter.StorageGateway {
	if cfg.StorageConfig.URL == "" {
		logger.Warn("STORAGE_URL not set, keeping photos in memory")
		return adapter.NewMemoryStorage("http://localhost" + cfg.Port + "/local")
	}
	return adapter.NewSupabaseStorage(cfg.StorageConfig.URL, cfg.StorageConfig.Key, cfg.StorageConfig.Bucket, logger)
}

func newFaceIndexer(cfg *config.ServiceConfig, logger *zap.Logger) adapter.FaceIndexer {
	if !cfg.FaceConfig.Enabled {
		logger.Warn("face indexing disabled")
		return adapter.DisabledFaceIndexer{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	indexer, err := adapter.NewRekognitionIndexer(ctx, cfg.FaceConfig.Region, cfg.FaceConfig.CollectionID, cfg.FaceConfig.Threshold, logger)
	if err != nil {
		logger.Fatal("failed to create face indexer", zap.Error(err))
	}
	if err := indexer.EnsureCollection(ctx); err != nil {
		logger.Warn("face collection not ready, photos will be indexed on re-index", zap.Error(err))
	}
	return indexer
}
