package config

import (
	"github.com/eventsnap/service-gallery/pkg/config"
	"github.com/spf13/viper"
)

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	URL    string
	Key    string
	Bucket string
}

// FaceConfig holds face index provider configuration.
type FaceConfig struct {
	Enabled      bool
	Region       string
	CollectionID string
	Threshold    float64
}

// IngestConfig sizes the ingestion worker pool.
type IngestConfig struct {
	Workers        int
	QueueSize      int
	MaxUploadBytes int64
}

// WatermarkConfig controls preview rendering.
type WatermarkConfig struct {
	Text         string
	Opacity      float64
	Angle        float64
	Spacing      int
	FontSize     float64
	MaxDimension int
	MaxPixels    int
}

// ServiceConfig holds all configuration for the gallery service.
type ServiceConfig struct {
	Port            string
	AppEnv          string
	DBConfig        config.DatabaseConfig
	JWTConfig       config.JWTConfig
	KafkaConfig     config.KafkaConfig
	StorageConfig   StorageConfig
	FaceConfig      FaceConfig
	IngestConfig    IngestConfig
	WatermarkConfig WatermarkConfig
	Currency        string
	PaymentBaseURL  string
	MigrationsDir   string
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("gallery")
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	return &ServiceConfig{
		Port:            config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:          config.GetAppEnv(v),
		DBConfig:        config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:       config.LoadJWTConfig(v),
		KafkaConfig:     config.LoadKafkaConfig(v),
		StorageConfig:   loadStorageConfig(v),
		FaceConfig:      loadFaceConfig(v),
		IngestConfig:    loadIngestConfig(v),
		WatermarkConfig: loadWatermarkConfig(v),
		Currency:        v.GetString("CURRENCY"),
		PaymentBaseURL:  v.GetString("PAYMENT_BASE_URL"),
		MigrationsDir:   v.GetString("MIGRATIONS_DIR"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORAGE_BUCKET", "event-photos")
	v.SetDefault("FACE_ENABLED", false)
	v.SetDefault("FACE_REGION", "us-east-1")
	v.SetDefault("FACE_COLLECTION_ID", "event-faces")
	v.SetDefault("FACE_MATCH_THRESHOLD", 90.0)
	v.SetDefault("INGEST_WORKERS", 3)
	v.SetDefault("INGEST_QUEUE_SIZE", 64)
	v.SetDefault("INGEST_MAX_UPLOAD_BYTES", 512<<20)
	v.SetDefault("WATERMARK_TEXT", "PREVIEW")
	v.SetDefault("WATERMARK_OPACITY", 0.35)
	v.SetDefault("WATERMARK_ANGLE", -30.0)
	v.SetDefault("WATERMARK_SPACING", 120)
	v.SetDefault("WATERMARK_FONT_SIZE", 48.0)
	v.SetDefault("WATERMARK_MAX_DIMENSION", 1600)
	v.SetDefault("WATERMARK_MAX_PIXELS", 50_000_000)
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("PAYMENT_BASE_URL", "https://checkout.example.com/pay")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
}

func loadStorageConfig(v *viper.Viper) StorageConfig {
	return StorageConfig{
		URL:    v.GetString("STORAGE_URL"),
		Key:    v.GetString("STORAGE_KEY"),
		Bucket: v.GetString("STORAGE_BUCKET"),
	}
}

func loadFaceConfig(v *viper.Viper) FaceConfig {
	threshold := v.GetFloat64("FACE_MATCH_THRESHOLD")
	if threshold <= 0 || threshold > 100 {
		threshold = 90
	}
	return FaceConfig{
		Enabled:      v.GetBool("FACE_ENABLED"),
		Region:       v.GetString("FACE_REGION"),
		CollectionID: v.GetString("FACE_COLLECTION_ID"),
		Threshold:    threshold,
	}
}

func loadIngestConfig(v *viper.Viper) IngestConfig {
	workers := v.GetInt("INGEST_WORKERS")
	if workers <= 0 {
		workers = 3
	}
	queue := v.GetInt("INGEST_QUEUE_SIZE")
	if queue <= 0 {
		queue = 64
	}
	return IngestConfig{
		Workers:        workers,
		QueueSize:      queue,
		MaxUploadBytes: v.GetInt64("INGEST_MAX_UPLOAD_BYTES"),
	}
}

func loadWatermarkConfig(v *viper.Viper) WatermarkConfig {
	return WatermarkConfig{
		Text:         v.GetString("WATERMARK_TEXT"),
		Opacity:      v.GetFloat64("WATERMARK_OPACITY"),
		Angle:        v.GetFloat64("WATERMARK_ANGLE"),
		Spacing:      v.GetInt("WATERMARK_SPACING"),
		FontSize:     v.GetFloat64("WATERMARK_FONT_SIZE"),
		MaxDimension: v.GetInt("WATERMARK_MAX_DIMENSION"),
		MaxPixels:    v.GetInt("WATERMARK_MAX_PIXELS"),
	}
}
