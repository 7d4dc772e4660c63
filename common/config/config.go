package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration
type Config struct {
	Service     ServiceConfig
	Database    DatabaseConfig
	Mongo       MongoConfig
	Metadata    MetadataConfig
	ObjectStore ObjectStoreConfig
	Classifier  ClassifierConfig
	Auth        AuthConfig
	Upload      UploadConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
	Queue       QueueConfig
	Cleanup     CleanupConfig
	Telemetry   TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	SSLMode     string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MetadataConfig selects the metadata store backend
type MetadataConfig struct {
	Backend string // "postgres", "mongo" or "memory"
}

// ObjectStoreConfig holds blob store settings
type ObjectStoreConfig struct {
	Backend   string // "minio" or "memory"
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Scheme    string // URI scheme of stored blobs, e.g. "gs" or "s3"
	Prefix    string

	// memory backend only
	PublicURL  string
	SigningKey string
}

// ClassifierConfig holds content classifier settings
type ClassifierConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	PollInitial    time.Duration
	PollMax        time.Duration
	RequestTimeout time.Duration
	Threshold      string
	PolicyExpr     string
}

// AuthConfig holds identity provider settings
type AuthConfig struct {
	Mode      string // "jwt" or "header"
	JWTSecret string
}

// UploadConfig holds upload pipeline settings
type UploadConfig struct {
	MaxBytes      int64
	SignedURLTTL  time.Duration
	AsyncEnabled  bool
	RecoveryGrace time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// RateLimitConfig holds per-user upload limits
type RateLimitConfig struct {
	Enabled          bool
	UploadsPerWindow int64
	WindowSeconds    int
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool
	Backend    string // "memory" or "redis"
	DefaultTTL time.Duration
}

// QueueConfig holds message queue settings
type QueueConfig struct {
	Type    string // "memory" or "kafka"
	Brokers []string
	GroupID string
	Workers int // concurrent handlers per subscription (memory queue)
}

// CleanupConfig holds orphan cleanup and reconciliation settings
type CleanupConfig struct {
	DeleteTimeout time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
	GracePeriod   time.Duration
	DryRun        bool
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load(serviceName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "pulse"),
			User:        getEnv("POSTGRES_USER", "pulse"),
			Password:    getEnv("POSTGRES_PASSWORD", "pulse"),
			SSLMode:     getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGO_DB", "pulse_db"),
			Collection: getEnv("MONGO_COLLECTION", "videos"),
		},
		Metadata: MetadataConfig{
			Backend: getEnv("METADATA_BACKEND", "postgres"),
		},
		ObjectStore: ObjectStoreConfig{
			Backend:   getEnv("OBJECT_STORE_BACKEND", "minio"),
			Endpoint:  getEnv("OBJECT_STORE_ENDPOINT", "storage.googleapis.com"),
			AccessKey: getEnv("OBJECT_STORE_ACCESS_KEY", ""),
			SecretKey: getEnv("OBJECT_STORE_SECRET_KEY", ""),
			Region:    getEnv("OBJECT_STORE_REGION", "auto"),
			UseSSL:    getEnvBool("OBJECT_STORE_USE_SSL", true),
			Bucket:    getEnv("BUCKET_NAME", ""),
			Scheme:    getEnv("OBJECT_STORE_SCHEME", "gs"),
			Prefix:    getEnv("OBJECT_STORE_PREFIX", "videos"),

			PublicURL:  getEnv("OBJECT_STORE_PUBLIC_URL", "http://localhost:8080/blobs"),
			SigningKey: getEnv("OBJECT_STORE_SIGNING_KEY", "local-signing-key"),
		},
		Classifier: ClassifierConfig{
			BaseURL:        getEnv("CLASSIFIER_URL", "http://localhost:8090"),
			APIKey:         getEnv("CLASSIFIER_API_KEY", ""),
			Timeout:        getEnvDuration("CLASSIFIER_TIMEOUT", 180*time.Second),
			PollInitial:    getEnvDuration("CLASSIFIER_POLL_INITIAL", 3*time.Second),
			PollMax:        getEnvDuration("CLASSIFIER_POLL_MAX", 15*time.Second),
			RequestTimeout: getEnvDuration("CLASSIFIER_REQUEST_TIMEOUT", 30*time.Second),
			Threshold:      getEnv("MODERATION_THRESHOLD", "LIKELY"),
			PolicyExpr:     getEnv("MODERATION_POLICY", ""),
		},
		Auth: AuthConfig{
			Mode:      getEnv("AUTH_MODE", "jwt"),
			JWTSecret: getEnv("SECRET_KEY", ""),
		},
		Upload: UploadConfig{
			MaxBytes:      int64(getEnvInt("UPLOAD_MAX_BYTES", 512<<20)),
			SignedURLTTL:  getEnvDuration("SIGNED_URL_TTL", 60*time.Minute),
			AsyncEnabled:  getEnvBool("ASYNC_MODERATION_ENABLED", true),
			RecoveryGrace: getEnvDuration("ASYNC_RECOVERY_GRACE", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getEnvBool("RATE_LIMIT_ENABLED", false),
			UploadsPerWindow: int64(getEnvInt("RATE_LIMIT_UPLOADS", 10)),
			WindowSeconds:    getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 30*time.Minute),
		},
		Queue: QueueConfig{
			Type:    getEnv("QUEUE_TYPE", "memory"),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", serviceName),
			Workers: getEnvInt("QUEUE_WORKERS", 8),
		},
		Cleanup: CleanupConfig{
			DeleteTimeout: getEnvDuration("CLEANUP_DELETE_TIMEOUT", 10*time.Second),
			RetryInterval: getEnvDuration("CLEANUP_RETRY_INTERVAL", 30*time.Second),
			MaxAttempts:   getEnvInt("CLEANUP_MAX_ATTEMPTS", 5),
			SweepInterval: getEnvDuration("RECONCILE_INTERVAL", 1*time.Hour),
			GracePeriod:   getEnvDuration("RECONCILE_GRACE_PERIOD", 24*time.Hour),
			DryRun:        getEnvBool("RECONCILE_DRY_RUN", false),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	switch c.Metadata.Backend {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo uri is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown metadata backend: %s", c.Metadata.Backend)
	}

	switch c.ObjectStore.Backend {
	case "minio":
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("BUCKET_NAME is required")
		}
		if c.ObjectStore.Endpoint == "" {
			return fmt.Errorf("object store endpoint is required")
		}
	case "memory":
		if c.ObjectStore.Bucket == "" {
			c.ObjectStore.Bucket = "local"
		}
	default:
		return fmt.Errorf("unknown object store backend: %s", c.ObjectStore.Backend)
	}

	if c.ObjectStore.Scheme == "" {
		return fmt.Errorf("object store scheme is required")
	}

	if c.Auth.Mode == "jwt" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("SECRET_KEY is required for jwt auth mode")
	}
	if c.Auth.Mode != "jwt" && c.Auth.Mode != "header" {
		return fmt.Errorf("unknown auth mode: %s", c.Auth.Mode)
	}

	if c.Classifier.Timeout <= 0 {
		return fmt.Errorf("classifier timeout must be positive")
	}
	if c.Classifier.PollInitial <= 0 {
		return fmt.Errorf("classifier poll interval must be positive")
	}
	if c.Classifier.PollMax < c.Classifier.PollInitial {
		return fmt.Errorf("CLASSIFIER_POLL_MAX must be >= CLASSIFIER_POLL_INITIAL")
	}
	if c.Classifier.RequestTimeout <= 0 {
		return fmt.Errorf("classifier request timeout must be positive")
	}

	if c.Cleanup.DeleteTimeout <= 0 {
		return fmt.Errorf("cleanup delete timeout must be positive")
	}
	if c.Cleanup.MaxAttempts < 1 {
		return fmt.Errorf("CLEANUP_MAX_ATTEMPTS must be at least 1")
	}

	if c.RateLimit.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("rate limiting requires REDIS_ENABLED=true")
	}
	if c.Cache.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("redis cache backend requires REDIS_ENABLED=true")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// uploadWriteMargin covers the blob put, the record insert and writing the response
const uploadWriteMargin = 30 * time.Second

// UploadWriteTimeout is the longest a synchronous upload may hold its
// connection: the classification itself, the detached job cancel after a
// timeout, the inline orphan delete, plus margin.
func (c *Config) UploadWriteTimeout() time.Duration {
	return c.Classifier.Timeout + c.Classifier.RequestTimeout + c.Cleanup.DeleteTimeout + uploadWriteMargin
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
