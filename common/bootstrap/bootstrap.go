package bootstrap

import (
	"context"
	"fmt"

	"github.com/pulse/vidmod/common/cache"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/db"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/mongodb"
	"github.com/pulse/vidmod/common/queue"
	rediscommon "github.com/pulse/vidmod/common/redis"
	"github.com/pulse/vidmod/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func(context.Context) error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
		"metadata_backend", cfg.Metadata.Backend,
	)

	// Any failure past this point releases what was already opened
	fail := func(err error) (*Components, error) {
		_ = components.Shutdown(ctx)
		return nil, err
	}

	// 3. Initialize metadata database
	if !options.skipDB {
		switch cfg.Metadata.Backend {
		case "postgres":
			components.Logger.Info("connecting to database")
			components.DB, err = db.New(ctx, cfg, components.Logger)
			if err != nil {
				return fail(fmt.Errorf("failed to connect to database: %w", err))
			}
			components.AddCleanup(func(context.Context) error {
				components.DB.Close()
				return nil
			})

			if options.dbInitHook != nil {
				components.Logger.Info("running database init hook")
				if err := options.dbInitHook(components.DB); err != nil {
					return fail(fmt.Errorf("database init hook failed: %w", err))
				}
			}

		case "mongo":
			components.Logger.Info("connecting to mongo")
			components.Mongo, err = mongodb.Connect(ctx, cfg.Mongo, components.Logger)
			if err != nil {
				return fail(fmt.Errorf("failed to connect to mongo: %w", err))
			}
			components.AddCleanup(components.Mongo.Close)

			if options.mongoInitHook != nil {
				components.Logger.Info("running mongo init hook")
				if err := options.mongoInitHook(components.Mongo); err != nil {
					return fail(fmt.Errorf("mongo init hook failed: %w", err))
				}
			}
		}
	}

	// 4. Initialize Redis (rate limiting, shared cache, worker claims)
	if !options.skipRedis && cfg.Redis.Enabled {
		components.Redis, err = rediscommon.Connect(ctx, cfg.Redis, components.Logger)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		components.AddCleanup(func(context.Context) error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 5. Initialize queue (if not skipped)
	if !options.skipQueue {
		components.Logger.Info("initializing queue", "type", cfg.Queue.Type)

		switch cfg.Queue.Type {
		case "memory":
			components.Queue = queue.NewMemoryQueue(components.Logger, queue.WithWorkers(cfg.Queue.Workers))
		case "kafka":
			components.Queue, err = queue.NewKafkaQueue(cfg.Queue.Brokers, cfg.Queue.GroupID, components.Logger)
			if err != nil {
				return fail(fmt.Errorf("failed to create kafka queue: %w", err))
			}
		default:
			return fail(fmt.Errorf("unknown queue type: %s", cfg.Queue.Type))
		}

		components.AddCleanup(func(context.Context) error {
			components.Logger.Info("closing queue")
			return components.Queue.Close()
		})
	}

	// 6. Initialize cache (if not skipped)
	if !options.skipCache && cfg.Cache.Enabled {
		components.Logger.Info("initializing cache", "backend", cfg.Cache.Backend)

		switch cfg.Cache.Backend {
		case "redis":
			if components.Redis == nil {
				return fail(fmt.Errorf("redis cache backend requires redis"))
			}
			components.Cache = cache.NewRedisCache(components.Redis, serviceName+":cache:")
		default:
			components.Cache = cache.NewMemoryCache(components.Logger)
		}

		components.AddCleanup(func(context.Context) error {
			return components.Cache.Close()
		})
	}

	// 7. Initialize telemetry (if not skipped)
	if !options.skipTelemetry && (cfg.Telemetry.EnablePprof || cfg.Telemetry.EnableMetrics) {
		components.Logger.Info("initializing telemetry")
		components.Telemetry = telemetry.New(
			cfg.Telemetry.PprofPort,
			cfg.Telemetry.MetricsPort,
			cfg.Telemetry.EnablePprof,
			cfg.Telemetry.EnableMetrics,
			components.Logger,
		)

		if err := components.Telemetry.Start(ctx); err != nil {
			// telemetry failures never block startup
			components.Logger.Warn("failed to start telemetry", "error", err)
		}
		components.AddCleanup(components.Telemetry.Stop)
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"mongo", components.Mongo != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
