package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pulse/vidmod/cmd/video-api/middleware"
	"github.com/pulse/vidmod/cmd/video-api/repository"
	"github.com/pulse/vidmod/cmd/video-api/service"
	"github.com/pulse/vidmod/common/bootstrap"
	"github.com/pulse/vidmod/common/classifier"
	"github.com/pulse/vidmod/common/objectstore"
	"github.com/pulse/vidmod/common/ratelimit"
	"github.com/pulse/vidmod/common/worker"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Store      objectstore.Store
	Classifier classifier.Classifier
	Identity   middleware.IdentityProvider

	// Repositories
	VideoRepo repository.VideoRepository

	// Rate limiting (nil when disabled)
	RateLimiter  *ratelimit.RateLimiter
	UploadPolicy ratelimit.Policy

	// Services
	Orphans          *worker.OrphanSweeper
	IngestionService *service.IngestionService
	VideoService     *service.VideoService
	AccessService    *service.AccessService
	ModerationWorker *service.ModerationWorker
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	store, err := objectstore.New(ctx, cfg.ObjectStore, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	policy, err := classifier.NewPolicy(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create moderation policy: %w", err)
	}
	cls := classifier.NewClient(cfg.Classifier, policy, &http.Client{Timeout: cfg.Classifier.RequestTimeout}, log)

	identity, err := middleware.NewIdentityProvider(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	videoRepo, err := NewVideoRepository(components)
	if err != nil {
		return nil, err
	}

	// Initialize services (bottom-up: dependencies first)
	orphans := worker.NewOrphanSweeper(components.Queue, store, videoRepo, cfg.Cleanup, log)
	ingestion := service.NewIngestionService(store, cls, videoRepo, orphans, components.Queue, cfg.ObjectStore, cfg.Upload, log)
	videos := service.NewVideoService(videoRepo, store, components.Cache, log)
	access := service.NewAccessService(videoRepo, store, components.Cache, cfg.Upload.SignedURLTTL, log)

	var claims service.Claimer
	if components.Redis != nil {
		claims = components.Redis
	}
	moderation := service.NewModerationWorker(components.Queue, cls, videoRepo, store, claims, cfg.Classifier, cfg.Upload, log)

	c := &Container{
		Components:       components,
		Store:            store,
		Classifier:       cls,
		Identity:         identity,
		VideoRepo:        videoRepo,
		UploadPolicy:     ratelimit.UploadPolicyFromConfig(cfg.RateLimit),
		Orphans:          orphans,
		IngestionService: ingestion,
		VideoService:     videos,
		AccessService:    access,
		ModerationWorker: moderation,
	}

	if cfg.RateLimit.Enabled && components.Redis != nil {
		c.RateLimiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
	}

	return c, nil
}

// NewVideoRepository picks the metadata store for the configured backend
func NewVideoRepository(components *bootstrap.Components) (repository.VideoRepository, error) {
	cfg := components.Config

	switch cfg.Metadata.Backend {
	case "postgres":
		if components.DB == nil {
			return nil, fmt.Errorf("postgres metadata backend requires a database")
		}
		return repository.NewPostgresVideoRepository(components.DB), nil
	case "mongo":
		if components.Mongo == nil {
			return nil, fmt.Errorf("mongo metadata backend requires a mongo client")
		}
		return repository.NewMongoVideoRepository(components.Mongo.Collection()), nil
	case "memory":
		components.Logger.Warn("using in-memory metadata store, records are lost on restart")
		return repository.NewMemoryVideoRepository(), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend: %s", cfg.Metadata.Backend)
	}
}

// StartWorkers starts the orphan sweeper and, when enabled, the moderation worker
func (c *Container) StartWorkers(ctx context.Context) error {
	if err := c.Orphans.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orphan sweeper: %w", err)
	}

	if c.Components.Config.Upload.AsyncEnabled {
		if err := c.ModerationWorker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start moderation worker: %w", err)
		}
	}
	return nil
}
