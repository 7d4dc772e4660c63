package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pulse/vidmod/cmd/video-api/container"
	"github.com/pulse/vidmod/cmd/video-api/handlers"
	vidmw "github.com/pulse/vidmod/cmd/video-api/middleware"
	"github.com/pulse/vidmod/cmd/video-api/repository"
	"github.com/pulse/vidmod/cmd/video-api/routes"
	"github.com/pulse/vidmod/common/bootstrap"
	"github.com/pulse/vidmod/common/db"
	"github.com/pulse/vidmod/common/mongodb"
	"github.com/pulse/vidmod/common/server"
)

const serviceName = "video-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bootstrap common components (DB, logger, queue, cache, telemetry)
	components, err := bootstrap.Setup(ctx, serviceName,
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.NewPostgresVideoRepository(database).EnsureSchema(ctx)
		}),
		bootstrap.WithMongoInitHook(func(client *mongodb.Client) error {
			return repository.NewMongoVideoRepository(client.Collection()).EnsureIndexes(ctx)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap %s: %v\n", serviceName, err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		os.Exit(1)
	}

	if err := serviceContainer.StartWorkers(ctx); err != nil {
		components.Logger.Error("failed to start workers", "error", err)
		os.Exit(1)
	}

	e := setupEcho(components)
	setupMiddleware(e, components)
	setupHealthCheck(e, components)

	if err := registerRoutes(e, serviceContainer); err != nil {
		components.Logger.Error("failed to register routes", "error", err)
		os.Exit(1)
	}

	srv := server.New(serviceName, components.Config.Service.Port, e, components.Logger,
		// uploads hold the connection for the whole classification
		server.WithWriteTimeout(components.Config.UploadWriteTimeout()))
	if err := srv.Start(ctx); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho(components *bootstrap.Components) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.HTTPErrorHandler(components.Logger)
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(vidmw.RequestContext())

	if maxBytes := components.Config.Upload.MaxBytes; maxBytes > 0 {
		// multipart framing on top of the file itself
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", maxBytes/1024+1024)))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": serviceName,
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) error {
	routes.RegisterVideoRoutes(e, serviceContainer)
	return routes.RegisterBlobRoutes(e, serviceContainer)
}
