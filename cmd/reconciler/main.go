package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulse/vidmod/cmd/video-api/container"
	"github.com/pulse/vidmod/common/bootstrap"
	"github.com/pulse/vidmod/common/objectstore"
	"github.com/pulse/vidmod/common/worker"
)

const serviceName = "reconciler"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The sweep only needs the metadata store and the blob store
	components, err := bootstrap.Setup(ctx, serviceName,
		bootstrap.WithoutRedis(),
		bootstrap.WithoutQueue(),
		bootstrap.WithoutCache(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap %s: %v\n", serviceName, err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	cfg := components.Config
	log := components.Logger

	// a process-local metadata store has no records, every blob would look orphaned
	if cfg.Metadata.Backend == "memory" && !cfg.Cleanup.DryRun {
		log.Error("refusing to reconcile against the in-memory metadata store without RECONCILE_DRY_RUN")
		os.Exit(1)
	}

	repo, err := container.NewVideoRepository(components)
	if err != nil {
		log.Error("failed to create video repository", "error", err)
		os.Exit(1)
	}

	store, err := objectstore.New(ctx, cfg.ObjectStore, log)
	if err != nil {
		log.Error("failed to create object store", "error", err)
		os.Exit(1)
	}

	reconciler := worker.NewReconciler(store, repo, cfg.ObjectStore.Prefix, cfg.Cleanup, log)

	log.Info("reconciler starting",
		"bucket", cfg.ObjectStore.Bucket,
		"prefix", cfg.ObjectStore.Prefix,
		"grace_period", cfg.Cleanup.GracePeriod,
		"interval", cfg.Cleanup.SweepInterval,
		"dry_run", cfg.Cleanup.DryRun)

	start := time.Now()
	if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("reconciler failed", "error", err)
		os.Exit(1)
	}
	if components.Telemetry != nil {
		components.Telemetry.RecordDuration("reconcile", start)
	}

	log.Info("reconciler stopped")
}
