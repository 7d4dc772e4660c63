package worker

import (
	"context"
	"strings"
	"time"

	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/metrics"
	"github.com/pulse/vidmod/common/objectstore"
)

// Reconciler decisions reported to metrics
const (
	ReconcileFresh       = "fresh"
	ReconcileReferenced  = "referenced"
	ReconcileDeleted     = "deleted"
	ReconcileWouldDelete = "would_delete"
	ReconcileFailed      = "failed"
)

// BlobLister lists and deletes blobs under a prefix
type BlobLister interface {
	BlobDeleter
	List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error)
}

// ReconcileReport summarises one pass
type ReconcileReport struct {
	Scanned    int
	Fresh      int
	Referenced int
	Deleted    int
	Failed     int
	DryRun     bool
}

// Reconciler deletes blobs under the video prefix that no record references.
// Blobs younger than the grace period are skipped, they may belong to an
// upload that is still being classified.
type Reconciler struct {
	blobs  BlobLister
	refs   ReferenceChecker
	prefix string
	cfg    config.CleanupConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler for blobs under prefix
func NewReconciler(blobs BlobLister, refs ReferenceChecker, prefix string, cfg config.CleanupConfig, log *logger.Logger) *Reconciler {
	// "videos" must not match "videos-archive/..."
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		prefix += "/"
	}
	return &Reconciler{
		blobs:  blobs,
		refs:   refs,
		prefix: prefix,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Run reconciles once, then every SweepInterval until ctx is done.
// A zero interval runs a single pass.
func (r *Reconciler) Run(ctx context.Context) error {
	if _, err := r.Reconcile(ctx); err != nil {
		return err
	}
	if r.cfg.SweepInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil {
				// listing failures are transient, try again next tick
				r.log.Error("reconcile pass failed", "error", err)
			}
		}
	}
}

// Reconcile runs a single pass over the prefix
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{DryRun: r.cfg.DryRun}
	log := r.log.WithFields(map[string]any{"prefix": r.prefix, "dry_run": r.cfg.DryRun})

	objects, err := r.blobs.List(ctx, r.prefix)
	if err != nil {
		return report, err
	}
	cutoff := r.now().Add(-r.cfg.GracePeriod)

	for _, obj := range objects {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++

		if obj.LastModified.After(cutoff) {
			report.Fresh++
			metrics.RecordReconcile(ReconcileFresh)
			continue
		}

		referenced, err := r.refs.ExistsByStorageURI(ctx, obj.URI)
		if err != nil {
			report.Failed++
			metrics.RecordReconcile(ReconcileFailed)
			log.Warn("reference check failed, skipping blob", "uri", obj.URI, "error", err)
			continue
		}
		if referenced {
			report.Referenced++
			metrics.RecordReconcile(ReconcileReferenced)
			continue
		}

		if r.cfg.DryRun {
			report.Deleted++
			metrics.RecordReconcile(ReconcileWouldDelete)
			log.Info("would delete unreferenced blob", "uri", obj.URI, "last_modified", obj.LastModified)
			continue
		}

		if !r.blobs.Delete(ctx, obj.URI) {
			report.Failed++
			metrics.RecordReconcile(ReconcileFailed)
			log.Warn("failed to delete unreferenced blob", "uri", obj.URI)
			continue
		}
		report.Deleted++
		metrics.RecordReconcile(ReconcileDeleted)
		log.Info("deleted unreferenced blob", "uri", obj.URI, "size", obj.Size)
	}

	log.Info("reconcile pass complete",
		"scanned", report.Scanned,
		"fresh", report.Fresh,
		"referenced", report.Referenced,
		"deleted", report.Deleted,
		"failed", report.Failed)
	return report, ctx.Err()
}
