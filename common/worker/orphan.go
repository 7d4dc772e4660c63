package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/metrics"
	"github.com/pulse/vidmod/common/queue"
)

// Orphan resolutions reported to metrics
const (
	ResolutionDeleted    = "deleted"
	ResolutionDeferred   = "deferred"
	ResolutionReferenced = "referenced"
	ResolutionAbandoned  = "abandoned"
)

// BlobDeleter removes blobs; false means the delete did not happen
type BlobDeleter interface {
	Delete(ctx context.Context, uri string) bool
}

// ReferenceChecker reports whether any record still points at a blob
type ReferenceChecker interface {
	ExistsByStorageURI(ctx context.Context, uri string) (bool, error)
}

// OrphanMessage is the payload published to queue.TopicBlobOrphaned
type OrphanMessage struct {
	StorageURI string    `json:"storage_uri"`
	Reason     string    `json:"reason"`
	Attempt    int       `json:"attempt"`
	NotBefore  time.Time `json:"not_before"`
}

// OrphanSweeper removes blobs that were uploaded but never recorded.
// Cleanup tries once inline; failures are retried from the queue with
// linear backoff until MaxAttempts, after which the reconciler owns them.
type OrphanSweeper struct {
	queue queue.Queue
	blobs BlobDeleter
	refs  ReferenceChecker
	cfg   config.CleanupConfig
	log   *logger.Logger
	now   func() time.Time
}

// NewOrphanSweeper creates a sweeper
func NewOrphanSweeper(q queue.Queue, blobs BlobDeleter, refs ReferenceChecker, cfg config.CleanupConfig, log *logger.Logger) *OrphanSweeper {
	return &OrphanSweeper{
		queue: q,
		blobs: blobs,
		refs:  refs,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// Cleanup attempts an immediate delete of uri and defers to the queue on
// failure. It runs on a context detached from the caller so a disconnected
// client never prevents cleanup.
func (s *OrphanSweeper) Cleanup(ctx context.Context, uri, reason string) {
	log := s.log.WithContext(ctx).WithFields(map[string]any{"uri": uri, "reason": reason})
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DeleteTimeout)
	defer cancel()

	resolution, err := s.attempt(ctx, uri)
	if err == nil && resolution != "" {
		metrics.RecordOrphan(resolution)
		log.Info("orphaned blob resolved", "resolution", resolution)
		return
	}
	if err != nil {
		log.Warn("orphan cleanup attempt failed", "error", err)
	}

	msg := OrphanMessage{
		StorageURI: uri,
		Reason:     reason,
		Attempt:    1,
		NotBefore:  s.now().Add(s.cfg.RetryInterval),
	}
	if err := s.publish(ctx, msg); err != nil {
		metrics.RecordOrphan(ResolutionAbandoned)
		log.Error("failed to schedule orphan cleanup, leaving blob for reconciler", "error", err)
		return
	}

	metrics.RecordOrphan(ResolutionDeferred)
	log.Warn("orphan cleanup deferred")
}

// Start subscribes to the orphan topic
func (s *OrphanSweeper) Start(ctx context.Context) error {
	return s.queue.Subscribe(ctx, queue.TopicBlobOrphaned, s.handle)
}

func (s *OrphanSweeper) handle(ctx context.Context, key string, value []byte) error {
	var msg OrphanMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode orphan message: %w", err)
	}
	if msg.StorageURI == "" {
		return fmt.Errorf("orphan message without storage uri")
	}

	if wait := msg.NotBefore.Sub(s.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	log := s.log.WithFields(map[string]any{
		"uri":     msg.StorageURI,
		"reason":  msg.Reason,
		"attempt": msg.Attempt,
	})

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.DeleteTimeout)
	resolution, err := s.attempt(attemptCtx, msg.StorageURI)
	cancel()

	if err == nil && resolution != "" {
		metrics.RecordOrphan(resolution)
		log.Info("orphaned blob resolved", "resolution", resolution)
		return nil
	}

	if msg.Attempt >= s.cfg.MaxAttempts {
		metrics.RecordOrphan(ResolutionAbandoned)
		log.Error("orphan cleanup exhausted retries, leaving blob for reconciler", "error", err)
		return nil
	}

	msg.Attempt++
	msg.NotBefore = s.now().Add(s.cfg.RetryInterval * time.Duration(msg.Attempt))
	if err := s.publish(ctx, msg); err != nil {
		metrics.RecordOrphan(ResolutionAbandoned)
		return fmt.Errorf("requeue orphan cleanup: %w", err)
	}
	log.Warn("orphan cleanup retry scheduled", "next_attempt", msg.Attempt)
	return nil
}

// attempt returns a resolution when the blob no longer needs cleanup
func (s *OrphanSweeper) attempt(ctx context.Context, uri string) (string, error) {
	referenced, err := s.refs.ExistsByStorageURI(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("check record reference: %w", err)
	}
	if referenced {
		return ResolutionReferenced, nil
	}
	if !s.blobs.Delete(ctx, uri) {
		return "", fmt.Errorf("blob delete failed")
	}
	return ResolutionDeleted, nil
}

func (s *OrphanSweeper) publish(ctx context.Context, msg OrphanMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.queue.Publish(ctx, queue.TopicBlobOrphaned, msg.StorageURI, payload)
}
