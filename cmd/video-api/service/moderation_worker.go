package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/cmd/video-api/repository"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/classifier"
	"github.com/pulse/vidmod/common/clients"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/metrics"
	"github.com/pulse/vidmod/common/objectstore"
	"github.com/pulse/vidmod/common/queue"
)

const recoveryBatchSize = 100

// Claimer grants a short exclusive claim on a key across replicas
type Claimer interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// ModerationWorker resolves pending videos published by IngestionService.Submit
type ModerationWorker struct {
	queue      queue.Queue
	classifier classifier.Classifier
	repo       repository.VideoRepository
	store      objectstore.Store
	claims     Claimer
	claimTTL   time.Duration
	grace      time.Duration
	batchSize  int
	log        *logger.Logger
	now        func() time.Time
}

// NewModerationWorker creates a worker. claims may be nil for single-replica deployments.
func NewModerationWorker(
	q queue.Queue,
	cls classifier.Classifier,
	repo repository.VideoRepository,
	store objectstore.Store,
	claims Claimer,
	classifierCfg config.ClassifierConfig,
	uploadCfg config.UploadConfig,
	log *logger.Logger,
) *ModerationWorker {
	return &ModerationWorker{
		queue:      q,
		classifier: cls,
		repo:       repo,
		store:      store,
		claims:     claims,
		claimTTL:   classifierCfg.Timeout + time.Minute,
		grace:      uploadCfg.RecoveryGrace,
		batchSize:  recoveryBatchSize,
		log:        log,
		now:        time.Now,
	}
}

// Start re-enqueues stale pending videos, subscribes to the moderation
// topic and keeps running recovery every grace period until ctx ends.
func (w *ModerationWorker) Start(ctx context.Context) error {
	if err := w.Recover(ctx); err != nil {
		w.log.Warn("moderation recovery failed", "error", err)
	}

	if err := w.queue.Subscribe(ctx, queue.TopicModeration, w.handle); err != nil {
		return fmt.Errorf("subscribe to %s: %w", queue.TopicModeration, err)
	}

	if w.grace > 0 {
		go func() {
			ticker := time.NewTicker(w.grace)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := w.Recover(ctx); err != nil {
						w.log.Warn("moderation recovery failed", "error", err)
					}
				}
			}
		}()
	}

	w.log.Info("moderation worker started", "recovery_grace", w.grace)
	return nil
}

// Recover publishes every video that has been pending longer than the
// grace period, a page at a time so records that keep failing at the head
// of the list never hide newer ones.
func (w *ModerationWorker) Recover(ctx context.Context) error {
	cutoff := w.now().Add(-w.grace)
	var (
		after *repository.PendingCursor
		total int
	)
	for {
		pending, err := w.repo.ListPending(ctx, cutoff, after, w.batchSize)
		if err != nil {
			return err
		}

		for _, video := range pending {
			payload, _ := json.Marshal(ModerationMessage{VideoID: video.ID})
			if err := w.queue.Publish(ctx, queue.TopicModeration, video.ID, payload); err != nil {
				return fmt.Errorf("re-enqueue video %s: %w", video.ID, err)
			}
		}
		total += len(pending)

		if len(pending) == 0 || len(pending) < w.batchSize || ctx.Err() != nil {
			break
		}
		after = repository.CursorAfter(pending[len(pending)-1])
	}

	if total > 0 {
		w.log.Info("re-enqueued pending videos", "count", total)
	}
	return ctx.Err()
}

func (w *ModerationWorker) handle(ctx context.Context, key string, value []byte) error {
	var msg ModerationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode moderation message: %w", err)
	}
	return w.Moderate(ctx, msg.VideoID)
}

// Moderate classifies one pending video and stores the verdict. On
// classification failure the blob is deleted, then the record, so no record
// survives pointing at an unclassified blob.
func (w *ModerationWorker) Moderate(ctx context.Context, videoID string) error {
	log := w.log.WithContext(ctx).WithVideoID(videoID)

	video, err := w.repo.FindByID(ctx, videoID)
	if errors.Is(err, apperrors.ErrNotFound) {
		log.Debug("video gone before moderation")
		return nil
	}
	if err != nil {
		return err
	}
	if video.ModerationState != models.ModerationPending {
		return nil
	}

	if w.claims != nil {
		claimKey := "moderation:claim:" + videoID
		acquired, err := w.claims.SetNX(ctx, claimKey, "1", w.claimTTL)
		if err != nil {
			log.Warn("claim unavailable, moderating anyway", "error", err)
		} else if !acquired {
			log.Debug("video already claimed by another worker")
			return nil
		} else {
			defer func() {
				_ = w.claims.Delete(context.WithoutCancel(ctx), claimKey)
			}()
		}
	}

	log = log.WithOwner(video.Owner).WithFields(map[string]any{"storage_uri": video.StorageURI})
	started := time.Now()
	verdict, err := w.classifier.Classify(clients.WithUserID(ctx, video.Owner), video.StorageURI)
	if err != nil {
		metrics.RecordClassification("error", time.Since(started))
		if ctx.Err() != nil {
			// shutting down; the record stays pending for recovery
			return ctx.Err()
		}
		return w.discard(ctx, log, video, err)
	}

	state := models.StateForVerdict(verdict.Flagged)
	metrics.RecordClassification(string(state), time.Since(started))

	updated, err := w.repo.UpdateModerationState(ctx, videoID, models.ModerationPending, state)
	if err != nil {
		return err
	}
	if !updated {
		log.Info("moderation already resolved or video deleted", "moderation_state", state)
		return nil
	}

	log.Info("moderation resolved", "moderation_state", state, "job_id", verdict.JobID)
	return nil
}

func (w *ModerationWorker) discard(ctx context.Context, log *logger.Logger, video *models.Video, cause error) error {
	log.Error("classification failed, discarding video", "error", cause)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if !w.store.Delete(ctx, video.StorageURI) {
		metrics.RecordDeletion("blob_failed")
		log.Warn("blob delete failed, video stays pending for retry")
		return nil
	}

	err := w.repo.Delete(ctx, video.ID, video.Owner)
	if err != nil && !errors.Is(err, apperrors.ErrNotFoundOrForbidden) {
		metrics.RecordDeletion("record_failed")
		return fmt.Errorf("delete unclassified video record: %w", err)
	}

	metrics.RecordDeletion("discarded")
	return nil
}
