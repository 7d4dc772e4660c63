package service

import (
	"context"
	"encoding/json"
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

// Stage is a step of the ingestion pipeline
type Stage string

const (
	StageUploading   Stage = "uploading"
	StageClassifying Stage = "classifying"
	StageRecording   Stage = "recording"
	StageDone        Stage = "done"
)

// StageError reports the pipeline stage that failed. Unwrap exposes the
// kind-bearing cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ProgressFunc receives human-readable status as the pipeline advances.
// It is called from the goroutine running the upload.
type ProgressFunc func(stage Stage, message string)

// OrphanCleaner disposes of blobs that never got a record
type OrphanCleaner interface {
	Cleanup(ctx context.Context, uri, reason string)
}

// UploadRequest is one file submitted by an authenticated owner
type UploadRequest struct {
	Owner       string
	Description string
	Filename    string
	ContentType string
	Data        []byte
}

// ModerationMessage is published to queue.TopicModeration for async uploads
type ModerationMessage struct {
	VideoID string `json:"video_id"`
}

// IngestionService runs upload -> classify -> record
type IngestionService struct {
	store      objectstore.Store
	classifier classifier.Classifier
	repo       repository.VideoRepository
	orphans    OrphanCleaner
	queue      queue.Queue
	prefix     string
	maxBytes   int64
	log        *logger.Logger
}

// NewIngestionService creates the ingestion pipeline
func NewIngestionService(
	store objectstore.Store,
	cls classifier.Classifier,
	repo repository.VideoRepository,
	orphans OrphanCleaner,
	q queue.Queue,
	storeCfg config.ObjectStoreConfig,
	uploadCfg config.UploadConfig,
	log *logger.Logger,
) *IngestionService {
	return &IngestionService{
		store:      store,
		classifier: cls,
		repo:       repo,
		orphans:    orphans,
		queue:      q,
		prefix:     storeCfg.Prefix,
		maxBytes:   uploadCfg.MaxBytes,
		log:        log,
	}
}

// Upload stores the file, waits for a moderation verdict and records the
// video. It returns either a fully resolved video or a *StageError naming
// the failed stage; a blob left behind by a failure is handed to the
// orphan cleaner.
func (s *IngestionService) Upload(ctx context.Context, req UploadRequest, progress ProgressFunc) (*models.Video, error) {
	if err := s.validate(req); err != nil {
		metrics.RecordUpload("rejected", "")
		return nil, err
	}
	progress = safeProgress(ctx, progress)
	log := s.log.WithContext(ctx).WithOwner(req.Owner)

	uri, err := s.put(ctx, req, progress)
	if err != nil {
		log.Error("upload failed", "stage", StageUploading, "error", err)
		return nil, err
	}
	log = log.WithFields(map[string]any{"storage_uri": uri})

	progress(StageClassifying, "analyzing video content")
	started := time.Now()
	verdict, err := s.classifier.Classify(clients.WithUserID(ctx, req.Owner), uri,
		classifier.WithSubmitHook(func(jobID string) {
			progress(StageClassifying, "classification job "+jobID+" submitted")
		}),
		classifier.WithPollHook(func(attempt int, elapsed time.Duration) {
			progress(StageClassifying, fmt.Sprintf("still analyzing (%s elapsed)", elapsed.Round(time.Second)))
		}),
	)
	if err != nil {
		metrics.RecordClassification("error", time.Since(started))
		return nil, s.fail(ctx, log, StageClassifying, uri, "classification_failed", err)
	}
	state := models.StateForVerdict(verdict.Flagged)
	metrics.RecordClassification(string(state), time.Since(started))
	log.Info("classification resolved", "stage", StageClassifying, "moderation_state", state, "job_id", verdict.JobID)

	progress(StageRecording, "saving video details")
	video := &models.Video{
		Owner:           req.Owner,
		Description:     req.Description,
		StorageURI:      uri,
		ModerationState: state,
	}
	if err := s.repo.Insert(ctx, video); err != nil {
		return nil, s.fail(ctx, log, StageRecording, uri, "record_failed", err)
	}

	metrics.RecordUpload("success", "")
	log.WithVideoID(video.ID).Info("video recorded", "stage", StageDone, "moderation_state", state)
	progress(StageDone, "upload complete")
	return video, nil
}

// Submit stores the file and records it as pending; the moderation worker
// resolves the verdict later.
func (s *IngestionService) Submit(ctx context.Context, req UploadRequest, progress ProgressFunc) (*models.Video, error) {
	if err := s.validate(req); err != nil {
		metrics.RecordUpload("rejected", "")
		return nil, err
	}
	progress = safeProgress(ctx, progress)
	log := s.log.WithContext(ctx).WithOwner(req.Owner)

	uri, err := s.put(ctx, req, progress)
	if err != nil {
		log.Error("upload failed", "stage", StageUploading, "error", err)
		return nil, err
	}
	log = log.WithFields(map[string]any{"storage_uri": uri})

	progress(StageRecording, "saving video details")
	video := &models.Video{
		Owner:           req.Owner,
		Description:     req.Description,
		StorageURI:      uri,
		ModerationState: models.ModerationPending,
	}
	if err := s.repo.Insert(ctx, video); err != nil {
		return nil, s.fail(ctx, log, StageRecording, uri, "record_failed", err)
	}
	log = log.WithVideoID(video.ID)

	payload, _ := json.Marshal(ModerationMessage{VideoID: video.ID})
	if err := s.queue.Publish(ctx, queue.TopicModeration, video.ID, payload); err != nil {
		// the record stays pending and is picked up by the recovery pass
		log.Warn("failed to enqueue moderation, deferring to recovery", "error", err)
	}

	metrics.RecordUpload("accepted", "")
	log.Info("video accepted for moderation", "moderation_state", video.ModerationState)
	progress(StageDone, "upload accepted, moderation pending")
	return video, nil
}

func (s *IngestionService) validate(req UploadRequest) error {
	const op = "service.Upload"

	if req.Owner == "" {
		return apperrors.New(apperrors.KindUnauthenticated, op, "authentication required")
	}
	if req.Description == "" {
		return apperrors.New(apperrors.KindInvalidArgument, op, "description is required")
	}
	if len(req.Data) == 0 {
		return apperrors.New(apperrors.KindInvalidArgument, op, "file is empty")
	}
	if s.maxBytes > 0 && int64(len(req.Data)) > s.maxBytes {
		return apperrors.New(apperrors.KindInvalidArgument, op,
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxBytes))
	}
	return nil
}

func (s *IngestionService) put(ctx context.Context, req UploadRequest, progress ProgressFunc) (string, error) {
	progress(StageUploading, "uploading video")

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := objectstore.NewObjectKey(s.prefix, req.Owner, req.Filename)
	uri, err := s.store.Put(ctx, key, req.Data, contentType)
	if err != nil {
		metrics.RecordUpload("failed", string(StageUploading))
		return "", &StageError{Stage: StageUploading, Err: err}
	}

	s.log.WithContext(ctx).WithOwner(req.Owner).Info("blob stored",
		"stage", StageUploading, "storage_uri", uri, "size", len(req.Data))
	return uri, nil
}

// fail hands the blob to the orphan cleaner and wraps err with its stage
func (s *IngestionService) fail(ctx context.Context, log *logger.Logger, stage Stage, uri, reason string, err error) error {
	metrics.RecordUpload("failed", string(stage))
	log.Error("ingestion failed, cleaning up blob", "stage", stage, "error", err)
	s.orphans.Cleanup(ctx, uri, reason)
	return &StageError{Stage: stage, Err: err}
}

// safeProgress drops notifications once ctx is done and tolerates nil
func safeProgress(ctx context.Context, progress ProgressFunc) ProgressFunc {
	return func(stage Stage, message string) {
		if progress == nil || ctx.Err() != nil {
			return
		}
		progress(stage, message)
	}
}
