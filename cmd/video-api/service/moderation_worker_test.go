package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/cmd/video-api/repository"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type moderationFixture struct {
	store  *FlakyStore
	repo   *repository.MemoryVideoRepository
	cls    *MockClassifier
	queue  *RecordingQueue
	worker *ModerationWorker
}

func newModerationFixture(claims Claimer) *moderationFixture {
	f := &moderationFixture{
		store: newFlakyStore(),
		repo:  repository.NewMemoryVideoRepository(),
		cls:   &MockClassifier{},
		queue: &RecordingQueue{},
	}
	f.worker = NewModerationWorker(f.queue, f.cls, f.repo, f.store, claims,
		config.ClassifierConfig{Timeout: time.Minute},
		config.UploadConfig{RecoveryGrace: time.Minute},
		logger.Discard())
	return f
}

func (f *moderationFixture) pending(t *testing.T, owner string) *models.Video {
	t.Helper()
	video := seedVideo(t, f.store, f.repo, owner)
	_, err := f.repo.UpdateModerationState(context.Background(), video.ID, models.ModerationClean, models.ModerationPending)
	require.NoError(t, err)
	return video
}

func TestModerate_ResolvesPending(t *testing.T) {
	f := newModerationFixture(nil)
	f.cls.flagged = true
	video := f.pending(t, "alice")

	require.NoError(t, f.worker.Moderate(context.Background(), video.ID))

	got, err := f.repo.FindByID(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationFlagged, got.ModerationState)
}

func TestModerate_SkipsResolvedAndMissing(t *testing.T) {
	f := newModerationFixture(nil)
	video := seedVideo(t, f.store, f.repo, "alice")

	require.NoError(t, f.worker.Moderate(context.Background(), video.ID))
	require.NoError(t, f.worker.Moderate(context.Background(), "6f1c2a8e-8c1e-4c55-9a57-1d4a0d1d2b3c"))
	assert.Zero(t, f.cls.calls())
}

func TestModerate_FailureDiscardsBlobThenRecord(t *testing.T) {
	f := newModerationFixture(nil)
	f.cls.err = errClassifierDown
	video := f.pending(t, "alice")

	require.NoError(t, f.worker.Moderate(context.Background(), video.ID))

	assert.Zero(t, f.store.Len())
	_, err := f.repo.FindByID(context.Background(), video.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestModerate_FailureWithBlobDeleteFailureKeepsPending(t *testing.T) {
	f := newModerationFixture(nil)
	f.cls.err = errClassifierDown
	f.store.failDelete = true
	video := f.pending(t, "alice")

	require.NoError(t, f.worker.Moderate(context.Background(), video.ID))

	got, err := f.repo.FindByID(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationPending, got.ModerationState)
	assert.Equal(t, 1, f.store.Len())
}

func TestModerate_ShutdownLeavesPending(t *testing.T) {
	f := newModerationFixture(nil)
	f.cls.err = errors.New("context canceled")
	video := f.pending(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.worker.Moderate(ctx, video.ID)
	assert.ErrorIs(t, err, context.Canceled)

	got, err := f.repo.FindByID(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationPending, got.ModerationState)
}

func TestModerate_ClaimedElsewhere(t *testing.T) {
	claims := &MockClaimer{}
	f := newModerationFixture(claims)
	video := f.pending(t, "alice")

	_, err := claims.SetNX(context.Background(), "moderation:claim:"+video.ID, "other", time.Minute)
	require.NoError(t, err)

	require.NoError(t, f.worker.Moderate(context.Background(), video.ID))
	assert.Zero(t, f.cls.calls())
}

func TestModerate_ReleasesClaim(t *testing.T) {
	claims := &MockClaimer{}
	f := newModerationFixture(claims)
	video := f.pending(t, "alice")

	require.NoError(t, f.worker.Moderate(context.Background(), video.ID))
	assert.Equal(t, 1, claims.release)
	assert.Empty(t, claims.held)
}

func TestRecover_RepublishesStalePending(t *testing.T) {
	f := newModerationFixture(nil)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	f.repo.SetClock(func() time.Time { return base })
	stale := f.pending(t, "alice")
	f.repo.SetClock(func() time.Time { return base.Add(5 * time.Minute) })
	fresh := f.pending(t, "bob")

	// grace is one minute, so only the older record is due
	f.worker.now = func() time.Time { return base.Add(5*time.Minute + 30*time.Second) }
	require.NoError(t, f.worker.Recover(context.Background()))

	require.Len(t, f.queue.messages, 1)
	assert.Equal(t, queue.TopicModeration, f.queue.messages[0].Topic)

	var m ModerationMessage
	require.NoError(t, json.Unmarshal(f.queue.messages[0].Value, &m))
	assert.Equal(t, stale.ID, m.VideoID)
	assert.NotEqual(t, fresh.ID, m.VideoID)
}

func TestRecover_PagesPastFullBatches(t *testing.T) {
	f := newModerationFixture(nil)
	f.worker.batchSize = 2
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	want := make(map[string]bool)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		f.repo.SetClock(func() time.Time { return at })
		want[f.pending(t, fmt.Sprintf("owner-%d", i)).ID] = true
	}

	f.worker.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, f.worker.Recover(context.Background()))

	published := make(map[string]bool)
	for _, msg := range f.queue.messages {
		published[msg.Key] = true
	}
	assert.Equal(t, want, published)
	assert.Len(t, f.queue.messages, 5)
}

func TestModerationWorker_EndToEnd(t *testing.T) {
	f := newModerationFixture(nil)
	q := queue.NewMemoryQueue(logger.Discard())
	defer q.Close()
	f.worker.queue = q

	ingest := NewIngestionService(f.store, f.cls, f.repo, &RecordingCleaner{}, q,
		testStoreConfig, testUploadConfig, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.worker.Start(ctx))

	video, err := ingest.Submit(ctx, clipRequest("alice"), nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := f.repo.FindByID(ctx, video.ID)
		return err == nil && got.ModerationState == models.ModerationClean
	}, 2*time.Second, 5*time.Millisecond)
}
