package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/cmd/video-api/repository"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/classifier"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/objectstore"
	"github.com/pulse/vidmod/common/queue"
)

const testBucket = "videos-test"

var (
	testStoreConfig  = config.ObjectStoreConfig{Bucket: testBucket, Scheme: "gs", Prefix: "videos"}
	testUploadConfig = config.UploadConfig{MaxBytes: 1 << 20, SignedURLTTL: time.Hour}
)

// MockClassifier returns a fixed verdict or error and records the URIs it saw
type MockClassifier struct {
	mu      sync.Mutex
	flagged bool
	err     error
	uris    []string
}

func (m *MockClassifier) Classify(ctx context.Context, uri string, opts ...classifier.ClassifyOption) (*classifier.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uris = append(m.uris, uri)
	if m.err != nil {
		return nil, m.err
	}
	return &classifier.Verdict{JobID: "job-1", Flagged: m.flagged}, nil
}

func (m *MockClassifier) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uris)
}

// FlakyStore wraps the memory store with switchable failures
type FlakyStore struct {
	*objectstore.MemoryStore
	failPut    bool
	failDelete bool
	signed     int
}

func newFlakyStore() *FlakyStore {
	return &FlakyStore{
		MemoryStore: objectstore.NewMemoryStore("gs", testBucket, "http://blobs.local/blobs", []byte("test-secret")),
	}
}

func (s *FlakyStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.failPut {
		return "", apperrors.New(apperrors.KindStorageWrite, "test.Put", "quota exceeded")
	}
	return s.MemoryStore.Put(ctx, key, data, contentType)
}

func (s *FlakyStore) Delete(ctx context.Context, uri string) bool {
	if s.failDelete {
		return false
	}
	return s.MemoryStore.Delete(ctx, uri)
}

func (s *FlakyStore) SignedAccessURL(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	s.signed++
	return s.MemoryStore.SignedAccessURL(ctx, uri, ttl)
}

// FlakyRepository fails inserts on demand
type FlakyRepository struct {
	*repository.MemoryVideoRepository
	failInsert bool
}

func (r *FlakyRepository) Insert(ctx context.Context, video *models.Video) error {
	if r.failInsert {
		return apperrors.New(apperrors.KindInternal, "test.Insert", "connection reset")
	}
	return r.MemoryVideoRepository.Insert(ctx, video)
}

// RecordingCleaner remembers orphaned blobs instead of deleting them
type RecordingCleaner struct {
	mu      sync.Mutex
	uris    []string
	reasons []string
}

func (c *RecordingCleaner) Cleanup(ctx context.Context, uri, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uris = append(c.uris, uri)
	c.reasons = append(c.reasons, reason)
}

// RecordingQueue captures published messages
type RecordingQueue struct {
	mu        sync.Mutex
	messages  []queue.Message
	err       error
	subscribe []string
}

func (q *RecordingQueue) Publish(ctx context.Context, topic, key string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, queue.Message{Topic: topic, Key: key, Value: message})
	return nil
}

func (q *RecordingQueue) Subscribe(ctx context.Context, topic string, handler queue.MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribe = append(q.subscribe, topic)
	return nil
}

func (q *RecordingQueue) Close() error { return nil }

// MockClaimer grants each key once
type MockClaimer struct {
	mu      sync.Mutex
	held    map[string]bool
	err     error
	release int
}

func (c *MockClaimer) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.held == nil {
		c.held = make(map[string]bool)
	}
	if c.held[key] {
		return false, nil
	}
	c.held[key] = true
	return true, nil
}

func (c *MockClaimer) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.held, k)
	}
	c.release++
	return nil
}

var errClassifierDown = apperrors.Wrap(apperrors.KindClassification, "test.Classify", "classification timed out", errors.New("deadline exceeded"))
