package queue

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pulse/vidmod/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_PublishSubscribe(t *testing.T) {
	q := NewMemoryQueue(logger.Discard())
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	require.NoError(t, q.Subscribe(ctx, TopicModeration, func(ctx context.Context, key string, value []byte) error {
		got <- key + "=" + string(value)
		return nil
	}))

	require.NoError(t, q.Publish(ctx, TopicModeration, "vid-1", []byte(`{"video_id":"vid-1"}`)))

	select {
	case msg := <-got:
		assert.Equal(t, `vid-1={"video_id":"vid-1"}`, msg)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryQueue_SlowHandlerDoesNotBlockTopic(t *testing.T) {
	q := NewMemoryQueue(logger.Discard(), WithWorkers(2))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	defer close(release)
	got := make(chan string, 2)
	require.NoError(t, q.Subscribe(ctx, TopicBlobOrphaned, func(ctx context.Context, key string, value []byte) error {
		if key == "slow" {
			<-release
		}
		got <- key
		return nil
	}))

	require.NoError(t, q.Publish(ctx, TopicBlobOrphaned, "slow", nil))
	require.NoError(t, q.Publish(ctx, TopicBlobOrphaned, "fast", nil))

	select {
	case key := <-got:
		assert.Equal(t, "fast", key)
	case <-time.After(time.Second):
		t.Fatal("second message stuck behind a blocked handler")
	}
}

func TestMemoryQueue_WithWorkersIgnoresNonPositive(t *testing.T) {
	q := NewMemoryQueue(logger.Discard(), WithWorkers(0))
	defer q.Close()
	assert.Equal(t, defaultWorkers, q.workers)
}

func TestMemoryQueue_PublishAfterClose(t *testing.T) {
	q := NewMemoryQueue(logger.Discard())
	require.NoError(t, q.Publish(context.Background(), TopicBlobOrphaned, "k", []byte("v")))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), TopicBlobOrphaned, "k", []byte("v"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueue_Full(t *testing.T) {
	q := NewMemoryQueue(logger.Discard())
	defer q.Close()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Publish(ctx, "t", "k", nil))
	}
	assert.ErrorIs(t, q.Publish(ctx, "t", "k", nil), ErrFull)
}

// TestKafkaQueue_RoundTrip runs against a live broker when KAFKA_TEST_BROKERS is set
func TestKafkaQueue_RoundTrip(t *testing.T) {
	brokers := os.Getenv("KAFKA_TEST_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_TEST_BROKERS not set")
	}

	q, err := NewKafkaQueue(strings.Split(brokers, ","), "vidmod-test-"+uuid.NewString(), logger.Discard())
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "vidmod-test-" + uuid.NewString()
	require.NoError(t, q.Publish(ctx, topic, "k1", []byte("hello")))

	got := make(chan string, 1)
	require.NoError(t, q.Subscribe(ctx, topic, func(ctx context.Context, key string, value []byte) error {
		got <- string(value)
		return nil
	}))

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-ctx.Done():
		t.Fatal("kafka message not delivered")
	}
}

func TestNewKafkaQueue_Validates(t *testing.T) {
	_, err := NewKafkaQueue(nil, "g", logger.Discard())
	assert.Error(t, err)
	_, err = NewKafkaQueue([]string{"localhost:9092"}, "", logger.Discard())
	assert.Error(t, err)
}
