package queue

import (
	"context"
	"sync"

	"github.com/pulse/vidmod/common/logger"
)

// Topics used by the video service
const (
	TopicModeration   = "video.moderation"
	TopicBlobOrphaned = "blob.orphaned"
)

// Queue interface for message passing
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes messages
type MessageHandler func(ctx context.Context, key string, value []byte) error

const defaultWorkers = 8

// MemoryQueue is an in-process queue for single-replica deployments and tests.
// Each subscription drains its topic with a fixed pool of handler goroutines,
// so a slow handler holds one worker rather than the whole topic.
type MemoryQueue struct {
	topics  map[string]chan *Message
	workers int
	closed  bool
	mu      sync.RWMutex
	log     *logger.Logger
}

// MemoryOption configures a MemoryQueue
type MemoryOption func(*MemoryQueue)

// WithWorkers sets the handler pool size per subscription; n < 1 keeps the default
func WithWorkers(n int) MemoryOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// Message represents a queue message
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(log *logger.Logger, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		topics:  make(map[string]chan *Message),
		workers: defaultWorkers,
		log:     log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) topic(name string) chan *Message {
	ch, exists := q.topics[name]
	if !exists {
		ch = make(chan *Message, 1000) // Buffered channel
		q.topics[name] = ch
	}
	return ch
}

// Publish publishes a message to a topic
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	msg := &Message{
		Topic: topic,
		Key:   key,
		Value: message,
	}

	select {
	case q.topic(topic) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		q.log.Warn("queue full", "topic", topic)
		return ErrFull
	}
}

// Subscribe subscribes to a topic and processes messages
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	ch := q.topic(topic)
	q.mu.Unlock()

	q.log.Info("subscribing to topic", "topic", topic, "workers", q.workers)

	for i := 0; i < q.workers; i++ {
		go q.drain(ctx, topic, ch, handler)
	}

	return nil
}

func (q *MemoryQueue) drain(ctx context.Context, topic string, ch <-chan *Message, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				q.log.Warn("message handler error", "topic", topic, "key", msg.Key, "error", err)
			}
		}
	}
}

// Close closes the queue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for topic, ch := range q.topics {
		close(ch)
		q.log.Info("closed topic", "topic", topic)
	}

	return nil
}
