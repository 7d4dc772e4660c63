package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pulse/vidmod/common/logger"
	"github.com/segmentio/kafka-go"
)

// KafkaQueue publishes and consumes through Kafka topics.
// One writer is kept per topic and one consumer-group reader per subscription.
type KafkaQueue struct {
	brokers []string
	groupID string
	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	log     *logger.Logger
}

// NewKafkaQueue creates a queue backed by the given brokers
func NewKafkaQueue(brokers []string, groupID string, log *logger.Logger) (*KafkaQueue, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka queue requires at least one broker")
	}
	if groupID == "" {
		return nil, errors.New("kafka queue requires a consumer group id")
	}
	return &KafkaQueue{
		brokers: brokers,
		groupID: groupID,
		writers: make(map[string]*kafka.Writer),
		log:     log,
	}, nil
}

func (q *KafkaQueue) writer(topic string) (*kafka.Writer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	w, ok := q.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(q.brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		q.writers[topic] = w
	}
	return w, nil
}

// Publish writes one message keyed by key
func (q *KafkaQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	w, err := q.writer(topic)
	if err != nil {
		return err
	}

	if err := w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: message,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	q.log.Debug("kafka message published", "topic", topic, "key", key)
	return nil
}

// Subscribe starts a consumer-group reader for topic. Offsets are committed
// after the handler returns; handler errors are logged.
func (q *KafkaQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.brokers,
		GroupID:  q.groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	q.readers = append(q.readers, r)
	q.mu.Unlock()

	q.log.Info("kafka consumer started", "topic", topic, "group", q.groupID)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			msg, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					q.log.Info("kafka consumer stopped", "topic", topic)
					return
				}
				q.log.Warn("kafka fetch failed", "topic", topic, "error", err)
				time.Sleep(time.Second)
				continue
			}

			if err := handler(ctx, string(msg.Key), msg.Value); err != nil {
				q.log.Warn("message handler error", "topic", topic, "key", string(msg.Key), "error", err)
			}

			if err := r.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
				q.log.Warn("kafka commit failed", "topic", topic, "offset", msg.Offset, "error", err)
			}
		}
	}()

	return nil
}

// Close flushes writers and stops readers
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	writers := q.writers
	readers := q.readers
	q.mu.Unlock()

	var errs []error
	for topic, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
	}
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader %s: %w", r.Config().Topic, err))
		}
	}
	q.wg.Wait()

	return errors.Join(errs...)
}
