package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/runner/config"
	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes notifications to a Kafka topic, keyed by job id.
type KafkaNotifier struct {
	writer  *kafka.Writer
	topic   string
	timeout time.Duration
	retries int
}

// NewKafkaNotifier returns a notifier writing to topic on cfg.Brokers.
func NewKafkaNotifier(cfg *config.Kafka, topic string) (*KafkaNotifier, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, errors.New("messaging: kafka brokers are not configured")
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
		topic:   topic,
		timeout: cfg.PublishTimeout,
		retries: cfg.RetryAttempts,
	}, nil
}

// Notify implements Notifier. Failed writes are retried with exponential
// backoff within the publish timeout.
func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := encode(&n)
	if err != nil {
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(n.JobID),
		Value: body,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(n.Event)},
		},
	}

	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= k.retries; attempt++ {
		err = k.writer.WriteMessages(timeoutCtx, msg)
		if err == nil {
			return nil
		}
		if timeoutCtx.Err() != nil {
			return fmt.Errorf("kafka publish timeout: %w", timeoutCtx.Err())
		}
		if attempt < k.retries {
			select {
			case <-time.After(backoff):
			case <-timeoutCtx.Done():
				return fmt.Errorf("kafka publish timeout: %w", timeoutCtx.Err())
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("failed to write message after %d attempts: %w", k.retries+1, err)
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
