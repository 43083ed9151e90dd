package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ncobase/runner/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQNotifier publishes notifications to a topic exchange with the event
// name as routing key.
type RabbitMQNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
	exchange string
}

// NewRabbitMQNotifier dials cfg.URL and declares the exchange.
func NewRabbitMQNotifier(cfg *config.RabbitMQ) (*RabbitMQNotifier, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("messaging: rabbitmq url is not configured")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to put channel in confirm mode: %w", err)
	}

	return &RabbitMQNotifier{
		conn:     conn,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		exchange: cfg.Exchange,
	}, nil
}

// Notify implements Notifier and waits for the broker confirmation.
func (r *RabbitMQNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := encode(&n)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn.IsClosed() {
		return errors.New("rabbitmq connection is not available")
	}

	err = r.ch.PublishWithContext(ctx,
		r.exchange,      // exchange
		string(n.Event), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.ID,
			Timestamp:    n.CreatedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirmed, ok := <-r.confirms:
		if !ok {
			return errors.New("confirmation channel closed")
		}
		if !confirmed.Ack {
			return errors.New("failed to receive publish confirmation")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish confirmation: %w", ctx.Err())
	}
}

// Close closes the channel and connection.
func (r *RabbitMQNotifier) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.ch.Close()
	return r.conn.Close()
}
