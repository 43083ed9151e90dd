package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ncobase/runner/config"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes notifications on a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier connects to cfg.Addr and verifies the connection.
func NewRedisNotifier(ctx context.Context, cfg *config.Redis, channel string) (*RedisNotifier, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("messaging: redis addr is not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return NewRedisNotifierWithClient(client, channel), nil
}

// NewRedisNotifierWithClient wraps an existing client.
func NewRedisNotifierWithClient(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Notify implements Notifier.
func (r *RedisNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := encode(&n)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
