package messaging

import (
	"context"
	"fmt"

	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/logging/logger"
)

// New builds the notifier selected by cfg.Driver. Broker backends are
// wrapped in a BreakerNotifier.
func New(ctx context.Context, cfg *config.Notify, l *logger.Logger) (Notifier, error) {
	if cfg == nil || cfg.Driver == "" || cfg.Driver == "log" {
		return NewLogNotifier(l), nil
	}

	var (
		n   Notifier
		err error
	)
	switch cfg.Driver {
	case "kafka":
		n, err = NewKafkaNotifier(cfg.Kafka, cfg.Topic)
	case "rabbitmq":
		n, err = NewRabbitMQNotifier(cfg.RabbitMQ)
	case "redis":
		n, err = NewRedisNotifier(ctx, cfg.Redis, cfg.Topic)
	default:
		return nil, fmt.Errorf("messaging: unknown notify driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return NewBreakerNotifier(cfg.Driver, n, cfg.Breaker), nil
}
