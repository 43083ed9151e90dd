package config

import (
	"time"

	"github.com/spf13/viper"
)

// Notify configures where run notifications are published.
type Notify struct {
	Driver   string `json:"driver" yaml:"driver"` // log, kafka, rabbitmq, redis
	Topic    string `json:"topic" yaml:"topic"`
	Kafka    *Kafka
	RabbitMQ *RabbitMQ
	Redis    *Redis
	Breaker  *Breaker
}

// Kafka kafka config struct
type Kafka struct {
	Brokers        []string      `json:"brokers" yaml:"brokers"`
	PublishTimeout time.Duration `json:"publish_timeout" yaml:"publish_timeout"`
	RetryAttempts  int           `json:"retry_attempts" yaml:"retry_attempts"`
}

// RabbitMQ rabbitmq config struct
type RabbitMQ struct {
	URL      string `json:"url" yaml:"url"`
	Exchange string `json:"exchange" yaml:"exchange"`
}

// Redis redis config struct
type Redis struct {
	Addr     string `json:"addr" yaml:"addr"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Db       int    `json:"db" yaml:"db"`
}

// Breaker configures the circuit breaker around broker publishes.
type Breaker struct {
	MaxRequests      uint32        `json:"max_requests" yaml:"max_requests"`
	Interval         time.Duration `json:"interval" yaml:"interval"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
}

func getNotifyConfig(v *viper.Viper) *Notify {
	return &Notify{
		Driver: getStringOrDefault(v, "notify.driver", "log"),
		Topic:  getStringOrDefault(v, "notify.topic", "runner.notifications"),
		Kafka: &Kafka{
			Brokers:        v.GetStringSlice("notify.kafka.brokers"),
			PublishTimeout: getDurationOrDefault(v, "notify.kafka.publish_timeout", 10*time.Second),
			RetryAttempts:  getIntOrDefault(v, "notify.kafka.retry_attempts", 3),
		},
		RabbitMQ: &RabbitMQ{
			URL:      v.GetString("notify.rabbitmq.url"),
			Exchange: getStringOrDefault(v, "notify.rabbitmq.exchange", "runner"),
		},
		Redis: &Redis{
			Addr:     v.GetString("notify.redis.addr"),
			Username: v.GetString("notify.redis.username"),
			Password: v.GetString("notify.redis.password"),
			Db:       v.GetInt("notify.redis.db"),
		},
		Breaker: &Breaker{
			MaxRequests:      uint32(getIntOrDefault(v, "notify.breaker.max_requests", 1)),
			Interval:         getDurationOrDefault(v, "notify.breaker.interval", time.Minute),
			Timeout:          getDurationOrDefault(v, "notify.breaker.timeout", 30*time.Second),
			FailureThreshold: getIntOrDefault(v, "notify.breaker.failure_threshold", 5),
		},
	}
}
