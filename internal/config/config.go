package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN           string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL           string `env:"RABBITMQ_URL,required=true"`
	RedisURL              string `env:"REDIS_URL,required=true"`
	AlertWebhookURL       string `env:"ALERT_WEBHOOK_URL"`
	QueuePartitions       int    `env:"QUEUE_PARTITIONS,default=4"`
	DeliveryLimit         int    `env:"DELIVERY_LIMIT,default=5"`
	HardDeleteMaxAttempts int    `env:"HARD_DELETE_MAX_ATTEMPTS,default=3"`
	RetentionDays         int    `env:"RETENTION_DAYS,default=7"`
	StatusCacheTTLSeconds int    `env:"STATUS_CACHE_TTL_SECONDS,default=30"`
	APIPort               int    `env:"API_PORT,default=8080"`
	LogLevel              string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
