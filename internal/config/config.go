// Package config содержит логику чтения конфигурации сервисов конвейера.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации всех сервисов конвейера:
// HTTP-сервиса заказов, агрегатора потока событий и обработчика платежей.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	MetricsAddress    string        `env:"METRICS_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	RedisAddress      string        `env:"REDIS_ADDRESS"`
	KafkaBrokers      string        `env:"KAFKA_BROKERS"`
	OrderEventsTopic  string        `env:"ORDER_EVENTS_TOPIC"`
	PaymentQueueTopic string        `env:"PAYMENT_QUEUE_TOPIC"`
	PaymentGroup      string        `env:"PAYMENT_CONSUMER_GROUP"`
	StartFrom         string        `env:"START_FROM"`
	PollInterval      time.Duration `env:"POLL_INTERVAL"`
	BatchSize         int           `env:"BATCH_SIZE"`
	Environment       string        `env:"ENVIRONMENT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.MetricsAddress, "m", "localhost:9100", "address and port for metrics endpoint")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "c", "localhost:6379", "redis address for the fast order store")
	flag.StringVar(&cfg.KafkaBrokers, "k", "localhost:9092", "comma-separated kafka bootstrap brokers")
	flag.StringVar(&cfg.OrderEventsTopic, "order-events-topic", "order-events", "topic for order events")
	flag.StringVar(&cfg.PaymentQueueTopic, "payment-queue-topic", "payment-queue", "topic for payment messages")
	flag.StringVar(&cfg.PaymentGroup, "payment-group", "payment-processor", "consumer group for the payment processor")
	flag.StringVar(&cfg.StartFrom, "start-from", "latest", "stream start position: latest|earliest")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", 5*time.Second, "aggregator poll interval")
	flag.IntVar(&cfg.BatchSize, "batch-size", 100, "max records per partition read")
	flag.StringVar(&cfg.Environment, "e", "dev", "environment name for metrics dimensions")

	flag.Parse()

	applyEnvOverrides(cfg, envCfg)

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.StartFrom != "latest" && cfg.StartFrom != "earliest" {
		return nil, fmt.Errorf("invalid start-from %q: expected latest or earliest", cfg.StartFrom)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}

	return cfg, nil
}

// applyEnvOverrides восстанавливает значения из переменных окружения:
// они имеют приоритет над значениями флагов.
func applyEnvOverrides(cfg *Config, envCfg Config) {
	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.MetricsAddress != "" {
		cfg.MetricsAddress = envCfg.MetricsAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if envCfg.KafkaBrokers != "" {
		cfg.KafkaBrokers = envCfg.KafkaBrokers
	}
	if envCfg.OrderEventsTopic != "" {
		cfg.OrderEventsTopic = envCfg.OrderEventsTopic
	}
	if envCfg.PaymentQueueTopic != "" {
		cfg.PaymentQueueTopic = envCfg.PaymentQueueTopic
	}
	if envCfg.PaymentGroup != "" {
		cfg.PaymentGroup = envCfg.PaymentGroup
	}
	if envCfg.StartFrom != "" {
		cfg.StartFrom = envCfg.StartFrom
	}
	if envCfg.PollInterval != 0 {
		cfg.PollInterval = envCfg.PollInterval
	}
	if envCfg.BatchSize != 0 {
		cfg.BatchSize = envCfg.BatchSize
	}
	if envCfg.Environment != "" {
		cfg.Environment = envCfg.Environment
	}
}

// Brokers возвращает список kafka-брокеров из строки конфигурации.
func (c *Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
