package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "github.com/GHOST-031/agrova-sub001/backend/pkg/aws"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/database"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port                  string
	Env                   string
	StoreDriver           string
	Postgres              database.PostgresConfig
	KafkaBrokers          []string
	OrderEventsTopic      string
	OrderSNSTopicArn      string
	PaymentEventsQueueURL string
	UserServiceURL        string
	ProductDetailsTable   string
	RateLimitPerMinute    int
	RateLimitBurst        int
	RequestTimeout        time.Duration
	AllowedOrigins        []string
	UseSecrets            bool
	ShipLogs              bool
	LogGroup              string
	LogRetentionDays      int
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8083"),
		Env:         getEnv("ENV", "development"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		Postgres: database.PostgresConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
		},
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic:      getEnv("ORDER_EVENTS_TOPIC", "order.events"),
		OrderSNSTopicArn:      os.Getenv("ORDER_SNS_TOPIC_ARN"),
		PaymentEventsQueueURL: os.Getenv("PAYMENT_EVENTS_QUEUE_URL"),
		UserServiceURL:        os.Getenv("USER_SERVICE_URL"),
		ProductDetailsTable:   os.Getenv("PRODUCT_DETAILS_TABLE"),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:        getEnvInt("RATE_LIMIT_BURST", 20),
		RequestTimeout:        getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGINS", "*")),
		UseSecrets:            os.Getenv("AWS_USE_SECRETS") == "true",
		ShipLogs:              os.Getenv("CLOUDWATCH_ENABLED") == "true",
		LogGroup:              os.Getenv("CLOUDWATCH_LOG_GROUP"),
		LogRetentionDays:      getEnvInt("CLOUDWATCH_LOG_RETENTION_DAYS", 30),
	}

	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// ApplySecrets overrides the database credentials with the values stored in
// Secrets Manager under order/DB_CREDENTIALS.
func (c *Config) ApplySecrets(ctx context.Context, sm *aws_pkg.SecretsClient) error {
	m, err := sm.GetJSONSecret(ctx, "order/DB_CREDENTIALS")
	if err != nil {
		return err
	}
	if v, ok := m["POSTGRES_USER"]; ok && v != "" {
		c.Postgres.User = v
	}
	if v, ok := m["POSTGRES_PASSWORD"]; ok && v != "" {
		c.Postgres.Password = v
	}
	if v, ok := m["POSTGRES_DB"]; ok && v != "" {
		c.Postgres.DBName = v
	}
	if v, ok := m["POSTGRES_HOST"]; ok && v != "" {
		c.Postgres.Host = v
	}
	if v, ok := m["POSTGRES_PORT"]; ok && v != "" {
		c.Postgres.Port = v
	}
	return nil
}

// Validate checks the settings the chosen store needs.
func (c *Config) Validate() error {
	if c.StoreDriver != StoreDriverPostgres {
		return nil
	}
	if c.Postgres.User == "" || c.Postgres.Password == "" || c.Postgres.DBName == "" || c.Postgres.Host == "" {
		return fmt.Errorf("database config incomplete")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
