package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds deliverer configuration loaded from the environment.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	DatabaseURL       string
	NotificationTable string
	DeviceTable       string

	RedisURL      string
	TokenCacheTTL time.Duration

	RabbitURL           string
	IngestQueue         string
	DeadLetterQueue     string
	IngestExchange      string
	IngestRoutingKey    string
	PrefetchCount       int
	WorkerCount         int
	IngestMaxDeliveries int

	GatewayAddr     string
	GatewayCertFile string
	GatewayKeyFile  string
	DialTimeout     time.Duration
	WriteTimeout    time.Duration

	BatchInterval       time.Duration
	MaxDeliveryAttempts int

	ConnectMaxAttempts    int
	ConnectInitialBackoff time.Duration
	ConnectMaxBackoff     time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "apnsd"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8083"),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		NotificationTable: getEnv("NOTIFICATION_TABLE", "notifications"),
		DeviceTable:       getEnv("DEVICE_TABLE", "devices"),

		RedisURL:      getEnv("REDIS_URL", ""),
		TokenCacheTTL: getEnvAsDuration("TOKEN_CACHE_TTL", time.Hour),

		RabbitURL:           getEnv("RABBITMQ_URL", ""),
		IngestQueue:         getEnv("INGEST_QUEUE", "apns.queue"),
		DeadLetterQueue:     getEnv("INGEST_DLQ", "apns.failed.queue"),
		IngestExchange:      getEnv("INGEST_EXCHANGE", "notifications.direct"),
		IngestRoutingKey:    getEnv("INGEST_ROUTING_KEY", "apns"),
		PrefetchCount:       getEnvAsInt("INGEST_PREFETCH", 100),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 5),
		IngestMaxDeliveries: getEnvAsInt("INGEST_MAX_DELIVERIES", 5),

		GatewayAddr:     getEnv("GATEWAY_ADDR", "gateway.push.apple.com:2195"),
		GatewayCertFile: getEnv("GATEWAY_CERT_FILE", ""),
		GatewayKeyFile:  getEnv("GATEWAY_KEY_FILE", ""),
		DialTimeout:     getEnvAsDuration("GATEWAY_DIAL_TIMEOUT", 10*time.Second),
		WriteTimeout:    getEnvAsDuration("GATEWAY_WRITE_TIMEOUT", 5*time.Second),

		BatchInterval:       getEnvAsDuration("BATCH_INTERVAL", 30*time.Second),
		MaxDeliveryAttempts: getEnvAsInt("MAX_DELIVERY_ATTEMPTS", 1),

		ConnectMaxAttempts:    getEnvAsInt("CONNECT_MAX_ATTEMPTS", 5),
		ConnectInitialBackoff: getEnvAsDuration("CONNECT_INITIAL_BACKOFF", time.Second),
		ConnectMaxBackoff:     getEnvAsDuration("CONNECT_MAX_BACKOFF", 15*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.GatewayCertFile == "" {
		missing = append(missing, "GATEWAY_CERT_FILE")
	}
	if c.GatewayKeyFile == "" {
		missing = append(missing, "GATEWAY_KEY_FILE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
