// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the memory store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StoreDriver is "postgres" or "memory".
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// StoreTimeout bounds every session store call (e.g. "3s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// Default session policy for tenants without configuration.
	SessionMaxHours       int `mapstructure:"SESSION_MAX_HOURS"`
	SessionMaxIdleMinutes int `mapstructure:"SESSION_MAX_IDLE_MINUTES"`
	SessionMaxPerDevice   int `mapstructure:"SESSION_MAX_PER_DEVICE"`
	SessionMaxTotal       int `mapstructure:"SESSION_MAX_TOTAL"`
	// FallbackSessionTTL caps the lifetime of sessions issued while the store is unavailable.
	FallbackSessionTTL string `mapstructure:"FALLBACK_SESSION_TTL"`
	// GeoLookupTimeout bounds a geolocation provider call.
	GeoLookupTimeout string `mapstructure:"GEO_LOOKUP_TIMEOUT"`

	// RedisURL enables the revocation cache when set (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, session events are produced to SessionEventsTopic.
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint enables OTLP export of traces, metrics and logs when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_DRIVER", "")
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("SESSION_MAX_HOURS", 24)
	v.SetDefault("SESSION_MAX_IDLE_MINUTES", 30)
	v.SetDefault("SESSION_MAX_PER_DEVICE", 1)
	v.SetDefault("SESSION_MAX_TOTAL", 0)
	v.SetDefault("FALLBACK_SESSION_TTL", "15m")
	v.SetDefault("GEO_LOOKUP_TIMEOUT", "500ms")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "session-events")
	v.SetDefault("KAFKA_GROUP_ID", "session-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverPostgres
		if cfg.DatabaseURL == "" {
			cfg.StoreDriver = StoreDriverMemory
		}
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return nil, errors.New("config: STORE_DRIVER must be postgres or memory")
	}

	if cfg.SessionMaxHours <= 0 {
		return nil, errors.New("config: SESSION_MAX_HOURS must be positive")
	}
	if cfg.SessionMaxIdleMinutes < 0 || cfg.SessionMaxPerDevice < 0 || cfg.SessionMaxTotal < 0 {
		return nil, errors.New("config: session limits must not be negative")
	}

	return &cfg, nil
}

// StoreTimeoutDuration parses StoreTimeout. Returns 3s if unset or invalid.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return parseDuration(c.StoreTimeout, 3*time.Second)
}

// FallbackTTL parses FallbackSessionTTL. Returns 15m if unset or invalid.
func (c *Config) FallbackTTL() time.Duration {
	return parseDuration(c.FallbackSessionTTL, 15*time.Minute)
}

// GeoTimeout parses GeoLookupTimeout. Returns 500ms if unset or invalid.
func (c *Config) GeoTimeout() time.Duration {
	return parseDuration(c.GeoLookupTimeout, 500*time.Millisecond)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event production is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
