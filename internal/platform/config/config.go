package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	Admin          string
	Backend        string
	SignerAudience string
	LedgerGenesis  time.Time
	LedgerClose    time.Duration
	HashCacheTTL   time.Duration

	Log      LogConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string
	Level  string
}

// RedisConfig configures the redis storage backend.
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTimeout  time.Duration
}

// PostgresConfig configures the postgres backend and the event outbox.
type PostgresConfig struct {
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	Outbox         bool
	RelayInterval  time.Duration
	RelayBatchSize int
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string
}

// KafkaConfig configures event publication. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	Partitions  int32
	Replication int16
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	SampleRate  float64
	ServiceName string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:           envOr("REGISTRY_ADDR", ":8080"),
		Admin:          os.Getenv("REGISTRY_ADMIN"),
		Backend:        envOr("STORAGE_BACKEND", BackendMemory),
		SignerAudience: envOr("SIGNER_AUDIENCE", "wasm-registry"),
		Log: LogConfig{
			Format: envOr("LOG_FORMAT", "json"),
			Level:  envOr("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			KeyPrefix: envOr("REDIS_KEY_PREFIX", "registry:"),
		},
		Postgres: PostgresConfig{
			DSN:    os.Getenv("DATABASE_URL"),
			Outbox: os.Getenv("EVENT_OUTBOX") == "true",
		},
		SQLite: SQLiteConfig{
			Path: envOr("SQLITE_PATH", "registry.db"),
		},
		Kafka: KafkaConfig{
			TopicPrefix: envOr("KAFKA_TOPIC_PREFIX", "registry."),
		},
		Tracing: TracingConfig{
			Enabled:     os.Getenv("TRACING_ENABLED") == "true",
			Exporter:    envOr("TRACING_EXPORTER", "stdout"),
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: envOr("OTEL_SERVICE_NAME", "wasm-registry"),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.LedgerClose, err = durationEnv("LEDGER_CLOSE", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.HashCacheTTL, err = durationEnv("HASH_CACHE_TTL", 5*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = durationEnv("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.LockTimeout, err = durationEnv("REDIS_LOCK_TIMEOUT", 10*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.RelayInterval, err = durationEnv("OUTBOX_RELAY_INTERVAL", time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = intEnv("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = intEnv("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.MaxOpenConns, err = intEnv("DATABASE_MAX_OPEN_CONNS", 10); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.MaxIdleConns, err = intEnv("DATABASE_MAX_IDLE_CONNS", 5); err != nil {
		return Server{}, err
	}
	if cfg.Postgres.RelayBatchSize, err = intEnv("OUTBOX_RELAY_BATCH", 100); err != nil {
		return Server{}, err
	}
	partitions, err := intEnv("KAFKA_PARTITIONS", 1)
	if err != nil {
		return Server{}, err
	}
	cfg.Kafka.Partitions = int32(partitions)
	replication, err := intEnv("KAFKA_REPLICATION", 1)
	if err != nil {
		return Server{}, err
	}
	cfg.Kafka.Replication = int16(replication)

	if cfg.Tracing.SampleRate, err = floatEnv("TRACING_SAMPLE_RATE", 1.0); err != nil {
		return Server{}, err
	}
	if raw := os.Getenv("LEDGER_GENESIS"); raw != "" {
		if cfg.LedgerGenesis, err = time.Parse(time.RFC3339, raw); err != nil {
			return Server{}, fmt.Errorf("LEDGER_GENESIS: %w", err)
		}
	} else {
		cfg.LedgerGenesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Server) Validate() error {
	if c.Admin == "" {
		return fmt.Errorf("REGISTRY_ADMIN is required")
	}
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Backend)
	}
	if c.Postgres.Outbox && c.Backend != BackendPostgres {
		return fmt.Errorf("EVENT_OUTBOX requires the postgres backend")
	}
	if c.Postgres.Outbox && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("EVENT_OUTBOX requires KAFKA_BROKERS")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
