package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Retry    RetryConfig
}

type ServerConfig struct {
	AppEnv   string
	GRPCPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
	AutoMigrate     bool
}

// RedisConfig backs the cross-process dedup guard. When disabled the
// in-process cache is used and duplicates are only caught per worker.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type RemoteConfig struct {
	BaseURL     string
	APIVersion  string
	Timeout     time.Duration
	MaxAttempts int
}

type SyncConfig struct {
	DedupTTL               time.Duration
	DeltaFallbackThreshold int
	DeletionMaxRatio       float64
	DeletionMinItems       int
	StaleRunningAfter      time.Duration
	UnauthorizedTTL        time.Duration
	VelocityMaxPeriodDays  int
	CatalogInterval        time.Duration
	CommittedInterval      time.Duration
	VelocityInterval       time.Duration
	TenantConcurrency      int
}

type RetryConfig struct {
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	MaxRetries          int
	ReplayInterval      time.Duration
	ReplayBatch         int
	RetentionDays       int
	FailedRetentionDays int
	CleanupInterval     time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			GRPCPort: getEnv("GRPC_PORT", ":8090"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_sync"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
			AutoMigrate:     getEnvBool("POSTGRES_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC_WEBHOOKS", "remote.webhooks"),
			GroupID: getEnv("KAFKA_GROUP_SYNC", "catalog-sync"),
		},
		Remote: RemoteConfig{
			BaseURL:     getEnv("REMOTE_BASE_URL", "https://connect.squareup.com"),
			APIVersion:  getEnv("REMOTE_API_VERSION", "2024-10-17"),
			Timeout:     getEnvDuration("REMOTE_TIMEOUT", 30*time.Second),
			MaxAttempts: getEnvInt("REMOTE_MAX_ATTEMPTS", 3),
		},
		Sync: SyncConfig{
			DedupTTL:               getEnvDuration("SYNC_DEDUP_TTL", 120*time.Second),
			DeltaFallbackThreshold: getEnvInt("SYNC_DELTA_FALLBACK_THRESHOLD", 100),
			DeletionMaxRatio:       getEnvFloat("SYNC_DELETION_MAX_RATIO", 0.5),
			DeletionMinItems:       getEnvInt("SYNC_DELETION_MIN_ITEMS", 10),
			StaleRunningAfter:      getEnvDuration("SYNC_STALE_RUNNING_AFTER", 30*time.Minute),
			UnauthorizedTTL:        getEnvDuration("SYNC_UNAUTHORIZED_TTL", time.Hour),
			VelocityMaxPeriodDays:  getEnvInt("SYNC_VELOCITY_MAX_PERIOD_DAYS", 365),
			CatalogInterval:        getEnvDuration("SYNC_CATALOG_INTERVAL", 6*time.Hour),
			CommittedInterval:      getEnvDuration("SYNC_COMMITTED_INTERVAL", time.Hour),
			VelocityInterval:       getEnvDuration("SYNC_VELOCITY_INTERVAL", 24*time.Hour),
			TenantConcurrency:      getEnvInt("SYNC_TENANT_CONCURRENCY", 4),
		},
		Retry: RetryConfig{
			BaseDelay:           getEnvDuration("RETRY_BASE_DELAY", 60*time.Second),
			MaxDelay:            getEnvDuration("RETRY_MAX_DELAY", 30*time.Minute),
			MaxRetries:          getEnvInt("RETRY_MAX_RETRIES", 5),
			ReplayInterval:      getEnvDuration("RETRY_REPLAY_INTERVAL", 30*time.Second),
			ReplayBatch:         getEnvInt("RETRY_REPLAY_BATCH", 50),
			RetentionDays:       getEnvInt("RETRY_RETENTION_DAYS", 7),
			FailedRetentionDays: getEnvInt("RETRY_FAILED_RETENTION_DAYS", 30),
			CleanupInterval:     getEnvDuration("RETRY_CLEANUP_INTERVAL", 6*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
