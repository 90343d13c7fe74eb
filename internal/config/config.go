// Package config centralises configuration parsing for the calendar sync service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lock backends accepted by SYNC_LOCK_BACKEND.
const (
	LockBackendMemory   = "memory"
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
)

// Config captures runtime configuration values for the calendar sync binaries.
type Config struct {
	HTTPAddress        string
	MetricsAddress     string // consumer and dlqmanager expose /metrics here
	LogLevel           string
	PostgresURL        string // empty runs the API against the in-memory store
	KafkaBrokers       []string
	SchemaRegistryURL  string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	JWTSecret          string
	JWTIssuer          string
	DLQPollInterval    time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries      int           // Maximum number of DLQ retry attempts before quarantine.
	DLQBaseDelay       time.Duration // Base delay used for exponential backoff.
	DLQBatchSize       int
	ConsumerGroupID    string
	ConsumerTopics     []string
	SyncLookBack       time.Duration
	SyncLookAhead      time.Duration
	SyncLockBackend    string
	SyncLockTTL        time.Duration
	SyncSchedule       string // "off" disables the in-process scheduler
	RedisAddr          string
	ProviderTimeout    time.Duration
	MatchRulesFile     string
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress:        getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress:     getEnv("METRICS_ADDRESS", ":9102"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		SchemaRegistryURL:  getEnv("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		OutboxPollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getIntEnv("OUTBOX_BATCH_SIZE", 25),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:          getEnv("JWT_ISSUER", ""),
		DLQPollInterval:    getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:      getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:       getDurationEnv("DLQ_BASE_DELAY", time.Minute),
		DLQBatchSize:       getIntEnv("DLQ_BATCH_SIZE", 50),
		ConsumerGroupID:    getEnv("CONSUMER_GROUP_ID", "calendar-sync-audit"),
		SyncLookBack:       getDurationEnv("SYNC_LOOKBACK", 7*24*time.Hour),
		SyncLookAhead:      getDurationEnv("SYNC_LOOKAHEAD", 30*24*time.Hour),
		SyncLockBackend:    strings.ToLower(getEnv("SYNC_LOCK_BACKEND", LockBackendMemory)),
		SyncLockTTL:        getDurationEnv("SYNC_LOCK_TTL", 5*time.Minute),
		SyncSchedule:       getEnv("SYNC_SCHEDULE", "@every 15m"),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		ProviderTimeout:    getDurationEnv("PROVIDER_TIMEOUT", 20*time.Second),
		MatchRulesFile:     getEnv("MATCH_RULES_FILE", ""),
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092"))
	cfg.ConsumerTopics = splitAndTrim(getEnv("CONSUMER_TOPICS", "calendar_activity_events,calendar_event_status"))
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
