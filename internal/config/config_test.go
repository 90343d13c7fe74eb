package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SYNC_LOOKBACK", "")

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, ":9102", cfg.MetricsAddress)
	require.Equal(t, "@every 15m", cfg.SyncSchedule)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 7*24*time.Hour, cfg.SyncLookBack)
	require.Equal(t, 30*24*time.Hour, cfg.SyncLookAhead)
	require.Equal(t, LockBackendMemory, cfg.SyncLockBackend)
	require.Equal(t, []string{"calendar_activity_events", "calendar_event_status"}, cfg.ConsumerTopics)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("SYNC_LOOKAHEAD", "48h")
	t.Setenv("SYNC_LOCK_BACKEND", "Redis")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("PROVIDER_TIMEOUT", "5s")

	cfg := Load()
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 48*time.Hour, cfg.SyncLookAhead)
	require.Equal(t, LockBackendRedis, cfg.SyncLockBackend)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, 5*time.Second, cfg.ProviderTimeout)
}
