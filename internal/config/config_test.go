package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 8, cfg.DispatchSearchLimit)
	assert.Equal(t, 3, cfg.DispatchMaxRetries)
	assert.Equal(t, int64(70), cfg.Fare.BaseFare)
	assert.Equal(t, int64(50), cfg.Fare.MinimumFare)
	assert.Equal(t, 3*time.Minute, cfg.Cancel.GracePeriod)
	assert.Equal(t, int64(100), cfg.Cancel.LateFee)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "drivers_geo", cfg.RedisGeoKey)
	assert.False(t, cfg.RunMigrations)
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("FARE_BASE", "85")
	t.Setenv("FARE_DESIGNATED_TIMES", "3")
	t.Setenv("CANCEL_GRACE_PERIOD", "5m")
	t.Setenv("DISPATCH_SEARCH_LIMIT", "16")
	t.Setenv("MIGRATE", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(85), cfg.Fare.BaseFare)
	assert.Equal(t, int64(3), cfg.Fare.DesignatedTimes)
	assert.Equal(t, 5*time.Minute, cfg.Cancel.GracePeriod)
	assert.Equal(t, 16, cfg.DispatchSearchLimit)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadServerConfigCollectsAllErrors(t *testing.T) {
	t.Setenv("CANCEL_GRACE_PERIOD", "not-a-duration")
	t.Setenv("FARE_BASE", "not-a-number")
	t.Setenv("DISPATCH_SEARCH_LIMIT", "0")
	t.Setenv("FARE_DESIGNATED_TIMES", "0")

	_, err := LoadServerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CANCEL_GRACE_PERIOD")
	assert.Contains(t, err.Error(), "FARE_BASE")
	assert.Contains(t, err.Error(), "DISPATCH_SEARCH_LIMIT")
	assert.Contains(t, err.Error(), "FARE_DESIGNATED_TIMES")
}
