package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/booking")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 28, cfg.SlotHorizonDays)
	assert.Equal(t, time.Duration(0), cfg.RequestTTL)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, "Europe/Moscow", cfg.DefaultTimezone)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/booking")
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REQUEST_TTL", "48h")
	t.Setenv("SLOT_HORIZON_DAYS", "14")
	t.Setenv("NOTIFY_RATE_PER_SEC", "5.5")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 48*time.Hour, cfg.RequestTTL)
	assert.Equal(t, 14, cfg.SlotHorizonDays)
	assert.InDelta(t, 5.5, cfg.NotifyRatePerSec, 1e-9)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DB_DSN", "")
	_, err := load(viper.New())
	require.Error(t, err)

	t.Setenv("DB_DSN", "postgres://localhost/booking")
	t.Setenv("DEFAULT_TIMEZONE", "Nowhere/City")
	_, err = load(viper.New())
	require.Error(t, err)
}
