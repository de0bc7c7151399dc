package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.DB.Driver)
	assert.True(t, cfg.DB.AutoMigrate)
	assert.Contains(t, cfg.DB.DSN, "dbname=risk_events")
	assert.Equal(t, "risk:circuit-breakers", cfg.Redis.Channel)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, time.Hour, cfg.Scheduler.BreakerStaleAfter)
	assert.Empty(t, cfg.WS.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://ops.example.com, ,https://risk.example.com")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("BREAKER_STALE_AFTER", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.DB.Driver)
	assert.Equal(t, []string{"https://ops.example.com", "https://risk.example.com"}, cfg.WS.AllowedOrigins)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.BreakerStaleAfter)
}

func TestLoad_RejectsMalformedNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_DB")
}

func TestValidate_JoinsEveryProblem(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RATE_LIMIT_WRITE_RPS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "JWT_ACCESS_SECRET must be set")
	assert.ErrorContains(t, err, "STORE_DRIVER=memory is not allowed in production")
	assert.ErrorContains(t, err, "RATE_LIMIT_WRITE_RPS")
}
