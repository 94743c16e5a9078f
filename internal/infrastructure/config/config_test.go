package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stockledger", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30, cfg.Ledger.ExpiryAlertWindowDays)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.IdempotencyTTL)
	assert.Equal(t, "redis", cfg.Ledger.IdempotencyBackend)
	assert.InDelta(t, 1.0, cfg.Telemetry.SamplingRatio, 0.001)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("STOCKLEDGER_DATABASE_HOST", "db.internal")
	t.Setenv("STOCKLEDGER_LEDGER_EXPIRY_ALERT_WINDOW_DAYS", "45")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 45, cfg.Ledger.ExpiryAlertWindowDays)
}

func TestValidate(t *testing.T) {
	t.Run("idle conns cannot exceed open conns", func(t *testing.T) {
		cfg := &Config{}
		applyDefaults(cfg)
		cfg.Database.MaxIdleConns = 50
		require.Error(t, cfg.validate())
	})

	t.Run("unknown idempotency backend", func(t *testing.T) {
		cfg := &Config{}
		applyDefaults(cfg)
		cfg.Ledger.IdempotencyBackend = "dynamo"
		require.Error(t, cfg.validate())
	})

	t.Run("production requires a strong jwt secret", func(t *testing.T) {
		cfg := &Config{}
		applyDefaults(cfg)
		cfg.App.Env = "production"
		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		cfg.JWT.Secret = "short"
		require.Error(t, cfg.validate())

		cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
		require.NoError(t, cfg.validate())
	})
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ledger",
		Password: "p@ss/word",
		DBName:   "stockledger",
		SSLMode:  "disable",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "sslmode=disable")
	// Password must be escaped, not embedded raw
	assert.NotContains(t, dsn, "p@ss/word")
}
