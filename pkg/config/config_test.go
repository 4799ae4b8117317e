package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/covenantlabs/mandate/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CHAIN_RPC_ENDPOINT", "")
	t.Setenv("CHAIN_CLUSTER", "")
	t.Setenv("CHAIN_KEY_FILE", "")
	t.Setenv("COMMIT_INTERVAL", "")
	t.Setenv("TELEMETRY_ENABLED", "")

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "file:mandate.db", cfg.DatabaseURL)
	assert.Equal(t, "devnet", cfg.ChainCluster)
	assert.Equal(t, 500*time.Millisecond, cfg.CommitInterval)
	assert.Equal(t, time.Minute, cfg.DrainInterval)
	assert.False(t, cfg.TelemetryEnabled)
	assert.False(t, cfg.ChainConfigured(), "no endpoint or key means commitment stays off")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://mandate@db:5432/mandate?sslmode=disable")
	t.Setenv("CHAIN_RPC_ENDPOINT", "https://rpc.example.com")
	t.Setenv("CHAIN_CLUSTER", "mainnet-beta")
	t.Setenv("CHAIN_KEY_FILE", "/etc/mandate/key.hex")
	t.Setenv("COMMIT_INTERVAL", "750ms")
	t.Setenv("TELEMETRY_ENABLED", "true")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://mandate@db:5432/mandate?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "mainnet-beta", cfg.ChainCluster)
	assert.Equal(t, 750*time.Millisecond, cfg.CommitInterval)
	assert.True(t, cfg.TelemetryEnabled)
	assert.True(t, cfg.ChainConfigured())
}

func TestLoad_IntervalAsMilliseconds(t *testing.T) {
	t.Setenv("COMMIT_INTERVAL", "250")
	cfg := config.Load()
	assert.Equal(t, 250*time.Millisecond, cfg.CommitInterval)
}

func TestLoad_BadIntervalFallsBack(t *testing.T) {
	t.Setenv("COMMIT_INTERVAL", "soon")
	cfg := config.Load()
	assert.Equal(t, 500*time.Millisecond, cfg.CommitInterval)
}
