// Package config loads service configuration from environment variables,
// with optional per-cluster YAML profiles overlaying the chain settings.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	LogLevel    string
	DatabaseURL string

	// RedisURL enables distributed owner locking; empty means in-process
	// locks, which is correct for a single-instance deployment.
	RedisURL string

	// Chain commitment. An empty endpoint or key file leaves commitment
	// unconfigured; events accrue locally and trading is unaffected.
	ChainEndpoint  string
	ChainCluster   string
	ChainKeyFile   string
	CommitInterval time.Duration
	SubmitTimeout  time.Duration
	DrainInterval  time.Duration
	ProfilesDir    string

	// Evidence export.
	ExportBucket string
	ExportPrefix string

	// Telemetry.
	OTLPEndpoint     string
	TelemetryEnabled bool
	Environment      string
}

// Load reads configuration from environment variables, applying defaults
// suitable for local development.
func Load() *Config {
	return &Config{
		LogLevel:    getenv("LOG_LEVEL", "INFO"),
		DatabaseURL: getenv("DATABASE_URL", "file:mandate.db"),
		RedisURL:    os.Getenv("REDIS_URL"),

		ChainEndpoint:  os.Getenv("CHAIN_RPC_ENDPOINT"),
		ChainCluster:   getenv("CHAIN_CLUSTER", "devnet"),
		ChainKeyFile:   os.Getenv("CHAIN_KEY_FILE"),
		CommitInterval: getduration("COMMIT_INTERVAL", 500*time.Millisecond),
		SubmitTimeout:  getduration("SUBMIT_TIMEOUT", 30*time.Second),
		DrainInterval:  getduration("DRAIN_INTERVAL", time.Minute),
		ProfilesDir:    os.Getenv("CHAIN_PROFILES_DIR"),

		ExportBucket: os.Getenv("EXPORT_S3_BUCKET"),
		ExportPrefix: getenv("EXPORT_S3_PREFIX", "evidence"),

		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: os.Getenv("TELEMETRY_ENABLED") == "true",
		Environment:      getenv("ENVIRONMENT", "development"),
	}
}

// ChainConfigured reports whether enough is set to submit commitments.
func (c *Config) ChainConfigured() bool {
	return c.ChainEndpoint != "" && c.ChainKeyFile != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
