// Package config loads process-level wiring from the environment. The
// library itself is configured programmatically; this package exists for
// binaries that assemble a scheduler from env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings.
type Config struct {
	// Database
	DatabaseDSN string // Postgres DSN; empty means local SQLite
	SQLitePath  string // default: genqueue.db

	// Provider
	ProviderBaseURL string

	// Artifact storage
	PrimaryUploadURL   string
	SecondaryUploadURL string
	RedisAddr          string // empty disables the Redis backend
	RedisArtifactTTL   time.Duration

	// Sweep
	SweepCron string // default: "*/10 * * * *"
}

// Load reads configuration from the environment, honoring a .env file when
// present.
func Load() (*Config, error) {
	// Non-fatal if missing
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDSN:        os.Getenv("GENQUEUE_DATABASE_DSN"),
		SQLitePath:         getEnv("GENQUEUE_SQLITE_PATH", "genqueue.db"),
		ProviderBaseURL:    os.Getenv("GENQUEUE_PROVIDER_URL"),
		PrimaryUploadURL:   os.Getenv("GENQUEUE_PRIMARY_UPLOAD_URL"),
		SecondaryUploadURL: os.Getenv("GENQUEUE_SECONDARY_UPLOAD_URL"),
		RedisAddr:          os.Getenv("GENQUEUE_REDIS_ADDR"),
		SweepCron:          getEnv("GENQUEUE_SWEEP_CRON", "*/10 * * * *"),
	}

	ttlStr := getEnv("GENQUEUE_REDIS_ARTIFACT_TTL_HOURS", "24")
	ttlHours, err := strconv.Atoi(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GENQUEUE_REDIS_ARTIFACT_TTL_HOURS: %w", err)
	}
	cfg.RedisArtifactTTL = time.Duration(ttlHours) * time.Hour

	if cfg.ProviderBaseURL == "" {
		return nil, fmt.Errorf("GENQUEUE_PROVIDER_URL is required")
	}
	if cfg.PrimaryUploadURL == "" {
		return nil, fmt.Errorf("GENQUEUE_PRIMARY_UPLOAD_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
