// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	DBURI                string
	HTTPPort             int
	LogLevel             string
	JanitorIntervalHours int
	RetentionDays        int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURI := os.Getenv("DB_URI")
	if dbURI == "" {
		dbURI = "./data/cap-alerts.db"
	}

	httpPort, err := intOrDefault("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	janitorIntervalHours, err := intOrDefault("JANITOR_INTERVAL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	if janitorIntervalHours <= 0 {
		return nil, fmt.Errorf("JANITOR_INTERVAL_HOURS must be positive, got %d", janitorIntervalHours)
	}

	retentionDays, err := intOrDefault("RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive, got %d", retentionDays)
	}

	return &Config{
		DBURI:                dbURI,
		HTTPPort:             httpPort,
		LogLevel:             logLevel,
		JanitorIntervalHours: janitorIntervalHours,
		RetentionDays:        retentionDays,
	}, nil
}

func intOrDefault(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
