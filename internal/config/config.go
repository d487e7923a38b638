// Package config assembles runtime configuration from an optional .env
// file and the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds engine configuration.
type Config struct {
	// Storage settings
	DBPath string

	// Indicator definition settings
	IndicatorDirectory string
	SchemaPath         string

	// Batch settings
	Concurrency int

	// Grievance SLA settings
	SLADays       int
	SLAWarnWindow int
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}

	if c.IndicatorDirectory == "" {
		return fmt.Errorf("indicator directory is required")
	}

	if c.SchemaPath == "" {
		return fmt.Errorf("schema path is required")
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	if c.SLADays < 1 {
		return fmt.Errorf("SLA days must be at least 1, got %d", c.SLADays)
	}

	if c.SLAWarnWindow < 0 || c.SLAWarnWindow >= c.SLADays {
		return fmt.Errorf("SLA warn window must be between 0 and %d, got %d", c.SLADays-1, c.SLAWarnWindow)
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		DBPath:             "mesuivi.db",
		IndicatorDirectory: "indicators",
		SchemaPath:         "schemas/indicator_v1.json",
		Concurrency:        1,
		SLADays:            21,
		SLAWarnWindow:      3,
	}
}

// Load reads configuration from a .env file (when present) and the
// environment, on top of the defaults.
func Load() (Config, error) {
	// Missing .env is fine; the environment alone may be complete.
	_ = godotenv.Load()

	c := DefaultConfig()
	c.DBPath = getEnvOrDefault("MESUIVI_DB_PATH", c.DBPath)
	c.IndicatorDirectory = getEnvOrDefault("MESUIVI_INDICATOR_DIR", c.IndicatorDirectory)
	c.SchemaPath = getEnvOrDefault("MESUIVI_SCHEMA_PATH", c.SchemaPath)

	var err error
	if c.Concurrency, err = getEnvIntOrDefault("MESUIVI_CONCURRENCY", c.Concurrency); err != nil {
		return c, err
	}
	if c.SLADays, err = getEnvIntOrDefault("MESUIVI_SLA_DAYS", c.SLADays); err != nil {
		return c, err
	}
	if c.SLAWarnWindow, err = getEnvIntOrDefault("MESUIVI_SLA_WARN_WINDOW", c.SLAWarnWindow); err != nil {
		return c, err
	}

	return c, c.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return n, nil
}
