// Package config provides configuration for the research service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Capability endpoints
	GeneratorURL         string
	GeneratorFallbackURL string
	GeneratorAPIKey      string
	SearchURL            string
	RelayURL             string

	// Timeouts
	SearchTimeout    time.Duration
	GenerateTimeout  time.Duration
	SummarizeTimeout time.Duration

	// Engine tuning
	SectionQueueSize  int
	FlushThreshold    int
	SummaryMaxChars   int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:          getEnv("DATABASE_URL", "file:fathom.db?cache=shared&mode=rwc"),
		GeneratorURL:         getEnv("GENERATOR_URL", "http://localhost:4000"),
		GeneratorFallbackURL: getEnv("GENERATOR_FALLBACK_URL", ""),
		GeneratorAPIKey:      getEnv("GENERATOR_API_KEY", ""),
		SearchURL:            getEnv("SEARCH_URL", "http://localhost:4100"),
		RelayURL:             getEnv("RELAY_URL", ""),
		SearchTimeout:        time.Duration(getEnvInt("SEARCH_TIMEOUT_MS", 30000)) * time.Millisecond,
		GenerateTimeout:      time.Duration(getEnvInt("GENERATE_TIMEOUT_MS", 300000)) * time.Millisecond,
		SummarizeTimeout:     time.Duration(getEnvInt("SUMMARIZE_TIMEOUT_MS", 60000)) * time.Millisecond,
		SectionQueueSize:     getEnvInt("SECTION_QUEUE_SIZE", 64),
		FlushThreshold:       getEnvInt("FLUSH_THRESHOLD", 160),
		SummaryMaxChars:      getEnvInt("SUMMARY_MAX_CHARS", 2000),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
