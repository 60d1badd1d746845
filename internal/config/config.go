package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the process configuration, sourced from environment
// variables with development-friendly defaults.
type Config struct {
	Port         string
	DatabasePath string
	JWTSecret    string

	// Worker settings
	WorkerConcurrency int
	MaxAttempts       int
	RetryBaseDelay    time.Duration

	// Simulated venue behaviour
	QuoteDelay       time.Duration
	ExecutionDelay   time.Duration
	VenueFailureRate float64
}

// Load reads configuration from the environment.
func Load() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		DatabasePath:      getEnv("DATABASE_PATH", "swap.db"),
		JWTSecret:         getEnv("JWT_SECRET", "swap-secret-key"),
		WorkerConcurrency: getIntEnv("WORKER_CONCURRENCY", 10),
		MaxAttempts:       getIntEnv("MAX_ATTEMPTS", 3),
		RetryBaseDelay:    getDurationEnv("RETRY_BASE_DELAY", time.Second),
		QuoteDelay:        getDurationEnv("QUOTE_DELAY", 200*time.Millisecond),
		ExecutionDelay:    getDurationEnv("EXECUTION_DELAY", 2500*time.Millisecond),
		VenueFailureRate:  getFloatEnv("VENUE_FAILURE_RATE", 0.05),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
