// Package auth provides API key authentication for the carevisit server.
package auth

import (
	"os"
	"strconv"
)

// Config holds authentication configuration.
type Config struct {
	// DevMode disables API key checks. Only for local development.
	DevMode bool
	// MaxFailuresPerMinute bounds failed key attempts per client IP.
	MaxFailuresPerMinute int
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		DevMode:              os.Getenv("CV_DEV_MODE") == "true",
		MaxFailuresPerMinute: envIntOrDefault("CV_AUTH_MAX_FAILURES", defaultMaxFailures),
	}
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
