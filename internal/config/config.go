package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Session snapshot cache
	SessionCacheTTL time.Duration

	// Resilient cache client tuning
	CacheCallTimeout    time.Duration
	BreakerCooldown     time.Duration
	BreakerWindowSize   int
	BreakerMinCalls     int
	BreakerFailureRatio float64
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3000"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		SessionCacheTTL: time.Duration(getIntEnv("SESSION_CACHE_TTL_SECONDS", 600)) * time.Second,

		CacheCallTimeout:    time.Duration(getIntEnv("CACHE_CALL_TIMEOUT_SECONDS", 3)) * time.Second,
		BreakerCooldown:     time.Duration(getIntEnv("CACHE_BREAKER_COOLDOWN_SECONDS", 10)) * time.Second,
		BreakerWindowSize:   getIntEnv("CACHE_BREAKER_WINDOW_SIZE", 10),
		BreakerMinCalls:     getIntEnv("CACHE_BREAKER_MIN_CALLS", 5),
		BreakerFailureRatio: getFloatEnv("CACHE_BREAKER_FAILURE_RATIO", 0.5),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
